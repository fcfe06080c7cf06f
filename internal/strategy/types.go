// Package strategy holds the decision functions consulted by a trading pass.
// Deciders are opaque to the orchestration layer: they see market state and
// answer with a signal, nothing else.
package strategy

import "fmt"

// Action is the decision for one instrument.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// MarketState is the per-instrument input to a decision.
type MarketState struct {
	Symbol      string
	Bid         float64
	Ask         float64
	PositionQty float64 // signed net volume: >0 long, <0 short, 0 flat
	Equity      float64
}

// Mid returns the mid price.
func (m MarketState) Mid() float64 { return (m.Bid + m.Ask) / 2 }

// Signal is a decision with optional price levels.
type Signal struct {
	Action     Action
	Confidence float64 // 0..1
	Volume     float64
	Price      float64 // 0 means market
	StopLoss   float64
	TakeProfit float64
	Note       string
}

// Hold is the no-action signal.
func Hold(note string) Signal {
	return Signal{Action: ActionHold, Note: note}
}

// Decider turns market state into a signal. Implementations keep their own
// price history per instance and must be side-effect free with respect to
// the scheduler.
type Decider interface {
	Name() string
	Decide(state MarketState) (Signal, error)
}

// New builds a decider by type name with its strategy parameters.
func New(strategyType string, params map[string]float64) (Decider, error) {
	get := func(key string, def float64) float64 {
		if v, ok := params[key]; ok {
			return v
		}
		return def
	}

	switch strategyType {
	case "ma_cross":
		return NewMACross(
			int(get("fast", 10)),
			int(get("slow", 30)),
			get("volume", 0.01),
		)
	case "rsi":
		return NewRSI(
			int(get("period", 14)),
			get("oversold", 30),
			get("overbought", 70),
			get("volume", 0.01),
		)
	default:
		return nil, fmt.Errorf("unknown strategy type %q", strategyType)
	}
}
