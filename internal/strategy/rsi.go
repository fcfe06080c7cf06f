package strategy

import "fmt"

// RSI signals on overbought/oversold levels: BUY below the oversold
// threshold, SELL above the overbought one.
type RSI struct {
	period     int
	oversold   float64
	overbought float64
	volume     float64

	prices []float64
	value  float64
	prev   Action
}

func NewRSI(period int, oversold, overbought, volume float64) (*RSI, error) {
	if period <= 0 {
		return nil, fmt.Errorf("rsi: period must be > 0")
	}
	if oversold <= 0 || overbought <= 0 || oversold >= overbought {
		return nil, fmt.Errorf("rsi: need 0 < oversold < overbought (got %.1f/%.1f)", oversold, overbought)
	}
	if volume <= 0 {
		return nil, fmt.Errorf("rsi: volume must be > 0")
	}
	return &RSI{
		period:     period,
		oversold:   oversold,
		overbought: overbought,
		volume:     volume,
		prices:     make([]float64, 0, period+1),
		prev:       ActionHold,
	}, nil
}

func (s *RSI) Name() string {
	return fmt.Sprintf("rsi_%d", s.period)
}

func (s *RSI) Decide(state MarketState) (Signal, error) {
	s.prices = append(s.prices, state.Mid())
	if len(s.prices) > s.period+1 {
		s.prices = s.prices[1:]
	}
	if len(s.prices) < s.period+1 {
		return Hold("warming up"), nil
	}

	var gains, losses float64
	for i := 1; i < len(s.prices); i++ {
		d := s.prices[i] - s.prices[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	if losses == 0 {
		s.value = 100
	} else {
		rs := gains / losses
		s.value = 100 - 100/(1+rs)
	}

	switch {
	case s.value < s.oversold && s.prev != ActionBuy:
		s.prev = ActionBuy
		return Signal{
			Action:     ActionBuy,
			Confidence: (s.oversold - s.value) / s.oversold,
			Volume:     s.volume,
			Note:       fmt.Sprintf("RSI %.1f < %.1f", s.value, s.oversold),
		}, nil
	case s.value > s.overbought && s.prev != ActionSell:
		s.prev = ActionSell
		return Signal{
			Action:     ActionSell,
			Confidence: (s.value - s.overbought) / (100 - s.overbought),
			Volume:     s.volume,
			Note:       fmt.Sprintf("RSI %.1f > %.1f", s.value, s.overbought),
		}, nil
	}
	return Hold(""), nil
}
