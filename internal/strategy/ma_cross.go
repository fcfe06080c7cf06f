package strategy

import "fmt"

// MACross signals on moving average crossovers: BUY on a golden cross when
// flat or short, SELL on a death cross when flat or long.
type MACross struct {
	fastPeriod int
	slowPeriod int
	volume     float64

	prices []float64
	fastMA float64
	slowMA float64
	prev   Action // last emitted action, to avoid repeats
}

func NewMACross(fast, slow int, volume float64) (*MACross, error) {
	if fast <= 0 || slow <= 0 || fast >= slow {
		return nil, fmt.Errorf("ma_cross: fast/slow must be >0 and fast < slow (got %d/%d)", fast, slow)
	}
	if volume <= 0 {
		return nil, fmt.Errorf("ma_cross: volume must be > 0")
	}
	return &MACross{
		fastPeriod: fast,
		slowPeriod: slow,
		volume:     volume,
		prices:     make([]float64, 0, slow),
		prev:       ActionHold,
	}, nil
}

func (s *MACross) Name() string {
	return fmt.Sprintf("ma_cross_%d_%d", s.fastPeriod, s.slowPeriod)
}

func (s *MACross) Decide(state MarketState) (Signal, error) {
	s.prices = append(s.prices, state.Mid())
	if len(s.prices) > s.slowPeriod {
		s.prices = s.prices[1:]
	}
	if len(s.prices) < s.slowPeriod {
		return Hold("warming up"), nil
	}

	oldFast, oldSlow := s.fastMA, s.slowMA
	s.fastMA = sma(s.prices, s.fastPeriod)
	s.slowMA = sma(s.prices, s.slowPeriod)

	switch {
	case oldFast <= oldSlow && s.fastMA > s.slowMA && s.prev != ActionBuy:
		s.prev = ActionBuy
		return Signal{
			Action:     ActionBuy,
			Confidence: 0.6,
			Volume:     s.volume,
			Note:       fmt.Sprintf("golden cross: MA%d(%.5f) > MA%d(%.5f)", s.fastPeriod, s.fastMA, s.slowPeriod, s.slowMA),
		}, nil
	case oldFast >= oldSlow && s.fastMA < s.slowMA && s.prev != ActionSell:
		s.prev = ActionSell
		return Signal{
			Action:     ActionSell,
			Confidence: 0.6,
			Volume:     s.volume,
			Note:       fmt.Sprintf("death cross: MA%d(%.5f) < MA%d(%.5f)", s.fastPeriod, s.fastMA, s.slowPeriod, s.slowMA),
		}, nil
	}
	return Hold(""), nil
}

// sma is the simple moving average of the last period samples.
func sma(prices []float64, period int) float64 {
	if len(prices) < period {
		return 0
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period)
}
