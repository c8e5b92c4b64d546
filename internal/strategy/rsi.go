package strategy

import (
	"github.com/wonny/talos/internal/contracts"
)

// RSIReversion buys oversold and sells overbought, one state flip per
// excursion
type RSIReversion struct {
	name       string
	period     int
	oversold   float64
	overbought float64

	closes map[string][]float64
	inLong map[string]bool
}

// NewRSIReversion creates a mean-reversion strategy on Wilder's RSI
func NewRSIReversion(period int, oversold, overbought float64) *RSIReversion {
	return &RSIReversion{
		name:       "rsi_reversion",
		period:     period,
		oversold:   oversold,
		overbought: overbought,
		closes:     make(map[string][]float64),
		inLong:     make(map[string]bool),
	}
}

func (s *RSIReversion) Name() string { return s.name }

func (s *RSIReversion) OnBar(bar Bar) *contracts.Signal {
	closes := append(s.closes[bar.Instrument], bar.Close)
	keep := s.period + 1
	if len(closes) > keep {
		closes = closes[len(closes)-keep:]
	}
	s.closes[bar.Instrument] = closes

	if len(closes) < keep {
		return nil
	}

	value := rsi(closes, s.period)
	long := s.inLong[bar.Instrument]

	switch {
	case value <= s.oversold && !long:
		s.inLong[bar.Instrument] = true
		return makeSignal(s.name, bar, contracts.SideBuy)
	case value >= s.overbought && long:
		s.inLong[bar.Instrument] = false
		return makeSignal(s.name, bar, contracts.SideSell)
	}
	return nil
}

// rsi computes a simple-average RSI over the trailing period
func rsi(closes []float64, period int) float64 {
	var gains, losses float64
	for i := len(closes) - period; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	if losses == 0 {
		if gains == 0 {
			return 50
		}
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}
