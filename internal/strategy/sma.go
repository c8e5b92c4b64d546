package strategy

import (
	"github.com/wonny/talos/internal/contracts"
)

// SMACross signals when the fast moving average crosses the slow one.
// 골든크로스 매수, 데드크로스 매도.
type SMACross struct {
	name   string
	fast   int
	slow   int
	closes map[string][]float64

	// previous fast-minus-slow sign per instrument
	lastDiff map[string]float64
	primed   map[string]bool
}

// NewSMACross creates a crossover strategy with the given windows
func NewSMACross(fast, slow int) *SMACross {
	if fast >= slow {
		fast, slow = slow, fast
	}
	return &SMACross{
		name:     "sma_cross",
		fast:     fast,
		slow:     slow,
		closes:   make(map[string][]float64),
		lastDiff: make(map[string]float64),
		primed:   make(map[string]bool),
	}
}

func (s *SMACross) Name() string { return s.name }

func (s *SMACross) OnBar(bar Bar) *contracts.Signal {
	closes := append(s.closes[bar.Instrument], bar.Close)
	if len(closes) > s.slow {
		closes = closes[len(closes)-s.slow:]
	}
	s.closes[bar.Instrument] = closes

	if len(closes) < s.slow {
		return nil
	}

	diff := sma(closes, s.fast) - sma(closes, s.slow)
	prev, primed := s.lastDiff[bar.Instrument], s.primed[bar.Instrument]
	s.lastDiff[bar.Instrument] = diff
	s.primed[bar.Instrument] = true

	if !primed {
		return nil
	}

	switch {
	case prev <= 0 && diff > 0:
		return makeSignal(s.name, bar, contracts.SideBuy)
	case prev >= 0 && diff < 0:
		return makeSignal(s.name, bar, contracts.SideSell)
	}
	return nil
}

// sma averages the last n values
func sma(values []float64, n int) float64 {
	var sum float64
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n)
}
