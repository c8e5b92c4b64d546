// Package strategy provides the built-in signal sources fed into the
// engine.
package strategy

import (
	"time"

	"github.com/wonny/talos/internal/contracts"
)

// Bar is one OHLCV candle
type Bar struct {
	Instrument string    `json:"instrument"`
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
}

// Strategy turns a bar stream into trading signals. OnBar returns nil
// when the bar produces no signal.
type Strategy interface {
	Name() string
	OnBar(bar Bar) *contracts.Signal
}

func makeSignal(name string, bar Bar, side contracts.OrderSide) *contracts.Signal {
	return &contracts.Signal{
		Instrument:  bar.Instrument,
		Side:        side,
		Kind:        contracts.KindMarket,
		Price:       bar.Close,
		StrategyID:  name,
		GeneratedAt: bar.Timestamp,
	}
}
