// Package portfolio is the authoritative ledger: cash, open and closed
// positions, trade history, and valuation snapshots.
package portfolio

import (
	"time"

	"github.com/wonny/talos/internal/contracts"
)

// Position is one open position. Quantity is signed; negative means
// short.
type Position struct {
	Instrument      string            `json:"instrument"`
	StrategyID      string            `json:"strategy_id,omitempty"`
	Quantity        int               `json:"quantity"`
	AveragePrice    float64           `json:"average_price"`
	CurrentPrice    float64           `json:"current_price"`
	RealizedPnL     float64           `json:"realized_pnl"`
	TotalCommission float64           `json:"total_commission"`
	TotalTax        float64           `json:"total_tax"`
	Trades          int               `json:"trades"`
	History         []contracts.Trade `json:"history,omitempty"`
	OpenedAt        time.Time         `json:"opened_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// MarketValue is the unsigned exposure at the last known price. Shorts
// count toward portfolio value the same as longs.
func (p *Position) MarketValue() float64 {
	return float64(abs(p.Quantity)) * p.CurrentPrice
}

// UnrealizedPnL is the open profit against the cost basis
func (p *Position) UnrealizedPnL() float64 {
	if p.CurrentPrice <= 0 {
		return 0
	}
	return float64(p.Quantity) * (p.CurrentPrice - p.AveragePrice)
}

// ClosedPosition is the archived result of a fully closed position
type ClosedPosition struct {
	Instrument  string    `json:"instrument"`
	Quantity    int       `json:"quantity"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	RealizedPnL float64   `json:"realized_pnl"`
	Trades      int       `json:"trades"`
	OpenedAt    time.Time `json:"opened_at"`
	ClosedAt    time.Time `json:"closed_at"`
}

// Snapshot is a point-in-time valuation of the whole portfolio
type Snapshot struct {
	Timestamp       time.Time `json:"timestamp"`
	Cash            float64   `json:"cash"`
	PositionValue   float64   `json:"position_value"`
	TotalValue      float64   `json:"total_value"`
	RealizedPnL     float64   `json:"realized_pnl"`
	UnrealizedPnL   float64   `json:"unrealized_pnl"`
	TotalPnL        float64   `json:"total_pnl"`
	TotalCommission float64   `json:"total_commission"`
	TotalTax        float64   `json:"total_tax"`
	ReturnPercent   float64   `json:"return_percent"`
	OpenPositions   int       `json:"open_positions"`
}

// Summary aggregates the ledger for observers
type Summary struct {
	InitialCapital  float64 `json:"initial_capital"`
	Cash            float64 `json:"cash"`
	PositionValue   float64 `json:"position_value"`
	TotalValue      float64 `json:"total_value"`
	RealizedPnL     float64 `json:"realized_pnl"`
	UnrealizedPnL   float64 `json:"unrealized_pnl"`
	TotalPnL        float64 `json:"total_pnl"`
	ReturnPercent   float64 `json:"return_percent"`
	OpenPositions   int     `json:"open_positions"`
	ClosedPositions int     `json:"closed_positions"`
	TotalTrades     int     `json:"total_trades"`
	TotalCommission float64 `json:"total_commission"`
	TotalTax        float64 `json:"total_tax"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	WinRate         float64 `json:"win_rate"`
	BestTrade       float64 `json:"best_trade"`
	WorstTrade      float64 `json:"worst_trade"`
}
