package contracts

import "time"

// Fill is one execution event against an order, possibly partial.
// Immutable once recorded; fills are applied strictly in arrival order.
type Fill struct {
	OrderID           string    `json:"order_id"`
	ExchangeOrderID   string    `json:"exchange_order_id"`
	FillID            string    `json:"fill_id"`
	Quantity          int       `json:"quantity"`
	Price             float64   `json:"price"`
	Timestamp         time.Time `json:"timestamp"`
	ExchangeTimestamp time.Time `json:"exchange_timestamp,omitempty"`
	TradeID           string    `json:"trade_id,omitempty"`
}

// OrderUpdate represents an order status update event
type OrderUpdate struct {
	OrderID         string    `json:"order_id"`
	Status          Status    `json:"status"`
	FilledQuantity  int       `json:"filled_quantity"`
	AveragePrice    float64   `json:"average_price"`
	Timestamp       time.Time `json:"timestamp"`
	Message         string    `json:"message,omitempty"`
	ExchangeOrderID string    `json:"exchange_order_id,omitempty"`
}

// ExecutionReport is a read-only projection of a completed (or working)
// order's execution state
type ExecutionReport struct {
	OrderID           string    `json:"order_id"`
	ExchangeOrderID   string    `json:"exchange_order_id"`
	Instrument        string    `json:"instrument"`
	Side              OrderSide `json:"side"`
	Kind              OrderKind `json:"kind"`
	StrategyID        string    `json:"strategy_id,omitempty"`
	TotalQuantity     int       `json:"total_quantity"`
	FilledQuantity    int       `json:"filled_quantity"`
	RemainingQuantity int       `json:"remaining_quantity"`
	AverageFillPrice  float64   `json:"average_fill_price"`
	FillCount         int       `json:"fill_count"`
	Fills             []Fill    `json:"fills"`
	Status            Status    `json:"status"`
	SubmittedAt       time.Time `json:"submitted_at"`
	FirstFillAt       time.Time `json:"first_fill_at,omitempty"`
	CompletedAt       time.Time `json:"completed_at,omitempty"`
	TotalCommission   float64   `json:"total_commission"`
	Slippage          float64   `json:"slippage"`
}

// PositionUpdate is the execution-side running position per instrument,
// maintained by the order manager for fast fill-driven bookkeeping.
// 회계측 포지션(portfolio.Position)과는 별개 엔티티. GetReconciliationReport 로 대조한다.
type PositionUpdate struct {
	Instrument    string    `json:"instrument"`
	NetQuantity   int       `json:"net_quantity"`
	AveragePrice  float64   `json:"average_price"`
	RealizedPnL   float64   `json:"realized_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	Timestamp     time.Time `json:"timestamp"`
}
