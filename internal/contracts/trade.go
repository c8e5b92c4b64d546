package contracts

import "time"

// Trade is one completed buy/sell leg fed into the portfolio ledger.
// Immutable once recorded.
type Trade struct {
	Instrument      string    `json:"instrument"`
	Side            OrderSide `json:"side"`
	Quantity        int       `json:"quantity"`
	Price           float64   `json:"price"`
	Timestamp       time.Time `json:"timestamp"`
	OrderID         string    `json:"order_id"`
	ExchangeOrderID string    `json:"exchange_order_id,omitempty"`
	StrategyID      string    `json:"strategy_id,omitempty"`

	// Commission/Tax: 0이면 ledger가 설정 비율로 계산
	Commission float64 `json:"commission"`
	Tax        float64 `json:"tax"`
}

// Notional returns quantity * price for this trade
func (t *Trade) Notional() float64 {
	return float64(t.Quantity) * t.Price
}

// SizingRequest asks the risk controller for a position size
type SizingRequest struct {
	RiskPercent     float64 `json:"risk_percent"`
	StopLossPercent float64 `json:"stop_loss_percent"`
}

// Signal is a typed order intent produced by a strategy
type Signal struct {
	Instrument   string        `json:"instrument"`
	Side         OrderSide     `json:"side"`
	Kind         OrderKind     `json:"kind"`
	Quantity     int           `json:"quantity,omitempty"` // 0이면 리스크 컨트롤러가 산출
	Price        float64       `json:"price,omitempty"`
	TriggerPrice float64       `json:"trigger_price,omitempty"`
	StrategyID   string        `json:"strategy_id"`
	Sizing       SizingRequest `json:"sizing"`
	GeneratedAt  time.Time     `json:"generated_at"`
}
