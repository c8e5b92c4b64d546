package contracts

import "time"

// Order represents an order request handed to the execution core
// ⭐ SSOT: 전략 → 주문 관리자 주문 정보 전달
type Order struct {
	ID              string    `json:"id"`
	Instrument      string    `json:"instrument"`
	Side            OrderSide `json:"side"` // BUY or SELL
	Quantity        int       `json:"quantity"`
	Kind            OrderKind `json:"kind"`
	Price           float64   `json:"price,omitempty"`         // 0 for market orders
	TriggerPrice    float64   `json:"trigger_price,omitempty"` // SL / SL-M only
	StrategyID      string    `json:"strategy_id,omitempty"`
	Status          Status    `json:"status"`
	ExchangeOrderID string    `json:"exchange_order_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// OrderSide represents buy or sell
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderKind represents the order type
type OrderKind string

const (
	KindMarket     OrderKind = "MARKET"
	KindLimit      OrderKind = "LIMIT"
	KindStop       OrderKind = "SL"   // stop-limit
	KindStopMarket OrderKind = "SL-M" // stop-market
)

// Status represents order lifecycle status
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusOpen      Status = "OPEN"
	StatusComplete  Status = "COMPLETE"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
)

// IsTerminal reports whether no further transition is allowed
func (s Status) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// IsMarketOrder checks if the order is a market order
func (o *Order) IsMarketOrder() bool {
	return o.Kind == KindMarket
}

// RequiresPrice reports whether the order kind needs a limit price
func (k OrderKind) RequiresPrice() bool {
	return k == KindLimit || k == KindStop
}

// RequiresTrigger reports whether the order kind needs a trigger price
func (k OrderKind) RequiresTrigger() bool {
	return k == KindStop || k == KindStopMarket
}

// Notional returns the order value, preferring the limit price when one
// is set
func (o *Order) Notional(currentPrice float64) float64 {
	price := currentPrice
	if !o.IsMarketOrder() && o.Price > 0 {
		price = o.Price
	}
	return float64(o.Quantity) * price
}

// OrderModification is a typed partial update for a working order.
// nil 필드는 변경하지 않음.
type OrderModification struct {
	Quantity     *int       `json:"quantity,omitempty"`
	Price        *float64   `json:"price,omitempty"`
	TriggerPrice *float64   `json:"trigger_price,omitempty"`
	Kind         *OrderKind `json:"kind,omitempty"`
}

// IsEmpty reports whether the modification changes nothing
func (m OrderModification) IsEmpty() bool {
	return m.Quantity == nil && m.Price == nil && m.TriggerPrice == nil && m.Kind == nil
}

// Fields lists the names of the fields being modified (로깅용)
func (m OrderModification) Fields() []string {
	fields := make([]string, 0, 4)
	if m.Quantity != nil {
		fields = append(fields, "quantity")
	}
	if m.Price != nil {
		fields = append(fields, "price")
	}
	if m.TriggerPrice != nil {
		fields = append(fields, "trigger_price")
	}
	if m.Kind != nil {
		fields = append(fields, "kind")
	}
	return fields
}
