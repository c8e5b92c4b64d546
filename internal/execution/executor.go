package execution

import (
	"context"
	"errors"
	"time"

	"github.com/wonny/talos/internal/contracts"
)

// Executor defines the interface toward the execution venue
// ⭐ SSOT: 거래소 연동 인터페이스는 여기서만 정의
type Executor interface {
	// PlaceOrder submits an order to the venue and returns the
	// exchange-assigned order id
	PlaceOrder(ctx context.Context, order *contracts.Order) (string, error)

	// CancelOrder requests cancellation of a working order.
	// Returns false when the venue refuses without a transport error.
	CancelOrder(ctx context.Context, exchangeOrderID string) (bool, error)

	// ModifyOrder applies a partial update to a working order
	ModifyOrder(ctx context.Context, exchangeOrderID string, mod contracts.OrderModification) (bool, error)

	// GetOrderStatus retrieves the venue-side order status
	GetOrderStatus(ctx context.Context, exchangeOrderID string) (contracts.Status, error)

	// GetOrderDetail retrieves the full venue-side view used by the
	// fill monitor: status, cumulative filled quantity, average price,
	// accumulated commission
	GetOrderDetail(ctx context.Context, exchangeOrderID string) (*OrderDetail, error)
}

// OrderDetail is the venue-side execution state of one order
type OrderDetail struct {
	ExchangeOrderID string          `json:"exchange_order_id"`
	Status          contracts.Status `json:"status"`
	FilledQuantity  int             `json:"filled_quantity"` // 누적 체결 수량
	AveragePrice    float64         `json:"average_price"`
	Commission      float64         `json:"commission"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ErrOrderNotFound is returned when the venue does not know the order id
var ErrOrderNotFound = errors.New("order not found at venue")
