package order

import (
	"time"

	"github.com/wonny/talos/internal/contracts"
)

// Config defines order lifecycle parameters
type Config struct {
	MaxRetries      int           // 제출 실패 최대 재시도 횟수
	RetryDelay      time.Duration // 재시도 간 고정 대기
	MonitorInterval time.Duration // 체결 모니터링 폴링 주기
	QueueSize       int           // 제출 큐 크기
	ShutdownTimeout time.Duration // 종료 시 pending 주문 대기 한도
}

// DefaultConfig returns default lifecycle parameters
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		RetryDelay:      1 * time.Second,
		MonitorInterval: 1 * time.Second,
		QueueSize:       256,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Record tracks the full lifecycle of one order.
// Invariant: FilledQuantity == sum of fill quantities and never exceeds
// the order quantity.
type Record struct {
	Order           *contracts.Order         `json:"order"`
	SubmittedAt     time.Time                `json:"submitted_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
	FilledQuantity  int                      `json:"filled_quantity"`
	AveragePrice    float64                  `json:"average_price"`
	StatusHistory   []contracts.OrderUpdate  `json:"status_history"`
	Fills           []contracts.Fill         `json:"fills"`
	RetryCount      int                      `json:"retry_count"`
	ErrorMessage    string                   `json:"error_message,omitempty"`
	ExchangeOrderID string                   `json:"exchange_order_id,omitempty"`
	FirstFillAt     time.Time                `json:"first_fill_at,omitempty"`
	CompletedAt     time.Time                `json:"completed_at,omitempty"`
	TotalCommission float64                  `json:"total_commission"`
}

// clone returns a deep-enough copy safe to hand to observers
func (r *Record) clone() *Record {
	copied := *r
	orderCopy := *r.Order
	copied.Order = &orderCopy
	copied.StatusHistory = append([]contracts.OrderUpdate(nil), r.StatusHistory...)
	copied.Fills = append([]contracts.Fill(nil), r.Fills...)
	return &copied
}

// Statistics holds order management counters
type Statistics struct {
	TotalSubmitted   int     `json:"total_submitted"`
	TotalCompleted   int     `json:"total_completed"`
	TotalCancelled   int     `json:"total_cancelled"`
	TotalRejected    int     `json:"total_rejected"`
	TotalFills       int     `json:"total_fills"`
	TotalVolume      float64 `json:"total_volume"`
	TotalCommission  float64 `json:"total_commission"`
	PendingCount     int     `json:"pending_count"`
	TotalOrders      int     `json:"total_orders"`
	QueueDepth       int     `json:"queue_depth"`
	TrackedPositions int     `json:"tracked_positions"`
}
