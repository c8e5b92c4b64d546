package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/talos/internal/contracts"
)

// Compile-time interface check.
var _ Executor = (*PaperExecutor)(nil)

// PaperExecutor implements Executor against an in-memory venue.
// 모의투자 및 테스트용. 실제 운영에서는 kite Executor 사용.
type PaperExecutor struct {
	mu sync.Mutex

	orders map[string]*OrderDetail
	seq    int

	// Behavior knobs
	prices         map[string]float64
	commissionRate float64
	failuresLeft   int    // PlaceOrder가 실패할 남은 횟수 (재시도 테스트용)
	failureMessage string
	autoFill       bool // true면 접수 즉시 전량 체결 처리
}

// NewPaperExecutor creates an empty paper venue
func NewPaperExecutor() *PaperExecutor {
	return &PaperExecutor{
		orders: make(map[string]*OrderDetail),
		prices: make(map[string]float64),
	}
}

// SetPrice sets the simulated market price for an instrument
func (p *PaperExecutor) SetPrice(instrument string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[instrument] = price
}

// SetCommissionRate sets the per-trade commission rate
func (p *PaperExecutor) SetCommissionRate(rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commissionRate = rate
}

// FailNext makes the next n PlaceOrder calls fail with the given message
func (p *PaperExecutor) FailNext(n int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failuresLeft = n
	p.failureMessage = message
}

// EnableAutoFill makes orders fill completely as soon as they are placed
func (p *PaperExecutor) EnableAutoFill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.autoFill = true
}

// PlaceOrder accepts the order and returns a synthetic exchange id
func (p *PaperExecutor) PlaceOrder(ctx context.Context, order *contracts.Order) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failuresLeft > 0 {
		p.failuresLeft--
		return "", fmt.Errorf("paper venue rejected order: %s", p.failureMessage)
	}

	p.seq++
	exchangeID := fmt.Sprintf("PAPER-%06d", p.seq)

	detail := &OrderDetail{
		ExchangeOrderID: exchangeID,
		Status:          contracts.StatusOpen,
		UpdatedAt:       time.Now(),
	}

	if p.autoFill {
		price := order.Price
		if mkt, ok := p.prices[order.Instrument]; ok && order.IsMarketOrder() {
			price = mkt
		}
		detail.Status = contracts.StatusComplete
		detail.FilledQuantity = order.Quantity
		detail.AveragePrice = price
		detail.Commission = float64(order.Quantity) * price * p.commissionRate
	}

	p.orders[exchangeID] = detail
	return exchangeID, nil
}

// CancelOrder marks a working order cancelled
func (p *PaperExecutor) CancelOrder(ctx context.Context, exchangeOrderID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	detail, ok := p.orders[exchangeOrderID]
	if !ok {
		return false, ErrOrderNotFound
	}
	if detail.Status.IsTerminal() {
		return false, nil
	}

	detail.Status = contracts.StatusCancelled
	detail.UpdatedAt = time.Now()
	return true, nil
}

// ModifyOrder accepts any modification on a working order
func (p *PaperExecutor) ModifyOrder(ctx context.Context, exchangeOrderID string, mod contracts.OrderModification) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	detail, ok := p.orders[exchangeOrderID]
	if !ok {
		return false, ErrOrderNotFound
	}
	if detail.Status.IsTerminal() {
		return false, nil
	}
	if mod.IsEmpty() {
		return false, nil
	}

	detail.UpdatedAt = time.Now()
	return true, nil
}

// GetOrderStatus returns the venue-side status
func (p *PaperExecutor) GetOrderStatus(ctx context.Context, exchangeOrderID string) (contracts.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	detail, ok := p.orders[exchangeOrderID]
	if !ok {
		return "", ErrOrderNotFound
	}
	return detail.Status, nil
}

// GetOrderDetail returns a copy of the venue-side execution state
func (p *PaperExecutor) GetOrderDetail(ctx context.Context, exchangeOrderID string) (*OrderDetail, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	detail, ok := p.orders[exchangeOrderID]
	if !ok {
		return nil, ErrOrderNotFound
	}

	copied := *detail
	return &copied, nil
}

// Fill records venue-side execution progress for a working order.
// 모니터 루프가 차이를 감지해 Fill 을 합성하도록 누적 수량만 갱신한다.
func (p *PaperExecutor) Fill(exchangeOrderID string, quantity int, price float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	detail, ok := p.orders[exchangeOrderID]
	if !ok {
		return ErrOrderNotFound
	}
	if detail.Status.IsTerminal() {
		return fmt.Errorf("cannot fill order in %s status", detail.Status)
	}

	prevFilled := detail.FilledQuantity
	newFilled := prevFilled + quantity
	if newFilled > 0 {
		totalValue := float64(prevFilled)*detail.AveragePrice + float64(quantity)*price
		detail.AveragePrice = totalValue / float64(newFilled)
	}
	detail.FilledQuantity = newFilled
	detail.Commission += float64(quantity) * price * p.commissionRate
	detail.UpdatedAt = time.Now()
	return nil
}

// Complete transitions a working order to COMPLETE
func (p *PaperExecutor) Complete(exchangeOrderID string) error {
	return p.SetStatus(exchangeOrderID, contracts.StatusComplete)
}

// SetStatus forces a venue-side status, e.g. an exchange cancellation
func (p *PaperExecutor) SetStatus(exchangeOrderID string, status contracts.Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	detail, ok := p.orders[exchangeOrderID]
	if !ok {
		return ErrOrderNotFound
	}
	detail.Status = status
	detail.UpdatedAt = time.Now()
	return nil
}
