// Package order implements the order lifecycle manager: admission-time
// validation, queued asynchronous submission to the execution venue,
// fill processing, polling-based execution monitoring, and an append-only
// audit trail.
package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/talos/internal/contracts"
	"github.com/wonny/talos/internal/execution"
	"github.com/wonny/talos/pkg/logger"
)

// placeOrderTimeout bounds a single PlaceOrder call toward the venue
const placeOrderTimeout = 10 * time.Second

// ValidationError is returned when an order fails pre-submission checks.
// 재시도 대상 아님. 호출자에게 동기적으로 반환된다.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "order validation failed: " + e.Reason
}

// Manager owns order records, the submission queue, the background
// execution loop, and the execution monitor
// ⭐ SSOT: 주문 상태 전이는 이 매니저에서만
type Manager struct {
	executor execution.Executor
	cfg      Config
	logger   *logger.Logger

	mu        sync.Mutex
	orders    map[string]*Record
	pending   map[string]struct{}
	positions map[string]*contracts.PositionUpdate
	audit     []AuditEvent
	stats     Statistics
	seq       int
	accepting bool
	started   bool

	queue  chan string
	stopCh chan struct{}
	wg     sync.WaitGroup

	orderCallbacks     []OrderCallback
	fillCallbacks      []FillCallback
	executionCallbacks []ExecutionCallback
	positionCallbacks  []PositionCallback
}

// NewManager creates an order manager. Call Start to launch the
// background loops.
func NewManager(executor execution.Executor, cfg Config, log *logger.Logger) *Manager {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	return &Manager{
		executor:  executor,
		cfg:       cfg,
		logger:    log.WithComponent("order_manager"),
		orders:    make(map[string]*Record),
		pending:   make(map[string]struct{}),
		positions: make(map[string]*contracts.PositionUpdate),
		queue:     make(chan string, cfg.QueueSize),
		stopCh:    make(chan struct{}),
		accepting: true,
	}
}

// Start launches the execution loop and the fill monitor
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		m.logger.Warn("Order manager already started")
		return
	}
	m.started = true
	m.mu.Unlock()

	m.wg.Add(2)
	go m.executeLoop()
	go m.monitorLoop()

	m.logger.Info("Order manager started")
}

// Submit validates the order, registers a record, and enqueues it for
// asynchronous execution. Returns the internal order id.
// 검증 실패 시 부작용 없음 (fail fast).
func (m *Manager) Submit(order *contracts.Order, validate bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.accepting {
		return "", fmt.Errorf("order manager is shut down")
	}

	if validate {
		if err := validateOrder(order); err != nil {
			return "", err
		}
	}

	if order.ID == "" {
		m.seq++
		order.ID = fmt.Sprintf("ORD-%s-%04d", time.Now().Format("20060102150405"), m.seq)
	}
	order.Status = contracts.StatusPending
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}

	now := time.Now()
	record := &Record{
		Order:       order,
		SubmittedAt: now,
		UpdatedAt:   now,
	}

	select {
	case m.queue <- order.ID:
	default:
		return "", fmt.Errorf("submission queue full (%d)", m.cfg.QueueSize)
	}

	m.orders[order.ID] = record
	m.pending[order.ID] = struct{}{}
	m.appendSubmissionAudit(record)

	m.logger.WithFields(map[string]interface{}{
		"order_id":   order.ID,
		"instrument": order.Instrument,
		"side":       order.Side,
		"quantity":   order.Quantity,
		"kind":       order.Kind,
	}).Info("Order submitted")

	return order.ID, nil
}

// validateOrder applies the synchronous admission rule set, failing on
// the first violation
func validateOrder(order *contracts.Order) error {
	if order.Instrument == "" {
		return &ValidationError{Reason: "instrument is required"}
	}
	if order.Side != contracts.SideBuy && order.Side != contracts.SideSell {
		return &ValidationError{Reason: "side must be BUY or SELL"}
	}
	if order.Quantity <= 0 {
		return &ValidationError{Reason: "quantity must be positive"}
	}

	if order.Kind.RequiresPrice() && order.Price <= 0 {
		return &ValidationError{Reason: fmt.Sprintf("valid price is required for %s orders", order.Kind)}
	}
	if order.Kind.RequiresTrigger() && order.TriggerPrice <= 0 {
		return &ValidationError{Reason: fmt.Sprintf("valid trigger price is required for %s orders", order.Kind)}
	}

	// 스탑 지정가 주문은 방향에 따라 트리거/지정가 관계 검증
	if order.Kind == contracts.KindStop {
		if order.Side == contracts.SideBuy && order.TriggerPrice <= order.Price {
			return &ValidationError{Reason: "for BUY SL orders, trigger price must be greater than limit price"}
		}
		if order.Side == contracts.SideSell && order.TriggerPrice >= order.Price {
			return &ValidationError{Reason: "for SELL SL orders, trigger price must be less than limit price"}
		}
	}

	return nil
}

// executeLoop is the single consumer of the submission queue
func (m *Manager) executeLoop() {
	defer m.wg.Done()
	m.logger.Info("Order execution loop started")

	for {
		select {
		case <-m.stopCh:
			m.logger.Info("Order execution loop stopped")
			return
		case orderID := <-m.queue:
			m.executeOrder(orderID)
		}
	}
}

// executeOrder places one order through the executor, retrying with a
// fixed delay up to MaxRetries before marking it rejected
func (m *Manager) executeOrder(orderID string) {
	m.mu.Lock()
	record, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()
		m.logger.WithField("order_id", orderID).Error("Order not found")
		return
	}
	if record.Order.Status.IsTerminal() {
		// 큐 대기 중 취소/거부된 주문
		m.mu.Unlock()
		return
	}
	orderCopy := *record.Order
	m.mu.Unlock()

	m.applyStatusUpdate(contracts.OrderUpdate{
		OrderID:   orderID,
		Status:    contracts.StatusOpen,
		Timestamp: time.Now(),
		Message:   "Order submitted to exchange",
	})

	ctx, cancel := context.WithTimeout(context.Background(), placeOrderTimeout)
	exchangeID, err := m.executor.PlaceOrder(ctx, &orderCopy)
	cancel()

	if err == nil {
		m.mu.Lock()
		record.ExchangeOrderID = exchangeID
		record.Order.ExchangeOrderID = exchangeID
		record.UpdatedAt = time.Now()
		delete(m.pending, orderID)
		m.stats.TotalSubmitted++

		update := contracts.OrderUpdate{
			OrderID:         orderID,
			Status:          contracts.StatusOpen,
			Timestamp:       time.Now(),
			Message:         "Order placed successfully",
			ExchangeOrderID: exchangeID,
		}
		record.StatusHistory = append(record.StatusHistory, update)
		m.appendStatusAudit(update)
		m.mu.Unlock()

		m.notifyOrderUpdate(update)

		m.logger.WithFields(map[string]interface{}{
			"order_id":    orderID,
			"exchange_id": exchangeID,
		}).Info("Order placed at venue")
		return
	}

	// Execution failure: retry with fixed delay, then reject
	m.mu.Lock()
	record.RetryCount++
	record.ErrorMessage = err.Error()
	retries := record.RetryCount
	m.mu.Unlock()

	if retries < m.cfg.MaxRetries {
		m.logger.WithFields(map[string]interface{}{
			"order_id": orderID,
			"attempt":  retries + 1,
			"max":      m.cfg.MaxRetries,
			"error":    err.Error(),
		}).Warn("Order placement failed, retrying")

		select {
		case <-time.After(m.cfg.RetryDelay):
		case <-m.stopCh:
			return
		}

		select {
		case m.queue <- orderID:
			return
		default:
			// 큐가 가득 찬 경우에만 도달; 거부 처리로 넘어감
			m.logger.WithField("order_id", orderID).Error("Requeue failed, queue full")
		}
	}

	m.applyStatusUpdate(contracts.OrderUpdate{
		OrderID:   orderID,
		Status:    contracts.StatusRejected,
		Timestamp: time.Now(),
		Message:   fmt.Sprintf("Order rejected after %d attempts: %s", m.cfg.MaxRetries, err),
	})
}

// applyStatusUpdate applies a status transition, records history and
// audit, and notifies observers. Transitions out of a terminal state are
// refused.
func (m *Manager) applyStatusUpdate(update contracts.OrderUpdate) {
	m.mu.Lock()
	record, ok := m.orders[update.OrderID]
	if !ok {
		m.mu.Unlock()
		m.logger.WithField("order_id", update.OrderID).Warn("Status update for unknown order")
		return
	}

	oldStatus := record.Order.Status
	if oldStatus.IsTerminal() && update.Status != oldStatus {
		m.mu.Unlock()
		m.logger.WithFields(map[string]interface{}{
			"order_id": update.OrderID,
			"from":     oldStatus,
			"to":       update.Status,
		}).Warn("Ignoring transition out of terminal status")
		return
	}

	record.Order.Status = update.Status
	record.UpdatedAt = update.Timestamp
	if update.FilledQuantity > record.FilledQuantity {
		record.FilledQuantity = update.FilledQuantity
		record.AveragePrice = update.AveragePrice
	}
	if update.ExchangeOrderID != "" && record.ExchangeOrderID == "" {
		record.ExchangeOrderID = update.ExchangeOrderID
		record.Order.ExchangeOrderID = update.ExchangeOrderID
	}

	if oldStatus != update.Status {
		switch update.Status {
		case contracts.StatusComplete:
			m.stats.TotalCompleted++
			delete(m.pending, update.OrderID)
		case contracts.StatusCancelled:
			m.stats.TotalCancelled++
			delete(m.pending, update.OrderID)
		case contracts.StatusRejected:
			m.stats.TotalRejected++
			delete(m.pending, update.OrderID)
		}
	}

	record.StatusHistory = append(record.StatusHistory, update)
	m.appendStatusAudit(update)
	m.mu.Unlock()

	m.notifyOrderUpdate(update)

	m.logger.WithFields(map[string]interface{}{
		"order_id": update.OrderID,
		"status":   update.Status,
		"filled":   update.FilledQuantity,
	}).Debug("Order status updated")
}

// Modify applies a typed modification to a working order. Local state is
// mutated only after the venue confirms.
func (m *Manager) Modify(orderID string, mod contracts.OrderModification) error {
	if mod.IsEmpty() {
		return fmt.Errorf("no modifications specified")
	}
	if mod.Quantity != nil && *mod.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if mod.Price != nil && *mod.Price <= 0 {
		return fmt.Errorf("price must be positive")
	}
	if mod.TriggerPrice != nil && *mod.TriggerPrice <= 0 {
		return fmt.Errorf("trigger price must be positive")
	}

	m.mu.Lock()
	record, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("order not found: %s", orderID)
	}
	if record.Order.Status.IsTerminal() {
		status := record.Order.Status
		m.mu.Unlock()
		return fmt.Errorf("cannot modify order in %s status", status)
	}
	exchangeID := record.ExchangeOrderID
	m.mu.Unlock()

	if exchangeID == "" {
		return fmt.Errorf("exchange order id not known for %s", orderID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), placeOrderTimeout)
	ok2, err := m.executor.ModifyOrder(ctx, exchangeID, mod)
	cancel()
	if err != nil {
		return fmt.Errorf("modify order %s: %w", orderID, err)
	}
	if !ok2 {
		m.logger.WithField("order_id", orderID).Warn("Order modification refused by venue")
		return fmt.Errorf("venue refused modification of %s", orderID)
	}

	m.mu.Lock()
	if mod.Quantity != nil {
		record.Order.Quantity = *mod.Quantity
	}
	if mod.Price != nil {
		record.Order.Price = *mod.Price
	}
	if mod.TriggerPrice != nil {
		record.Order.TriggerPrice = *mod.TriggerPrice
	}
	if mod.Kind != nil {
		record.Order.Kind = *mod.Kind
	}
	record.UpdatedAt = time.Now()
	status := record.Order.Status
	m.mu.Unlock()

	m.applyStatusUpdate(contracts.OrderUpdate{
		OrderID:   orderID,
		Status:    status,
		Timestamp: time.Now(),
		Message:   fmt.Sprintf("Order modified: %v", mod.Fields()),
	})

	return nil
}

// Cancel requests cancellation of a working order through the venue
func (m *Manager) Cancel(orderID string) error {
	m.mu.Lock()
	record, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("order not found: %s", orderID)
	}
	if record.Order.Status.IsTerminal() {
		status := record.Order.Status
		m.mu.Unlock()
		return fmt.Errorf("cannot cancel order in %s status", status)
	}
	exchangeID := record.ExchangeOrderID
	m.mu.Unlock()

	if exchangeID == "" {
		return fmt.Errorf("exchange order id not known for %s", orderID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), placeOrderTimeout)
	ok2, err := m.executor.CancelOrder(ctx, exchangeID)
	cancel()
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	if !ok2 {
		m.logger.WithField("order_id", orderID).Warn("Order cancellation refused by venue")
		return fmt.Errorf("venue refused cancellation of %s", orderID)
	}

	m.applyStatusUpdate(contracts.OrderUpdate{
		OrderID:   orderID,
		Status:    contracts.StatusCancelled,
		Timestamp: time.Now(),
		Message:   "Order cancelled by user",
	})

	return nil
}

// GetOrder returns a copy of the order, or nil when unknown
func (m *Manager) GetOrder(orderID string) *contracts.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.orders[orderID]
	if !ok {
		return nil
	}
	copied := *record.Order
	return &copied
}

// GetRecord returns a copy of the full lifecycle record, or nil
func (m *Manager) GetRecord(orderID string) *Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.orders[orderID]
	if !ok {
		return nil
	}
	return record.clone()
}

// GetOrders returns all orders, optionally filtered by status
func (m *Manager) GetOrders(statusFilter ...contracts.Status) []contracts.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	orders := make([]contracts.Order, 0, len(m.orders))
	for _, record := range m.orders {
		if len(statusFilter) > 0 && record.Order.Status != statusFilter[0] {
			continue
		}
		orders = append(orders, *record.Order)
	}
	return orders
}

// GetOpenOrders returns orders currently working at the venue
func (m *Manager) GetOpenOrders() []contracts.Order {
	return m.GetOrders(contracts.StatusOpen)
}

// GetPendingOrders returns orders not yet placed at the venue
func (m *Manager) GetPendingOrders() []contracts.Order {
	return m.GetOrders(contracts.StatusPending)
}

// GetStatistics returns order management counters
func (m *Manager) GetStatistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.stats
	stats.PendingCount = len(m.pending)
	stats.TotalOrders = len(m.orders)
	stats.QueueDepth = len(m.queue)
	stats.TrackedPositions = len(m.positions)
	return stats
}

// Shutdown stops accepting submissions, stops both background loops,
// then waits up to ShutdownTimeout for pending orders to vacate.
// Best effort: pending 주문이 남아 있어도 반환한다.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if !m.accepting {
		m.mu.Unlock()
		return
	}
	m.accepting = false
	started := m.started
	m.mu.Unlock()

	m.logger.Info("Shutting down order manager")

	if started {
		close(m.stopCh)
		m.wg.Wait()
	}

	deadline := time.Now().Add(m.cfg.ShutdownTimeout)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		remaining := len(m.pending)
		m.mu.Unlock()
		if remaining == 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	m.mu.Lock()
	remaining := len(m.pending)
	m.mu.Unlock()
	if remaining > 0 {
		m.logger.WithField("pending", remaining).Warn("Shutdown with pending orders")
	}

	m.logger.Info("Order manager shutdown complete")
}
