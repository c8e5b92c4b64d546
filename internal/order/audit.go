package order

import (
	"time"

	"github.com/wonny/talos/internal/contracts"
)

// AuditEventType classifies entries in the append-only audit trail
type AuditEventType string

const (
	AuditOrderSubmitted AuditEventType = "ORDER_SUBMITTED"
	AuditStatusUpdate   AuditEventType = "STATUS_UPDATE"
	AuditFill           AuditEventType = "FILL"
)

// AuditEvent is one immutable entry in the audit trail. Fields beyond
// the common header are populated per event type.
type AuditEvent struct {
	Timestamp time.Time       `json:"timestamp"`
	Type      AuditEventType  `json:"type"`
	OrderID   string          `json:"order_id"`

	Instrument string              `json:"instrument,omitempty"`
	Side       contracts.OrderSide `json:"side,omitempty"`
	Kind       contracts.OrderKind `json:"kind,omitempty"`
	Quantity   int                 `json:"quantity,omitempty"`
	Price      float64             `json:"price,omitempty"`
	StrategyID string              `json:"strategy_id,omitempty"`

	Status         contracts.Status `json:"status,omitempty"`
	FilledQuantity int              `json:"filled_quantity,omitempty"`
	AveragePrice   float64          `json:"average_price,omitempty"`
	Message        string           `json:"message,omitempty"`
}

// appendSubmissionAudit records order entry. Must hold m.mu.
func (m *Manager) appendSubmissionAudit(record *Record) {
	m.audit = append(m.audit, AuditEvent{
		Timestamp:  record.SubmittedAt,
		Type:       AuditOrderSubmitted,
		OrderID:    record.Order.ID,
		Instrument: record.Order.Instrument,
		Side:       record.Order.Side,
		Kind:       record.Order.Kind,
		Quantity:   record.Order.Quantity,
		Price:      record.Order.Price,
		StrategyID: record.Order.StrategyID,
	})
}

// appendStatusAudit records a status transition. Must hold m.mu.
func (m *Manager) appendStatusAudit(update contracts.OrderUpdate) {
	m.audit = append(m.audit, AuditEvent{
		Timestamp:      update.Timestamp,
		Type:           AuditStatusUpdate,
		OrderID:        update.OrderID,
		Status:         update.Status,
		FilledQuantity: update.FilledQuantity,
		AveragePrice:   update.AveragePrice,
		Message:        update.Message,
	})
}

// appendFillAudit records an individual execution. Must hold m.mu.
func (m *Manager) appendFillAudit(order *contracts.Order, fill contracts.Fill) {
	m.audit = append(m.audit, AuditEvent{
		Timestamp:  fill.Timestamp,
		Type:       AuditFill,
		OrderID:    fill.OrderID,
		Instrument: order.Instrument,
		Side:       order.Side,
		Quantity:   fill.Quantity,
		Price:      fill.Price,
	})
}

// GetAuditTrail returns audit events in insertion order. An empty
// orderID matches all orders; zero start/end disable time filtering.
func (m *Manager) GetAuditTrail(orderID string, start, end time.Time) []AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]AuditEvent, 0, len(m.audit))
	for _, event := range m.audit {
		if orderID != "" && event.OrderID != orderID {
			continue
		}
		if !start.IsZero() && event.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && event.Timestamp.After(end) {
			continue
		}
		out = append(out, event)
	}
	return out
}

// ExecutionSummary aggregates execution quality over a window of
// completed orders
type ExecutionSummary struct {
	Start            time.Time `json:"start,omitzero"`
	End              time.Time `json:"end,omitzero"`
	CompletedOrders  int       `json:"completed_orders"`
	TotalFills       int       `json:"total_fills"`
	TotalVolume      float64   `json:"total_volume"`
	TotalCommission  float64   `json:"total_commission"`
	PartialFills     int       `json:"partial_fills"`
	AverageSlippage  float64   `json:"average_slippage"`
	AverageFillTime  float64   `json:"average_fill_time_seconds"`
	Instruments      []string  `json:"instruments"`
	Strategies       []string  `json:"strategies"`
}

// GetExecutionSummary aggregates completed orders inside the window.
// Zero start/end disable time filtering.
func (m *Manager) GetExecutionSummary(start, end time.Time) ExecutionSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := ExecutionSummary{Start: start, End: end}
	instruments := make(map[string]struct{})
	strategies := make(map[string]struct{})

	var slippageSum float64
	var slippageCount int
	var fillTimeSum float64
	var fillTimeCount int

	for _, record := range m.orders {
		if record.Order.Status != contracts.StatusComplete {
			continue
		}
		if !start.IsZero() && record.CompletedAt.Before(start) {
			continue
		}
		if !end.IsZero() && record.CompletedAt.After(end) {
			continue
		}

		summary.CompletedOrders++
		summary.TotalFills += len(record.Fills)
		summary.TotalVolume += float64(record.FilledQuantity) * record.AveragePrice
		summary.TotalCommission += record.TotalCommission
		if len(record.Fills) > 1 {
			summary.PartialFills++
		}

		if record.Order.Price > 0 {
			slippage := record.AveragePrice - record.Order.Price
			if record.Order.Side == contracts.SideSell {
				slippage = -slippage
			}
			slippageSum += slippage
			slippageCount++
		}
		if !record.FirstFillAt.IsZero() {
			fillTimeSum += record.CompletedAt.Sub(record.SubmittedAt).Seconds()
			fillTimeCount++
		}

		instruments[record.Order.Instrument] = struct{}{}
		if record.Order.StrategyID != "" {
			strategies[record.Order.StrategyID] = struct{}{}
		}
	}

	if slippageCount > 0 {
		summary.AverageSlippage = slippageSum / float64(slippageCount)
	}
	if fillTimeCount > 0 {
		summary.AverageFillTime = fillTimeSum / float64(fillTimeCount)
	}
	for instrument := range instruments {
		summary.Instruments = append(summary.Instruments, instrument)
	}
	for strategy := range strategies {
		summary.Strategies = append(summary.Strategies, strategy)
	}
	return summary
}
