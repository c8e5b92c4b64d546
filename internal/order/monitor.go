package order

import (
	"context"
	"time"

	"github.com/wonny/talos/internal/contracts"
	"github.com/wonny/talos/internal/execution"
)

// pollTimeout bounds a single status query toward the venue
const pollTimeout = 5 * time.Second

// monitorLoop polls the venue for fills and status changes on working
// orders. Runs until Shutdown.
func (m *Manager) monitorLoop() {
	defer m.wg.Done()
	m.logger.Info("Execution monitor started")

	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			m.logger.Info("Execution monitor stopped")
			return
		case <-ticker.C:
			m.pollOnce()
		}
	}
}

// monitorTarget is the per-order snapshot a polling pass works from
type monitorTarget struct {
	orderID         string
	exchangeOrderID string
	filledQuantity  int
	averagePrice    float64
	commission      float64
	status          contracts.Status
}

// pollOnce runs a single polling pass over all working orders.
// 주문별 오류는 격리한다. 한 주문의 실패가 다른 주문 폴링을 막지 않는다.
func (m *Manager) pollOnce() {
	m.mu.Lock()
	targets := make([]monitorTarget, 0, len(m.orders))
	for id, record := range m.orders {
		if record.Order.Status.IsTerminal() || record.ExchangeOrderID == "" {
			continue
		}
		targets = append(targets, monitorTarget{
			orderID:         id,
			exchangeOrderID: record.ExchangeOrderID,
			filledQuantity:  record.FilledQuantity,
			averagePrice:    record.AveragePrice,
			commission:      record.TotalCommission,
			status:          record.Order.Status,
		})
	}
	m.mu.Unlock()

	for _, target := range targets {
		if err := m.pollOrder(target); err != nil {
			m.logger.WithFields(map[string]interface{}{
				"order_id": target.orderID,
				"error":    err.Error(),
			}).Warn("Order poll failed")
		}
	}
}

// pollOrder reconciles one order against the venue. New executed
// quantity is synthesized into a delta fill and processed BEFORE any
// status change, so a venue report of COMPLETE plus new quantity in the
// same poll never leaves the fill unapplied.
func (m *Manager) pollOrder(target monitorTarget) error {
	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	detail, err := m.executor.GetOrderDetail(ctx, target.exchangeOrderID)
	cancel()
	if err != nil {
		if err == execution.ErrOrderNotFound {
			m.logger.WithField("order_id", target.orderID).Warn("Order unknown at venue")
			return nil
		}
		return err
	}

	if delta := detail.FilledQuantity - target.filledQuantity; delta > 0 {
		// Back out the delta's price from the venue's cumulative average
		deltaNotional := float64(detail.FilledQuantity)*detail.AveragePrice -
			float64(target.filledQuantity)*target.averagePrice
		deltaPrice := deltaNotional / float64(delta)

		if commissionDelta := detail.Commission - target.commission; commissionDelta > 0 {
			m.mu.Lock()
			if record, ok := m.orders[target.orderID]; ok {
				record.TotalCommission += commissionDelta
			}
			m.mu.Unlock()
		}

		fill := contracts.Fill{
			OrderID:           target.orderID,
			ExchangeOrderID:   target.exchangeOrderID,
			Quantity:          delta,
			Price:             deltaPrice,
			Timestamp:         time.Now(),
			ExchangeTimestamp: detail.UpdatedAt,
		}
		if err := m.ProcessFill(fill); err != nil {
			return err
		}

		// The fill may have completed the order locally
		m.mu.Lock()
		if record, ok := m.orders[target.orderID]; ok {
			target.status = record.Order.Status
		}
		m.mu.Unlock()
		if target.status.IsTerminal() {
			return nil
		}
	}

	// Completion is normally driven by the fill path above; the status
	// branch covers venue-side cancellations, rejections, and the odd
	// case of a venue-complete order with less than the full quantity
	if detail.Status != target.status && detail.Status.IsTerminal() {
		m.applyStatusUpdate(contracts.OrderUpdate{
			OrderID:         target.orderID,
			Status:          detail.Status,
			FilledQuantity:  detail.FilledQuantity,
			AveragePrice:    detail.AveragePrice,
			Timestamp:       time.Now(),
			Message:         "Status reported by venue",
			ExchangeOrderID: target.exchangeOrderID,
		})
	}

	return nil
}
