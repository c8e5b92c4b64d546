package order

import (
	"fmt"
	"math"
	"time"

	"github.com/wonny/talos/internal/contracts"
)

// ProcessFill applies one execution to an order record: cumulative
// filled quantity, weighted average price, completion detection, and the
// execution-side position view. Callers must not deliver the same fill
// twice; the manager applies every fill it is handed.
func (m *Manager) ProcessFill(fill contracts.Fill) error {
	m.mu.Lock()
	record, ok := m.orders[fill.OrderID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("fill for unknown order: %s", fill.OrderID)
	}
	if record.Order.Status.IsTerminal() {
		status := record.Order.Status
		m.mu.Unlock()
		return fmt.Errorf("fill for order %s in terminal status %s", fill.OrderID, status)
	}
	if fill.Quantity <= 0 {
		m.mu.Unlock()
		return fmt.Errorf("fill quantity must be positive, got %d", fill.Quantity)
	}

	if fill.Timestamp.IsZero() {
		fill.Timestamp = time.Now()
	}

	// Weighted average over the cumulative executed quantity
	prevFilled := record.FilledQuantity
	newFilled := prevFilled + fill.Quantity
	record.AveragePrice = (float64(prevFilled)*record.AveragePrice + float64(fill.Quantity)*fill.Price) / float64(newFilled)
	record.FilledQuantity = newFilled
	record.Fills = append(record.Fills, fill)
	record.UpdatedAt = fill.Timestamp
	if record.FirstFillAt.IsZero() {
		record.FirstFillAt = fill.Timestamp
	}

	m.stats.TotalFills++
	m.stats.TotalVolume += float64(fill.Quantity) * fill.Price
	m.appendFillAudit(record.Order, fill)

	complete := record.FilledQuantity >= record.Order.Quantity
	status := contracts.StatusOpen
	if complete {
		status = contracts.StatusComplete
		record.CompletedAt = fill.Timestamp
	}

	oldStatus := record.Order.Status
	record.Order.Status = status
	if oldStatus != status && status == contracts.StatusComplete {
		m.stats.TotalCompleted++
		delete(m.pending, fill.OrderID)
	}

	update := contracts.OrderUpdate{
		OrderID:         fill.OrderID,
		Status:          status,
		FilledQuantity:  record.FilledQuantity,
		AveragePrice:    record.AveragePrice,
		Timestamp:       fill.Timestamp,
		Message:         fmt.Sprintf("Fill: %d @ %.2f", fill.Quantity, fill.Price),
		ExchangeOrderID: record.ExchangeOrderID,
	}
	record.StatusHistory = append(record.StatusHistory, update)
	m.appendStatusAudit(update)

	position := m.applyFillToPosition(record, fill)

	var report contracts.ExecutionReport
	if complete {
		report = m.buildExecutionReport(record)
	}
	filled := record.FilledQuantity
	avgPrice := record.AveragePrice
	m.mu.Unlock()

	m.notifyFill(fill)
	m.notifyOrderUpdate(update)

	// 체결 완료 시에만 포지션/체결 리포트 이벤트 발행
	if complete {
		m.notifyPositionUpdate(position)
		m.notifyExecutionReport(report)

		m.logger.WithFields(map[string]interface{}{
			"order_id":  fill.OrderID,
			"filled":    filled,
			"avg_price": avgPrice,
		}).Info("Order completely filled")
	}

	return nil
}

// applyFillToPosition folds one fill into the execution-side position
// tracker at the fill's own quantity and price. Must hold m.mu.
// ⭐ 원장(portfolio)과 동일한 가중평균/실현손익 알고리즘
func (m *Manager) applyFillToPosition(record *Record, fill contracts.Fill) contracts.PositionUpdate {
	instrument := record.Order.Instrument
	qty := fill.Quantity
	price := fill.Price
	if record.Order.Side == contracts.SideSell {
		qty = -qty
	}

	pos, ok := m.positions[instrument]
	if !ok {
		pos = &contracts.PositionUpdate{Instrument: instrument}
		m.positions[instrument] = pos
	}

	oldQty := pos.NetQuantity
	newQty := oldQty + qty

	switch {
	case oldQty == 0:
		pos.AveragePrice = price
	case (oldQty > 0) == (qty > 0):
		// 같은 방향 증가: 가중평균 재계산
		totalCost := float64(abs(oldQty))*pos.AveragePrice + float64(abs(qty))*price
		pos.AveragePrice = totalCost / float64(abs(newQty))
	default:
		// Reduction, close, or reversal: realize PnL on the reduced
		// quantity against the existing cost basis
		reduced := min(abs(qty), abs(oldQty))
		if oldQty > 0 {
			pos.RealizedPnL += float64(reduced) * (price - pos.AveragePrice)
		} else {
			pos.RealizedPnL += float64(reduced) * (pos.AveragePrice - price)
		}
		if newQty == 0 {
			pos.AveragePrice = 0
		} else if (newQty > 0) != (oldQty > 0) {
			// 방향 반전: 신규 원가 기준은 체결가
			pos.AveragePrice = price
		}
	}

	pos.NetQuantity = newQty
	pos.UnrealizedPnL = float64(newQty) * (price - pos.AveragePrice)
	pos.Timestamp = fill.Timestamp

	return *pos
}

// buildExecutionReport projects a completed record into a full execution
// report. Must hold m.mu.
func (m *Manager) buildExecutionReport(record *Record) contracts.ExecutionReport {
	report := contracts.ExecutionReport{
		OrderID:           record.Order.ID,
		ExchangeOrderID:   record.ExchangeOrderID,
		Instrument:        record.Order.Instrument,
		Side:              record.Order.Side,
		Kind:              record.Order.Kind,
		StrategyID:        record.Order.StrategyID,
		TotalQuantity:     record.Order.Quantity,
		FilledQuantity:    record.FilledQuantity,
		RemainingQuantity: record.Order.Quantity - record.FilledQuantity,
		AverageFillPrice:  record.AveragePrice,
		FillCount:         len(record.Fills),
		Fills:             append([]contracts.Fill(nil), record.Fills...),
		Status:            record.Order.Status,
		SubmittedAt:       record.SubmittedAt,
		FirstFillAt:       record.FirstFillAt,
		CompletedAt:       record.CompletedAt,
		TotalCommission:   record.TotalCommission,
	}
	// Slippage is only meaningful against a reference price
	if record.Order.Price > 0 {
		if record.Order.Side == contracts.SideBuy {
			report.Slippage = record.AveragePrice - record.Order.Price
		} else {
			report.Slippage = record.Order.Price - record.AveragePrice
		}
	}
	return report
}

// GetPosition returns the execution-side view of one position, or nil
func (m *Manager) GetPosition(instrument string) *contracts.PositionUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[instrument]
	if !ok {
		return nil
	}
	copied := *pos
	return &copied
}

// GetPositions returns all execution-side positions keyed by instrument
func (m *Manager) GetPositions() map[string]contracts.PositionUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]contracts.PositionUpdate, len(m.positions))
	for instrument, pos := range m.positions {
		out[instrument] = *pos
	}
	return out
}

// ReconciliationReport is a point-in-time snapshot of the execution-side
// position view, used to compare against the authoritative ledger.
type ReconciliationReport struct {
	Timestamp          time.Time                            `json:"timestamp"`
	Positions          map[string]contracts.PositionUpdate `json:"positions"`
	OpenPositions      int                                  `json:"open_positions"`
	TotalRealizedPnL   float64                              `json:"total_realized_pnl"`
	TotalUnrealizedPnL float64                              `json:"total_unrealized_pnl"`
}

// GetReconciliationReport snapshots the execution-side position view
func (m *Manager) GetReconciliationReport() ReconciliationReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := ReconciliationReport{
		Timestamp: time.Now(),
		Positions: make(map[string]contracts.PositionUpdate, len(m.positions)),
	}
	for instrument, pos := range m.positions {
		report.Positions[instrument] = *pos
		if pos.NetQuantity != 0 {
			report.OpenPositions++
		}
		report.TotalRealizedPnL += pos.RealizedPnL
		report.TotalUnrealizedPnL += pos.UnrealizedPnL
	}
	return report
}

// ReconcilePosition compares the execution-side view of one instrument
// against an external reference and overwrites the internal view when
// they diverge. Returns true when the views already matched.
func (m *Manager) ReconcilePosition(instrument string, reference contracts.PositionUpdate) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[instrument]
	if !ok {
		if reference.NetQuantity == 0 {
			return true
		}
		copied := reference
		copied.Instrument = instrument
		copied.Timestamp = time.Now()
		m.positions[instrument] = &copied
		m.logger.WithFields(map[string]interface{}{
			"instrument": instrument,
			"quantity":   reference.NetQuantity,
		}).Warn("Reconciliation created missing position")
		return false
	}

	if pos.NetQuantity == reference.NetQuantity &&
		math.Abs(pos.AveragePrice-reference.AveragePrice) < 1e-9 {
		return true
	}

	m.logger.WithFields(map[string]interface{}{
		"instrument":    instrument,
		"internal_qty":  pos.NetQuantity,
		"reference_qty": reference.NetQuantity,
		"internal_avg":  pos.AveragePrice,
		"reference_avg": reference.AveragePrice,
	}).Warn("Position mismatch, adopting reference")

	pos.NetQuantity = reference.NetQuantity
	pos.AveragePrice = reference.AveragePrice
	pos.Timestamp = time.Now()
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
