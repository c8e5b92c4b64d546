package order

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/talos/internal/contracts"
	"github.com/wonny/talos/internal/execution"
	"github.com/wonny/talos/pkg/logger"
)

func newTestManager(t *testing.T) (*Manager, *execution.PaperExecutor) {
	t.Helper()

	paper := execution.NewPaperExecutor()
	cfg := Config{
		MaxRetries:      3,
		RetryDelay:      10 * time.Millisecond,
		MonitorInterval: 20 * time.Millisecond,
		QueueSize:       16,
		ShutdownTimeout: time.Second,
	}
	m := NewManager(paper, cfg, logger.NewNop())
	m.Start()
	t.Cleanup(m.Shutdown)
	return m, paper
}

func marketOrder(instrument string, side contracts.OrderSide, qty int) *contracts.Order {
	return &contracts.Order{
		Instrument: instrument,
		Side:       side,
		Quantity:   qty,
		Kind:       contracts.KindMarket,
	}
}

func waitForStatus(t *testing.T, m *Manager, orderID string, status contracts.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		order := m.GetOrder(orderID)
		return order != nil && order.Status == status
	}, 2*time.Second, 5*time.Millisecond, "order %s never reached %s", orderID, status)
}

func TestSubmitAndPlace(t *testing.T) {
	m, _ := newTestManager(t)

	id, err := m.Submit(marketOrder("RELIANCE", contracts.SideBuy, 100), true)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	waitForStatus(t, m, id, contracts.StatusOpen)

	record := m.GetRecord(id)
	require.NotNil(t, record)
	assert.NotEmpty(t, record.ExchangeOrderID)
	assert.Equal(t, 0, record.FilledQuantity)

	stats := m.GetStatistics()
	assert.Equal(t, 1, stats.TotalSubmitted)
	assert.Equal(t, 0, stats.PendingCount)
}

func TestSubmitValidation(t *testing.T) {
	m, _ := newTestManager(t)

	cases := []struct {
		name  string
		order *contracts.Order
		want  string
	}{
		{
			name:  "missing instrument",
			order: &contracts.Order{Side: contracts.SideBuy, Quantity: 10, Kind: contracts.KindMarket},
			want:  "instrument is required",
		},
		{
			name:  "zero quantity",
			order: &contracts.Order{Instrument: "INFY", Side: contracts.SideBuy, Quantity: 0, Kind: contracts.KindMarket},
			want:  "quantity must be positive",
		},
		{
			name:  "limit without price",
			order: &contracts.Order{Instrument: "INFY", Side: contracts.SideBuy, Quantity: 10, Kind: contracts.KindLimit},
			want:  "valid price is required",
		},
		{
			name:  "stop market without trigger",
			order: &contracts.Order{Instrument: "INFY", Side: contracts.SideSell, Quantity: 10, Kind: contracts.KindStopMarket},
			want:  "valid trigger price is required",
		},
		{
			name: "sell stop with trigger above limit",
			order: &contracts.Order{
				Instrument: "INFY", Side: contracts.SideSell, Quantity: 10,
				Kind: contracts.KindStop, Price: 90, TriggerPrice: 100,
			},
			want: "trigger price must be less than limit price",
		},
		{
			name: "buy stop with trigger below limit",
			order: &contracts.Order{
				Instrument: "INFY", Side: contracts.SideBuy, Quantity: 10,
				Kind: contracts.KindStop, Price: 100, TriggerPrice: 90,
			},
			want: "trigger price must be greater than limit price",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Submit(tc.order, true)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)

			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}

	// Failed validation leaves no record behind
	assert.Equal(t, 0, m.GetStatistics().TotalOrders)
}

func TestPartialFillsWeightedAverage(t *testing.T) {
	m, _ := newTestManager(t)

	id, err := m.Submit(marketOrder("RELIANCE", contracts.SideBuy, 100), true)
	require.NoError(t, err)
	waitForStatus(t, m, id, contracts.StatusOpen)

	var reports []contracts.ExecutionReport
	var positions []contracts.PositionUpdate
	m.OnExecutionReport(func(r contracts.ExecutionReport) { reports = append(reports, r) })
	m.OnPositionUpdate(func(p contracts.PositionUpdate) { positions = append(positions, p) })

	require.NoError(t, m.ProcessFill(contracts.Fill{OrderID: id, Quantity: 40, Price: 100}))

	record := m.GetRecord(id)
	assert.Equal(t, contracts.StatusOpen, record.Order.Status)
	assert.Equal(t, 40, record.FilledQuantity)
	assert.InDelta(t, 100.0, record.AveragePrice, 1e-9)
	assert.Empty(t, reports, "no execution report before completion")
	assert.Empty(t, positions, "no position update before completion")

	// The tracker reflects the partial fill even though no event fired
	pos := m.GetPosition("RELIANCE")
	require.NotNil(t, pos)
	assert.Equal(t, 40, pos.NetQuantity)
	assert.InDelta(t, 100.0, pos.AveragePrice, 1e-9)

	require.NoError(t, m.ProcessFill(contracts.Fill{OrderID: id, Quantity: 60, Price: 102}))

	record = m.GetRecord(id)
	assert.Equal(t, contracts.StatusComplete, record.Order.Status)
	assert.Equal(t, 100, record.FilledQuantity)
	assert.InDelta(t, 101.2, record.AveragePrice, 1e-9)

	require.Len(t, reports, 1)
	assert.Equal(t, 2, reports[0].FillCount)
	assert.Len(t, reports[0].Fills, 2)
	assert.Equal(t, 100, reports[0].TotalQuantity)
	assert.Equal(t, 0, reports[0].RemainingQuantity)
	assert.Equal(t, contracts.StatusComplete, reports[0].Status)
	assert.InDelta(t, 101.2, reports[0].AverageFillPrice, 1e-9)

	require.Len(t, positions, 1)
	assert.Equal(t, 100, positions[0].NetQuantity)
	assert.InDelta(t, 101.2, positions[0].AveragePrice, 1e-9)
}

func TestFillOnTerminalOrderRefused(t *testing.T) {
	m, _ := newTestManager(t)

	id, err := m.Submit(marketOrder("TCS", contracts.SideBuy, 10), true)
	require.NoError(t, err)
	waitForStatus(t, m, id, contracts.StatusOpen)

	require.NoError(t, m.ProcessFill(contracts.Fill{OrderID: id, Quantity: 10, Price: 3500}))
	waitForStatus(t, m, id, contracts.StatusComplete)

	err = m.ProcessFill(contracts.Fill{OrderID: id, Quantity: 5, Price: 3500})
	require.Error(t, err)

	record := m.GetRecord(id)
	assert.Equal(t, 10, record.FilledQuantity, "terminal record unchanged")
}

func TestRetryThenReject(t *testing.T) {
	m, paper := newTestManager(t)
	paper.FailNext(3, "venue unavailable")

	id, err := m.Submit(marketOrder("INFY", contracts.SideBuy, 10), true)
	require.NoError(t, err)

	waitForStatus(t, m, id, contracts.StatusRejected)

	record := m.GetRecord(id)
	assert.Equal(t, 3, record.RetryCount)
	assert.Contains(t, record.ErrorMessage, "venue unavailable")
	assert.Equal(t, 1, m.GetStatistics().TotalRejected)
	assert.Equal(t, 0, m.GetStatistics().PendingCount)
}

func TestRetryThenSucceed(t *testing.T) {
	m, paper := newTestManager(t)
	paper.FailNext(2, "transient")

	id, err := m.Submit(marketOrder("INFY", contracts.SideBuy, 10), true)
	require.NoError(t, err)

	waitForStatus(t, m, id, contracts.StatusOpen)

	require.Eventually(t, func() bool {
		return m.GetRecord(id).ExchangeOrderID != ""
	}, 2*time.Second, 5*time.Millisecond, "order %s never placed", id)

	record := m.GetRecord(id)
	assert.Equal(t, 2, record.RetryCount)
	assert.NotEmpty(t, record.ExchangeOrderID)
}

func TestCancelOpenOrder(t *testing.T) {
	m, _ := newTestManager(t)

	id, err := m.Submit(marketOrder("SBIN", contracts.SideSell, 50), true)
	require.NoError(t, err)
	waitForStatus(t, m, id, contracts.StatusOpen)

	require.NoError(t, m.Cancel(id))

	order := m.GetOrder(id)
	assert.Equal(t, contracts.StatusCancelled, order.Status)
	assert.Equal(t, 1, m.GetStatistics().TotalCancelled)
}

func TestCancelTerminalOrderFails(t *testing.T) {
	m, _ := newTestManager(t)

	id, err := m.Submit(marketOrder("SBIN", contracts.SideBuy, 50), true)
	require.NoError(t, err)
	waitForStatus(t, m, id, contracts.StatusOpen)
	require.NoError(t, m.ProcessFill(contracts.Fill{OrderID: id, Quantity: 50, Price: 600}))

	err = m.Cancel(id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COMPLETE")

	order := m.GetOrder(id)
	assert.Equal(t, contracts.StatusComplete, order.Status)
}

func TestModifyOpenOrder(t *testing.T) {
	m, _ := newTestManager(t)

	id, err := m.Submit(&contracts.Order{
		Instrument: "HDFC", Side: contracts.SideBuy, Quantity: 20,
		Kind: contracts.KindLimit, Price: 1500,
	}, true)
	require.NoError(t, err)
	waitForStatus(t, m, id, contracts.StatusOpen)

	newPrice := 1510.0
	newQty := 25
	require.NoError(t, m.Modify(id, contracts.OrderModification{Price: &newPrice, Quantity: &newQty}))

	order := m.GetOrder(id)
	assert.InDelta(t, 1510.0, order.Price, 1e-9)
	assert.Equal(t, 25, order.Quantity)
}

func TestModifyRejectsBadValues(t *testing.T) {
	m, _ := newTestManager(t)

	id, err := m.Submit(&contracts.Order{
		Instrument: "HDFC", Side: contracts.SideBuy, Quantity: 20,
		Kind: contracts.KindLimit, Price: 1500,
	}, true)
	require.NoError(t, err)
	waitForStatus(t, m, id, contracts.StatusOpen)

	require.Error(t, m.Modify(id, contracts.OrderModification{}))

	badQty := -5
	require.Error(t, m.Modify(id, contracts.OrderModification{Quantity: &badQty}))

	order := m.GetOrder(id)
	assert.Equal(t, 20, order.Quantity, "failed modify leaves order unchanged")
}

func TestCallbackPanicIsolated(t *testing.T) {
	m, _ := newTestManager(t)

	var after atomic.Int32
	m.OnOrderUpdate(func(contracts.OrderUpdate) { panic("observer bug") })
	m.OnOrderUpdate(func(contracts.OrderUpdate) { after.Add(1) })

	id, err := m.Submit(marketOrder("INFY", contracts.SideBuy, 10), true)
	require.NoError(t, err)
	waitForStatus(t, m, id, contracts.StatusOpen)

	assert.Greater(t, after.Load(), int32(0), "later callbacks still fire")
}

func TestCallbackMayReenterManager(t *testing.T) {
	m, _ := newTestManager(t)

	done := make(chan Statistics, 8)
	m.OnOrderUpdate(func(contracts.OrderUpdate) {
		// Callbacks run outside the manager lock; reads must not deadlock
		done <- m.GetStatistics()
	})

	_, err := m.Submit(marketOrder("INFY", contracts.SideBuy, 10), true)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback deadlocked against manager lock")
	}
}

func TestMonitorDetectsFills(t *testing.T) {
	m, paper := newTestManager(t)

	id, err := m.Submit(marketOrder("RELIANCE", contracts.SideBuy, 100), true)
	require.NoError(t, err)
	waitForStatus(t, m, id, contracts.StatusOpen)

	record := m.GetRecord(id)
	paper.Fill(record.ExchangeOrderID, 40, 100)

	require.Eventually(t, func() bool {
		return m.GetRecord(id).FilledQuantity == 40
	}, 2*time.Second, 5*time.Millisecond)
	assert.InDelta(t, 100.0, m.GetRecord(id).AveragePrice, 1e-9)

	paper.Fill(record.ExchangeOrderID, 60, 102)
	waitForStatus(t, m, id, contracts.StatusComplete)

	final := m.GetRecord(id)
	assert.Equal(t, 100, final.FilledQuantity)
	assert.InDelta(t, 101.2, final.AveragePrice, 1e-9)
	assert.Len(t, final.Fills, 2)
}

func TestMonitorAppliesVenueCancel(t *testing.T) {
	m, paper := newTestManager(t)

	id, err := m.Submit(marketOrder("TCS", contracts.SideSell, 30), true)
	require.NoError(t, err)
	waitForStatus(t, m, id, contracts.StatusOpen)

	record := m.GetRecord(id)
	paper.SetStatus(record.ExchangeOrderID, contracts.StatusCancelled)

	waitForStatus(t, m, id, contracts.StatusCancelled)
	assert.Equal(t, 1, m.GetStatistics().TotalCancelled)
}

func TestPositionTrackerRealizesOnReduction(t *testing.T) {
	m, _ := newTestManager(t)

	buy, err := m.Submit(marketOrder("INFY", contracts.SideBuy, 100), true)
	require.NoError(t, err)
	waitForStatus(t, m, buy, contracts.StatusOpen)
	require.NoError(t, m.ProcessFill(contracts.Fill{OrderID: buy, Quantity: 100, Price: 500}))

	sell, err := m.Submit(marketOrder("INFY", contracts.SideSell, 40), true)
	require.NoError(t, err)
	waitForStatus(t, m, sell, contracts.StatusOpen)
	require.NoError(t, m.ProcessFill(contracts.Fill{OrderID: sell, Quantity: 40, Price: 550}))

	pos := m.GetPosition("INFY")
	require.NotNil(t, pos)
	assert.Equal(t, 60, pos.NetQuantity)
	assert.InDelta(t, 500.0, pos.AveragePrice, 1e-9, "reduction keeps cost basis")
	assert.InDelta(t, 2000.0, pos.RealizedPnL, 1e-9)
}

func TestPositionTrackerReversal(t *testing.T) {
	m, _ := newTestManager(t)

	buy, err := m.Submit(marketOrder("INFY", contracts.SideBuy, 100), true)
	require.NoError(t, err)
	waitForStatus(t, m, buy, contracts.StatusOpen)
	require.NoError(t, m.ProcessFill(contracts.Fill{OrderID: buy, Quantity: 100, Price: 500}))

	sell, err := m.Submit(marketOrder("INFY", contracts.SideSell, 150), true)
	require.NoError(t, err)
	waitForStatus(t, m, sell, contracts.StatusOpen)
	require.NoError(t, m.ProcessFill(contracts.Fill{OrderID: sell, Quantity: 150, Price: 550}))

	pos := m.GetPosition("INFY")
	require.NotNil(t, pos)
	assert.Equal(t, -50, pos.NetQuantity)
	assert.InDelta(t, 550.0, pos.AveragePrice, 1e-9, "reversal resets cost basis to trade price")
	assert.InDelta(t, 5000.0, pos.RealizedPnL, 1e-9)
}

func TestPositionTrackerAppliesEachFillAtItsPrice(t *testing.T) {
	m, _ := newTestManager(t)

	buy, err := m.Submit(marketOrder("INFY", contracts.SideBuy, 100), true)
	require.NoError(t, err)
	waitForStatus(t, m, buy, contracts.StatusOpen)
	require.NoError(t, m.ProcessFill(contracts.Fill{OrderID: buy, Quantity: 100, Price: 500}))

	// One sell order crossing zero in two fills: the first fill closes
	// the long at its own price, the second opens the short at its own
	// price. Order-level averaging would blend the two.
	sell, err := m.Submit(marketOrder("INFY", contracts.SideSell, 150), true)
	require.NoError(t, err)
	waitForStatus(t, m, sell, contracts.StatusOpen)
	require.NoError(t, m.ProcessFill(contracts.Fill{OrderID: sell, Quantity: 100, Price: 540}))

	pos := m.GetPosition("INFY")
	require.NotNil(t, pos)
	assert.Equal(t, 0, pos.NetQuantity)
	assert.InDelta(t, 4000.0, pos.RealizedPnL, 1e-9)

	require.NoError(t, m.ProcessFill(contracts.Fill{OrderID: sell, Quantity: 50, Price: 560}))

	pos = m.GetPosition("INFY")
	require.NotNil(t, pos)
	assert.Equal(t, -50, pos.NetQuantity)
	assert.InDelta(t, 560.0, pos.AveragePrice, 1e-9)
	assert.InDelta(t, 4000.0, pos.RealizedPnL, 1e-9)
}

func TestReconcilePosition(t *testing.T) {
	m, _ := newTestManager(t)

	buy, err := m.Submit(marketOrder("SBIN", contracts.SideBuy, 100), true)
	require.NoError(t, err)
	waitForStatus(t, m, buy, contracts.StatusOpen)
	require.NoError(t, m.ProcessFill(contracts.Fill{OrderID: buy, Quantity: 100, Price: 600}))

	assert.True(t, m.ReconcilePosition("SBIN", contracts.PositionUpdate{NetQuantity: 100, AveragePrice: 600}))

	// Reference diverges: internal view is overwritten
	assert.False(t, m.ReconcilePosition("SBIN", contracts.PositionUpdate{NetQuantity: 90, AveragePrice: 598}))
	pos := m.GetPosition("SBIN")
	assert.Equal(t, 90, pos.NetQuantity)
	assert.InDelta(t, 598.0, pos.AveragePrice, 1e-9)

	// Unknown instrument with a live reference position is adopted
	assert.False(t, m.ReconcilePosition("TCS", contracts.PositionUpdate{NetQuantity: 10, AveragePrice: 3500}))
	require.NotNil(t, m.GetPosition("TCS"))
}

func TestAuditTrail(t *testing.T) {
	m, _ := newTestManager(t)

	first, err := m.Submit(marketOrder("INFY", contracts.SideBuy, 10), true)
	require.NoError(t, err)
	second, err := m.Submit(marketOrder("TCS", contracts.SideBuy, 20), true)
	require.NoError(t, err)
	waitForStatus(t, m, first, contracts.StatusOpen)
	waitForStatus(t, m, second, contracts.StatusOpen)

	require.NoError(t, m.ProcessFill(contracts.Fill{OrderID: first, Quantity: 10, Price: 1500}))

	all := m.GetAuditTrail("", time.Time{}, time.Time{})
	assert.GreaterOrEqual(t, len(all), 5)
	assert.Equal(t, AuditOrderSubmitted, all[0].Type)

	scoped := m.GetAuditTrail(first, time.Time{}, time.Time{})
	for _, event := range scoped {
		assert.Equal(t, first, event.OrderID)
	}
	var kinds []AuditEventType
	for _, event := range scoped {
		kinds = append(kinds, event.Type)
	}
	assert.Contains(t, kinds, AuditOrderSubmitted)
	assert.Contains(t, kinds, AuditFill)

	empty := m.GetAuditTrail("", time.Now().Add(time.Hour), time.Time{})
	assert.Empty(t, empty)
}

func TestExecutionSummary(t *testing.T) {
	m, _ := newTestManager(t)

	id, err := m.Submit(&contracts.Order{
		Instrument: "INFY", Side: contracts.SideBuy, Quantity: 100,
		Kind: contracts.KindLimit, Price: 100, StrategyID: "sma_cross",
	}, true)
	require.NoError(t, err)
	waitForStatus(t, m, id, contracts.StatusOpen)
	require.NoError(t, m.ProcessFill(contracts.Fill{OrderID: id, Quantity: 40, Price: 100}))
	require.NoError(t, m.ProcessFill(contracts.Fill{OrderID: id, Quantity: 60, Price: 102}))

	summary := m.GetExecutionSummary(time.Time{}, time.Time{})
	assert.Equal(t, 1, summary.CompletedOrders)
	assert.Equal(t, 2, summary.TotalFills)
	assert.Equal(t, 1, summary.PartialFills)
	assert.InDelta(t, 1.2, summary.AverageSlippage, 1e-9)
	assert.Equal(t, []string{"INFY"}, summary.Instruments)
	assert.Equal(t, []string{"sma_cross"}, summary.Strategies)
}

func TestShutdownRefusesNewOrders(t *testing.T) {
	paper := execution.NewPaperExecutor()
	m := NewManager(paper, DefaultConfig(), logger.NewNop())
	m.Start()
	m.Shutdown()

	_, err := m.Submit(marketOrder("INFY", contracts.SideBuy, 10), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shut down")
}
