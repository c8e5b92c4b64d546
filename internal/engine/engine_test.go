package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/talos/internal/contracts"
	"github.com/wonny/talos/internal/execution"
	"github.com/wonny/talos/internal/order"
	"github.com/wonny/talos/internal/portfolio"
	"github.com/wonny/talos/internal/risk"
	"github.com/wonny/talos/pkg/logger"
)

func newTestEngine(t *testing.T) (*Engine, *execution.PaperExecutor) {
	t.Helper()

	paper := execution.NewPaperExecutor()
	cfg := order.Config{
		MaxRetries:      3,
		RetryDelay:      10 * time.Millisecond,
		MonitorInterval: 20 * time.Millisecond,
		QueueSize:       16,
		ShutdownTimeout: time.Second,
	}
	limits := risk.DefaultLimits()
	limits.MaxPositionSizePercent = 50
	// The instrument count gate applies to exits too; leave room for the
	// closing order
	limits.MaxPositionsPerInstrument = 2

	e := New(paper, cfg, limits, portfolio.Config{InitialCapital: 1_000_000}, logger.NewNop())
	e.Start()
	t.Cleanup(e.Stop)
	return e, paper
}

func fillOrder(t *testing.T, e *Engine, paper *execution.PaperExecutor, orderID string, price float64) {
	t.Helper()

	require.Eventually(t, func() bool {
		record := e.Orders().GetRecord(orderID)
		return record != nil && record.ExchangeOrderID != ""
	}, 2*time.Second, 5*time.Millisecond)

	record := e.Orders().GetRecord(orderID)
	require.NoError(t, paper.Fill(record.ExchangeOrderID, record.Order.Quantity, price))

	require.Eventually(t, func() bool {
		o := e.Orders().GetOrder(orderID)
		return o != nil && o.Status == contracts.StatusComplete
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSignalFlowsToLedger(t *testing.T) {
	e, paper := newTestEngine(t)

	id, err := e.SubmitSignal(contracts.Signal{
		Instrument: "RELIANCE",
		Side:       contracts.SideBuy,
		Kind:       contracts.KindLimit,
		Quantity:   100,
		Price:      2500,
		StrategyID: "sma_cross",
	})
	require.NoError(t, err)

	fillOrder(t, e, paper, id, 2500)

	require.Eventually(t, func() bool {
		return e.Portfolio().GetPosition("RELIANCE") != nil
	}, 2*time.Second, 5*time.Millisecond)

	pos := e.Portfolio().GetPosition("RELIANCE")
	assert.Equal(t, 100, pos.Quantity)
	assert.InDelta(t, 2500.0, pos.AveragePrice, 1e-9)
	assert.InDelta(t, 750_000.0, e.Portfolio().GetCash(), 1e-9)

	// Position count flows into risk admission
	status := e.Risk().GetStatus()
	assert.Equal(t, 1, status.OpenPositionCount)
}

func TestSignalRejectedByRisk(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Risk().TriggerEmergencyStop("operator halt")

	_, err := e.SubmitSignal(contracts.Signal{
		Instrument: "RELIANCE",
		Side:       contracts.SideBuy,
		Kind:       contracts.KindLimit,
		Quantity:   10,
		Price:      2500,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "risk admission rejected")
	assert.Equal(t, 0, e.Orders().GetStatistics().TotalOrders)
}

func TestSignalAutoSizing(t *testing.T) {
	e, _ := newTestEngine(t)

	// risk 1% of 1,000,000 = 10,000; stop 2% of 500 = 10/share -> 1000
	id, err := e.SubmitSignal(contracts.Signal{
		Instrument: "INFY",
		Side:       contracts.SideBuy,
		Kind:       contracts.KindLimit,
		Price:      500,
	})
	require.NoError(t, err)

	o := e.Orders().GetOrder(id)
	assert.Equal(t, 1000, o.Quantity)
}

func TestRealizedLossFeedsDailyLimit(t *testing.T) {
	e, paper := newTestEngine(t)
	limits := e.Risk()

	buy, err := e.SubmitSignal(contracts.Signal{
		Instrument: "TCS", Side: contracts.SideBuy, Kind: contracts.KindLimit,
		Quantity: 100, Price: 3500,
	})
	require.NoError(t, err)
	fillOrder(t, e, paper, buy, 3500)

	require.Eventually(t, func() bool {
		return e.Portfolio().GetPosition("TCS") != nil
	}, 2*time.Second, 5*time.Millisecond)

	// Close at a 120/share loss: -12,000 breaches the 10,000 daily cap
	sell, err := e.SubmitSignal(contracts.Signal{
		Instrument: "TCS", Side: contracts.SideSell, Kind: contracts.KindLimit,
		Quantity: 100, Price: 3380,
	})
	require.NoError(t, err)
	fillOrder(t, e, paper, sell, 3380)

	require.Eventually(t, func() bool {
		return limits.IsEmergencyStopActive()
	}, 2*time.Second, 5*time.Millisecond)

	metrics := limits.GetDailyMetrics()
	assert.InDelta(t, -12_000.0, metrics.PnL, 1e-9)
	assert.Equal(t, risk.StopDailyLossLimit, limits.GetStatus().StopReason)
}

func TestMarkPricesUpdatesRisk(t *testing.T) {
	e, paper := newTestEngine(t)

	id, err := e.SubmitSignal(contracts.Signal{
		Instrument: "INFY", Side: contracts.SideBuy, Kind: contracts.KindLimit,
		Quantity: 100, Price: 1000,
	})
	require.NoError(t, err)
	fillOrder(t, e, paper, id, 1000)

	require.Eventually(t, func() bool {
		return e.Portfolio().GetPosition("INFY") != nil
	}, 2*time.Second, 5*time.Millisecond)

	e.MarkPrices(map[string]float64{"INFY": 900})

	dd := e.Risk().GetDrawdownMetrics()
	assert.InDelta(t, 1.0, dd.CurrentDrawdown, 1e-9)
	assert.InDelta(t, 990_000.0, dd.PortfolioValue, 1e-9)
}

func TestStatusAggregation(t *testing.T) {
	e, _ := newTestEngine(t)

	status := e.GetStatus()
	assert.InDelta(t, 1_000_000.0, status.Portfolio.TotalValue, 1e-9)
	assert.False(t, status.Risk.EmergencyStopActive)
	assert.Equal(t, 0, status.Orders.TotalOrders)
}
