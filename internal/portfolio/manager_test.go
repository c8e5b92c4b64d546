package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/talos/internal/contracts"
	"github.com/wonny/talos/pkg/logger"
)

func newTestManager() *Manager {
	return NewManager(Config{InitialCapital: 1_000_000}, logger.NewNop())
}

func trade(instrument string, side contracts.OrderSide, qty int, price float64) contracts.Trade {
	return contracts.Trade{
		Instrument: instrument,
		Side:       side,
		Quantity:   qty,
		Price:      price,
	}
}

func TestBuyOpensPosition(t *testing.T) {
	m := newTestManager()

	require.NoError(t, m.UpdatePosition(trade("RELIANCE", contracts.SideBuy, 100, 2500)))

	pos := m.GetPosition("RELIANCE")
	require.NotNil(t, pos)
	assert.Equal(t, 100, pos.Quantity)
	assert.InDelta(t, 2500.0, pos.AveragePrice, 1e-9)
	assert.InDelta(t, 750_000.0, m.GetCash(), 1e-9)
}

func TestBuyAveragesUp(t *testing.T) {
	m := newTestManager()

	require.NoError(t, m.UpdatePosition(trade("INFY", contracts.SideBuy, 100, 1500)))
	require.NoError(t, m.UpdatePosition(trade("INFY", contracts.SideBuy, 50, 1530)))

	pos := m.GetPosition("INFY")
	assert.Equal(t, 150, pos.Quantity)
	assert.InDelta(t, 1510.0, pos.AveragePrice, 1e-9)
}

func TestSellRealizesKeepingCostBasis(t *testing.T) {
	m := newTestManager()

	require.NoError(t, m.UpdatePosition(trade("INFY", contracts.SideBuy, 100, 500)))
	require.NoError(t, m.UpdatePosition(trade("INFY", contracts.SideSell, 40, 550)))

	pos := m.GetPosition("INFY")
	assert.Equal(t, 60, pos.Quantity)
	assert.InDelta(t, 500.0, pos.AveragePrice, 1e-9, "reduction keeps cost basis")
	assert.InDelta(t, 2000.0, pos.RealizedPnL, 1e-9)

	summary := m.GetSummary()
	assert.InDelta(t, 2000.0, summary.RealizedPnL, 1e-9)
	assert.Equal(t, 1, summary.WinningTrades)
}

func TestFullCloseArchivesPosition(t *testing.T) {
	m := newTestManager()

	require.NoError(t, m.UpdatePosition(trade("TCS", contracts.SideBuy, 10, 3500)))
	require.NoError(t, m.UpdatePosition(trade("TCS", contracts.SideSell, 10, 3400)))

	assert.Nil(t, m.GetPosition("TCS"))

	closed := m.GetClosedPositions()
	require.Len(t, closed, 1)
	assert.Equal(t, "TCS", closed[0].Instrument)
	assert.Equal(t, 10, closed[0].Quantity)
	assert.InDelta(t, 3500.0, closed[0].EntryPrice, 1e-9)
	assert.InDelta(t, 3400.0, closed[0].ExitPrice, 1e-9)
	assert.InDelta(t, -1000.0, closed[0].RealizedPnL, 1e-9)

	summary := m.GetSummary()
	assert.Equal(t, 1, summary.LosingTrades)
	assert.InDelta(t, -1000.0, summary.WorstTrade, 1e-9)
	// 전량 매도 후 현금은 손실만큼 감소
	assert.InDelta(t, 999_000.0, m.GetCash(), 1e-9)
}

func TestReversalCrossesZero(t *testing.T) {
	m := newTestManager()

	require.NoError(t, m.UpdatePosition(trade("INFY", contracts.SideBuy, 100, 500)))
	require.NoError(t, m.UpdatePosition(trade("INFY", contracts.SideSell, 150, 550)))

	pos := m.GetPosition("INFY")
	require.NotNil(t, pos)
	assert.Equal(t, -50, pos.Quantity)
	assert.InDelta(t, 550.0, pos.AveragePrice, 1e-9, "new cost basis at the reversal price")
	assert.InDelta(t, 5000.0, pos.RealizedPnL, 1e-9)

	// Only the closed 100 shares realized; the short 50 are open
	summary := m.GetSummary()
	assert.InDelta(t, 5000.0, summary.RealizedPnL, 1e-9)
}

func TestShortPositionPnL(t *testing.T) {
	m := newTestManager()

	require.NoError(t, m.UpdatePosition(trade("SBIN", contracts.SideSell, 100, 600)))
	pos := m.GetPosition("SBIN")
	assert.Equal(t, -100, pos.Quantity)
	assert.InDelta(t, 600.0, pos.AveragePrice, 1e-9)

	// Cover half at a lower price: profit for a short
	require.NoError(t, m.UpdatePosition(trade("SBIN", contracts.SideBuy, 50, 580)))
	pos = m.GetPosition("SBIN")
	assert.Equal(t, -50, pos.Quantity)
	assert.InDelta(t, 1000.0, pos.RealizedPnL, 1e-9)
}

func TestBuyBeyondCashIsRecorded(t *testing.T) {
	m := NewManager(Config{InitialCapital: 1000}, logger.NewNop())

	// The venue already filled this trade; the ledger must reflect it
	// even when cash goes negative
	require.NoError(t, m.UpdatePosition(trade("RELIANCE", contracts.SideBuy, 100, 100)))

	pos := m.GetPosition("RELIANCE")
	require.NotNil(t, pos)
	assert.Equal(t, 100, pos.Quantity)
	assert.InDelta(t, -9000.0, m.GetCash(), 1e-9)
	assert.Equal(t, 1, m.GetSummary().TotalTrades)
}

func TestShortPositionCountsTowardValue(t *testing.T) {
	m := NewManager(Config{InitialCapital: 100_000}, logger.NewNop())

	require.NoError(t, m.UpdatePosition(trade("SBIN", contracts.SideSell, 50, 100)))

	// Cash 105,000 plus |{-50}| * 100 exposure
	assert.InDelta(t, 105_000.0, m.GetCash(), 1e-9)
	assert.InDelta(t, 110_000.0, m.GetPortfolioValue(), 1e-9)
}

func TestCommissionAndTax(t *testing.T) {
	m := NewManager(Config{
		InitialCapital: 1_000_000,
		CommissionRate: 0.001,
		TaxRate:        0.0005,
	}, logger.NewNop())

	require.NoError(t, m.UpdatePosition(trade("INFY", contracts.SideBuy, 100, 1000)))
	// 100,000 notional + 100 commission; tax applies to sells only
	assert.InDelta(t, 899_900.0, m.GetCash(), 1e-9)

	// Costs accumulate on the position itself
	pos := m.GetPosition("INFY")
	assert.InDelta(t, 100.0, pos.TotalCommission, 1e-9)
	assert.Zero(t, pos.TotalTax)

	require.NoError(t, m.UpdatePosition(trade("INFY", contracts.SideSell, 100, 1000)))
	// +100,000 - 100 commission - 50 tax
	assert.InDelta(t, 999_750.0, m.GetCash(), 1e-9)

	summary := m.GetSummary()
	assert.InDelta(t, 200.0, summary.TotalCommission, 1e-9)
	assert.InDelta(t, 50.0, summary.TotalTax, 1e-9)

	snapshot := m.CreateSnapshot()
	assert.InDelta(t, 200.0, snapshot.TotalCommission, 1e-9)
	assert.InDelta(t, 50.0, snapshot.TotalTax, 1e-9)
}

func TestPositionCarriesStrategyAndHistory(t *testing.T) {
	m := newTestManager()

	first := trade("INFY", contracts.SideBuy, 100, 1000)
	first.StrategyID = "sma_cross"
	require.NoError(t, m.UpdatePosition(first))
	require.NoError(t, m.UpdatePosition(trade("INFY", contracts.SideSell, 40, 1050)))

	pos := m.GetPosition("INFY")
	require.NotNil(t, pos)
	assert.Equal(t, "sma_cross", pos.StrategyID)
	require.Len(t, pos.History, 2)
	assert.Equal(t, contracts.SideBuy, pos.History[0].Side)
	assert.Equal(t, 40, pos.History[1].Quantity)
}

func TestExplicitCommissionPreserved(t *testing.T) {
	m := NewManager(Config{InitialCapital: 1_000_000, CommissionRate: 0.001}, logger.NewNop())

	tr := trade("INFY", contracts.SideBuy, 100, 1000)
	tr.Commission = 40
	require.NoError(t, m.UpdatePosition(tr))

	assert.InDelta(t, 899_960.0, m.GetCash(), 1e-9)
	assert.InDelta(t, 40.0, m.GetSummary().TotalCommission, 1e-9)
}

func TestInvalidTradeRejected(t *testing.T) {
	m := newTestManager()

	require.Error(t, m.UpdatePosition(trade("INFY", contracts.SideBuy, 0, 1000)))
	require.Error(t, m.UpdatePosition(trade("INFY", contracts.SideBuy, 10, 0)))
}

func TestValuationTracksMarketPrices(t *testing.T) {
	m := newTestManager()

	require.NoError(t, m.UpdatePosition(trade("INFY", contracts.SideBuy, 100, 1000)))
	assert.InDelta(t, 1_000_000.0, m.GetPortfolioValue(), 1e-9)

	m.UpdateMarketPrice("INFY", 1050)
	assert.InDelta(t, 1_005_000.0, m.GetPortfolioValue(), 1e-9)

	pos := m.GetPosition("INFY")
	assert.InDelta(t, 5000.0, pos.UnrealizedPnL(), 1e-9)

	m.UpdateMarketPrices(map[string]float64{"INFY": 990, "UNKNOWN": 10})
	assert.InDelta(t, 999_000.0, m.GetPortfolioValue(), 1e-9)
}

func TestSnapshots(t *testing.T) {
	m := newTestManager()

	require.NoError(t, m.UpdatePosition(trade("INFY", contracts.SideBuy, 100, 1000)))
	m.UpdateMarketPrice("INFY", 1100)

	snapshot := m.CreateSnapshot()
	assert.InDelta(t, 900_000.0, snapshot.Cash, 1e-9)
	assert.InDelta(t, 110_000.0, snapshot.PositionValue, 1e-9)
	assert.InDelta(t, 1_010_000.0, snapshot.TotalValue, 1e-9)
	assert.InDelta(t, 10_000.0, snapshot.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 1.0, snapshot.ReturnPercent, 1e-9)
	assert.Equal(t, 1, snapshot.OpenPositions)

	m.CreateSnapshot()
	m.CreateSnapshot()
	assert.Len(t, m.GetSnapshots(0), 3)
	assert.Len(t, m.GetSnapshots(2), 2)
}

func TestGetTradesLimit(t *testing.T) {
	m := newTestManager()

	for i := 0; i < 5; i++ {
		require.NoError(t, m.UpdatePosition(trade("INFY", contracts.SideBuy, 1, 1000)))
	}

	assert.Len(t, m.GetTrades(0), 5)
	last := m.GetTrades(2)
	assert.Len(t, last, 2)
}

func TestReset(t *testing.T) {
	m := newTestManager()

	require.NoError(t, m.UpdatePosition(trade("INFY", contracts.SideBuy, 100, 1000)))
	require.NoError(t, m.UpdatePosition(trade("INFY", contracts.SideSell, 100, 1100)))

	m.Reset()

	assert.InDelta(t, 1_000_000.0, m.GetCash(), 1e-9)
	assert.Empty(t, m.GetPositions())
	assert.Empty(t, m.GetClosedPositions())
	assert.Empty(t, m.GetTrades(0))

	summary := m.GetSummary()
	assert.Zero(t, summary.RealizedPnL)
	assert.Zero(t, summary.TotalTrades)
}
