package portfolio

import (
	"fmt"
	"sync"
	"time"

	"github.com/wonny/talos/internal/contracts"
	"github.com/wonny/talos/pkg/logger"
)

// Config holds the ledger parameters
type Config struct {
	InitialCapital float64
	CommissionRate float64
	TaxRate        float64
}

// Manager owns the portfolio ledger
// ⭐ SSOT: 현금/포지션/손익의 단일 진실 원천
type Manager struct {
	cfg    Config
	logger *logger.Logger

	mu        sync.Mutex
	cash      float64
	positions map[string]*Position
	closed    []ClosedPosition
	trades    []contracts.Trade
	snapshots []Snapshot

	realizedPnL     float64
	totalCommission float64
	totalTax        float64
	winningTrades   int
	losingTrades    int
	bestTrade       float64
	worstTrade      float64
}

// NewManager creates the ledger with the configured starting capital
func NewManager(cfg Config, log *logger.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		logger:    log.WithComponent("portfolio_manager"),
		cash:      cfg.InitialCapital,
		positions: make(map[string]*Position),
	}
}

// UpdatePosition applies one completed trade to the ledger: cash,
// commission and tax, cost basis, realized PnL, and the closed archive.
// 이미 체결된 거래는 무조건 기록한다. 현금은 음수가 될 수 있다.
func (m *Manager) UpdatePosition(trade contracts.Trade) error {
	if trade.Quantity <= 0 {
		return fmt.Errorf("trade quantity must be positive, got %d", trade.Quantity)
	}
	if trade.Price <= 0 {
		return fmt.Errorf("trade price must be positive, got %.4f", trade.Price)
	}
	if trade.Timestamp.IsZero() {
		trade.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	notional := trade.Notional()
	if trade.Commission == 0 && m.cfg.CommissionRate > 0 {
		trade.Commission = notional * m.cfg.CommissionRate
	}
	if trade.Tax == 0 && m.cfg.TaxRate > 0 && trade.Side == contracts.SideSell {
		trade.Tax = notional * m.cfg.TaxRate
	}

	if trade.Side == contracts.SideBuy {
		m.cash -= notional + trade.Commission + trade.Tax
	} else {
		m.cash += notional - trade.Commission - trade.Tax
	}
	if m.cash < 0 {
		m.logger.WithFields(map[string]interface{}{
			"instrument": trade.Instrument,
			"cash":       m.cash,
		}).Warn("Cash balance went negative")
	}

	m.totalCommission += trade.Commission
	m.totalTax += trade.Tax

	m.applyTradeLocked(trade)
	m.trades = append(m.trades, trade)

	m.logger.WithFields(map[string]interface{}{
		"instrument": trade.Instrument,
		"side":       trade.Side,
		"quantity":   trade.Quantity,
		"price":      trade.Price,
		"cash":       m.cash,
	}).Info("Trade applied to ledger")

	return nil
}

// applyTradeLocked folds the trade into the position book. Must hold
// m.mu.
func (m *Manager) applyTradeLocked(trade contracts.Trade) {
	signedQty := trade.Quantity
	if trade.Side == contracts.SideSell {
		signedQty = -signedQty
	}

	pos, ok := m.positions[trade.Instrument]
	if !ok {
		pos = &Position{
			Instrument:   trade.Instrument,
			StrategyID:   trade.StrategyID,
			AveragePrice: trade.Price,
			CurrentPrice: trade.Price,
			OpenedAt:     trade.Timestamp,
		}
		m.positions[trade.Instrument] = pos
	}

	oldQty := pos.Quantity
	newQty := oldQty + signedQty

	switch {
	case oldQty == 0:
		pos.AveragePrice = trade.Price
	case (oldQty > 0) == (signedQty > 0):
		// 같은 방향 증가: 가중평균
		totalCost := float64(abs(oldQty))*pos.AveragePrice + float64(abs(signedQty))*trade.Price
		pos.AveragePrice = totalCost / float64(abs(newQty))
	default:
		// Reduction: realize PnL on the reduced quantity
		reduced := min(abs(signedQty), abs(oldQty))
		var pnl float64
		if oldQty > 0 {
			pnl = float64(reduced) * (trade.Price - pos.AveragePrice)
		} else {
			pnl = float64(reduced) * (pos.AveragePrice - trade.Price)
		}
		pos.RealizedPnL += pnl
		m.realizedPnL += pnl
		m.recordTradeResultLocked(pnl)

		if newQty != 0 && (newQty > 0) != (oldQty > 0) {
			// 방향 반전: 신규 원가 = 체결가
			pos.AveragePrice = trade.Price
		}
	}

	pos.Quantity = newQty
	pos.CurrentPrice = trade.Price
	pos.TotalCommission += trade.Commission
	pos.TotalTax += trade.Tax
	pos.Trades++
	pos.History = append(pos.History, trade)
	pos.UpdatedAt = trade.Timestamp

	if newQty == 0 {
		m.closed = append(m.closed, ClosedPosition{
			Instrument:  pos.Instrument,
			Quantity:    abs(oldQty),
			EntryPrice:  pos.AveragePrice,
			ExitPrice:   trade.Price,
			RealizedPnL: pos.RealizedPnL,
			Trades:      pos.Trades,
			OpenedAt:    pos.OpenedAt,
			ClosedAt:    trade.Timestamp,
		})
		delete(m.positions, trade.Instrument)

		m.logger.WithFields(map[string]interface{}{
			"instrument":   pos.Instrument,
			"realized_pnl": pos.RealizedPnL,
		}).Info("Position closed")
	}
}

// recordTradeResultLocked tracks win/loss counters and the best/worst
// realized result. Must hold m.mu.
func (m *Manager) recordTradeResultLocked(pnl float64) {
	if pnl > 0 {
		m.winningTrades++
	} else if pnl < 0 {
		m.losingTrades++
	}
	if pnl > m.bestTrade {
		m.bestTrade = pnl
	}
	if pnl < m.worstTrade {
		m.worstTrade = pnl
	}
}

// UpdateMarketPrice refreshes the mark for one instrument
func (m *Manager) UpdateMarketPrice(instrument string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pos, ok := m.positions[instrument]; ok {
		pos.CurrentPrice = price
		pos.UpdatedAt = time.Now()
	}
}

// UpdateMarketPrices refreshes marks in bulk
func (m *Manager) UpdateMarketPrices(prices map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for instrument, price := range prices {
		if pos, ok := m.positions[instrument]; ok {
			pos.CurrentPrice = price
			pos.UpdatedAt = now
		}
	}
}

// GetPortfolioValue returns cash plus marked position value
func (m *Manager) GetPortfolioValue() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalValueLocked()
}

func (m *Manager) totalValueLocked() float64 {
	value := m.cash
	for _, pos := range m.positions {
		value += pos.MarketValue()
	}
	return value
}

func (m *Manager) unrealizedLocked() float64 {
	var total float64
	for _, pos := range m.positions {
		total += pos.UnrealizedPnL()
	}
	return total
}

// GetCash returns the available cash balance
func (m *Manager) GetCash() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cash
}

// GetPosition returns a copy of one open position, or nil
func (m *Manager) GetPosition(instrument string) *Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[instrument]
	if !ok {
		return nil
	}
	copied := *pos
	copied.History = append([]contracts.Trade(nil), pos.History...)
	return &copied
}

// GetPositions returns copies of all open positions
func (m *Manager) GetPositions() []Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Position, 0, len(m.positions))
	for _, pos := range m.positions {
		copied := *pos
		copied.History = append([]contracts.Trade(nil), pos.History...)
		out = append(out, copied)
	}
	return out
}

// GetClosedPositions returns the closed position archive
func (m *Manager) GetClosedPositions() []ClosedPosition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ClosedPosition(nil), m.closed...)
}

// GetTrades returns the most recent trades, newest last. A non-positive
// limit returns everything.
func (m *Manager) GetTrades(limit int) []contracts.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 || limit >= len(m.trades) {
		return append([]contracts.Trade(nil), m.trades...)
	}
	return append([]contracts.Trade(nil), m.trades[len(m.trades)-limit:]...)
}

// CreateSnapshot records and returns a point-in-time valuation
func (m *Manager) CreateSnapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := m.totalValueLocked()
	unrealized := m.unrealizedLocked()
	snapshot := Snapshot{
		Timestamp:       time.Now(),
		Cash:            m.cash,
		PositionValue:   total - m.cash,
		TotalValue:      total,
		RealizedPnL:     m.realizedPnL,
		UnrealizedPnL:   unrealized,
		TotalPnL:        m.realizedPnL + unrealized,
		TotalCommission: m.totalCommission,
		TotalTax:        m.totalTax,
		OpenPositions:   len(m.positions),
	}
	if m.cfg.InitialCapital > 0 {
		snapshot.ReturnPercent = (total - m.cfg.InitialCapital) / m.cfg.InitialCapital * 100
	}
	m.snapshots = append(m.snapshots, snapshot)
	return snapshot
}

// GetSnapshots returns the most recent snapshots, oldest first. A
// non-positive limit returns everything.
func (m *Manager) GetSnapshots(limit int) []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 || limit >= len(m.snapshots) {
		return append([]Snapshot(nil), m.snapshots...)
	}
	return append([]Snapshot(nil), m.snapshots[len(m.snapshots)-limit:]...)
}

// GetSummary aggregates the whole ledger
func (m *Manager) GetSummary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := m.totalValueLocked()
	unrealized := m.unrealizedLocked()
	summary := Summary{
		InitialCapital:  m.cfg.InitialCapital,
		Cash:            m.cash,
		PositionValue:   total - m.cash,
		TotalValue:      total,
		RealizedPnL:     m.realizedPnL,
		UnrealizedPnL:   unrealized,
		TotalPnL:        m.realizedPnL + unrealized,
		OpenPositions:   len(m.positions),
		ClosedPositions: len(m.closed),
		TotalTrades:     len(m.trades),
		TotalCommission: m.totalCommission,
		TotalTax:        m.totalTax,
		WinningTrades:   m.winningTrades,
		LosingTrades:    m.losingTrades,
		BestTrade:       m.bestTrade,
		WorstTrade:      m.worstTrade,
	}
	if m.cfg.InitialCapital > 0 {
		summary.ReturnPercent = (total - m.cfg.InitialCapital) / m.cfg.InitialCapital * 100
	}
	if decided := m.winningTrades + m.losingTrades; decided > 0 {
		summary.WinRate = float64(m.winningTrades) / float64(decided) * 100
	}
	return summary
}

// Reset restores the ledger to its initial state. 백테스트 반복 실행용.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cash = m.cfg.InitialCapital
	m.positions = make(map[string]*Position)
	m.closed = nil
	m.trades = nil
	m.snapshots = nil
	m.realizedPnL = 0
	m.totalCommission = 0
	m.totalTax = 0
	m.winningTrades = 0
	m.losingTrades = 0
	m.bestTrade = 0
	m.worstTrade = 0

	m.logger.Warn("Portfolio ledger reset")
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
