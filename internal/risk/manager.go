// Package risk implements pre-trade admission control, daily loss
// limits, drawdown tracking, and the emergency stop latch.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/wonny/talos/internal/contracts"
	"github.com/wonny/talos/pkg/logger"
)

// drawdownStopPercent is the drawdown level at which enforcement latches
// the emergency stop
const drawdownStopPercent = 20.0

// marginRateStop is the margin fraction reserved for stop orders; plain
// market/limit orders reserve full notional
const marginRateStop = 0.25

// Limits holds the configured risk boundaries
// ⭐ SSOT: 리스크 한도는 여기에만
type Limits struct {
	MaxDailyLoss              float64
	MaxPositionSizePercent    float64
	RiskPerTradePercent       float64
	StopLossPercent           float64
	MaxPositionsPerInstrument int
	EmergencyStopEnabled      bool
}

// DefaultLimits returns conservative boundaries for paper trading
func DefaultLimits() Limits {
	return Limits{
		MaxDailyLoss:              10000,
		MaxPositionSizePercent:    10,
		RiskPerTradePercent:       1,
		StopLossPercent:           2,
		MaxPositionsPerInstrument: 1,
		EmergencyStopEnabled:      true,
	}
}

// ValidationResult is the structured outcome of an admission check.
// 거부 사유는 Reason 에 담아 값으로 반환한다.
type ValidationResult struct {
	Approved       bool    `json:"approved"`
	Reason         string  `json:"reason,omitempty"`
	RequiredMargin float64 `json:"required_margin"`

	// SuggestedQuantity is a corrected quantity sized to the available
	// funds at the current price, set on margin and size-ceiling
	// rejections
	SuggestedQuantity int `json:"suggested_quantity,omitempty"`
}

// StopReason classifies why the emergency stop latched
type StopReason string

const (
	StopDailyLossLimit StopReason = "DAILY_LOSS_LIMIT"
	StopMaxDrawdown    StopReason = "MAX_DRAWDOWN"
	StopManual         StopReason = "MANUAL"
	StopSystemError    StopReason = "SYSTEM_ERROR"
)

// StopEvent is delivered to emergency stop observers
type StopEvent struct {
	Reason    StopReason `json:"reason"`
	Detail    string     `json:"detail"`
	Timestamp time.Time  `json:"timestamp"`
}

// StopCallback observes emergency stop transitions
type StopCallback func(StopEvent)

// Manager is the risk admission controller
type Manager struct {
	limits Limits
	logger *logger.Logger

	mu sync.Mutex

	portfolioValue  float64
	peakValue       float64
	peakDate        time.Time
	maxDrawdown     float64
	currentDrawdown float64

	dailyDate   time.Time
	dailyPnL    float64
	dailyTrades int
	dailyWins   int
	dailyLosses int

	positionCounts map[string]int

	stopActive bool
	stopEvent  StopEvent

	stopCallbacks []StopCallback
}

// NewManager creates a risk manager seeded with the starting portfolio
// value
func NewManager(limits Limits, initialValue float64, log *logger.Logger) *Manager {
	return &Manager{
		limits:         limits,
		logger:         log.WithComponent("risk_manager"),
		portfolioValue: initialValue,
		peakValue:      initialValue,
		peakDate:       time.Now(),
		dailyDate:      dateOf(time.Now()),
		positionCounts: make(map[string]int),
	}
}

// ValidateOrder runs the admission rule chain, short-circuiting on the
// first violation. availableMargin is the cash the caller can commit.
func (m *Manager) ValidateOrder(order *contracts.Order, currentPrice, availableMargin float64) ValidationResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rolloverLocked(time.Now())

	// 1. Emergency stop
	if m.stopActive {
		return ValidationResult{Reason: fmt.Sprintf("emergency stop active: %s", m.stopEvent.Reason)}
	}

	// 2. Daily loss limit
	if m.limits.MaxDailyLoss > 0 && m.dailyPnL <= -m.limits.MaxDailyLoss {
		return ValidationResult{Reason: fmt.Sprintf("daily loss limit reached: %.2f", m.dailyPnL)}
	}

	// 3. Per-instrument position count
	if m.limits.MaxPositionsPerInstrument > 0 {
		if m.positionCounts[order.Instrument] >= m.limits.MaxPositionsPerInstrument {
			return ValidationResult{Reason: fmt.Sprintf(
				"max positions reached for %s (%d)", order.Instrument, m.limits.MaxPositionsPerInstrument)}
		}
	}

	// 4. Margin requirement: full notional for MARKET/LIMIT, fractional
	// for stop orders
	notional := order.Notional(currentPrice)
	required := notional
	if order.Kind == contracts.KindStop || order.Kind == contracts.KindStopMarket {
		required = notional * marginRateStop
	}
	if required > availableMargin {
		return ValidationResult{
			Reason:            fmt.Sprintf("insufficient margin: required %.2f, available %.2f", required, availableMargin),
			RequiredMargin:    required,
			SuggestedQuantity: affordableQuantity(availableMargin, currentPrice),
		}
	}

	// 5. Position size ceiling as a fraction of portfolio value
	if m.limits.MaxPositionSizePercent > 0 && m.portfolioValue > 0 {
		maxNotional := m.portfolioValue * m.limits.MaxPositionSizePercent / 100
		if notional > maxNotional {
			return ValidationResult{
				Reason: fmt.Sprintf(
					"position size %.2f exceeds limit %.2f (%.1f%% of portfolio)",
					notional, maxNotional, m.limits.MaxPositionSizePercent),
				RequiredMargin:    required,
				SuggestedQuantity: affordableQuantity(maxNotional, currentPrice),
			}
		}
	}

	return ValidationResult{Approved: true, RequiredMargin: required}
}

// affordableQuantity is the largest whole quantity fundable at the
// current price
func affordableQuantity(funds, price float64) int {
	if price <= 0 {
		return 0
	}
	return int(funds / price)
}

// CalculatePositionSize sizes an entry so the loss at the stop equals
// the risked fraction of capital, capped by affordability
func (m *Manager) CalculatePositionSize(capital, price float64, req contracts.SizingRequest) int {
	if capital <= 0 || price <= 0 {
		return 0
	}

	riskPercent := req.RiskPercent
	if riskPercent <= 0 {
		riskPercent = m.limits.RiskPerTradePercent
	}
	stopPercent := req.StopLossPercent
	if stopPercent <= 0 {
		stopPercent = m.limits.StopLossPercent
	}
	if riskPercent <= 0 || stopPercent <= 0 {
		return 0
	}

	riskAmount := capital * riskPercent / 100
	riskPerShare := price * stopPercent / 100
	quantity := int(riskAmount / riskPerShare)
	if quantity < 1 {
		quantity = 1
	}

	if affordable := int(capital / price); quantity > affordable {
		quantity = affordable
	}
	return quantity
}

// UpdateDailyPnL folds one realized trade result into the daily ledger,
// rolling the window at calendar-date boundaries
func (m *Manager) UpdateDailyPnL(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rolloverLocked(time.Now())

	m.dailyPnL += pnl
	m.dailyTrades++
	if pnl > 0 {
		m.dailyWins++
	} else if pnl < 0 {
		m.dailyLosses++
	}

	m.logger.WithFields(map[string]interface{}{
		"trade_pnl": pnl,
		"daily_pnl": m.dailyPnL,
	}).Debug("Daily PnL updated")
}

// CheckDailyLimits reports whether the daily loss budget still has room
func (m *Manager) CheckDailyLimits() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rolloverLocked(time.Now())
	return m.limits.MaxDailyLoss <= 0 || m.dailyPnL > -m.limits.MaxDailyLoss
}

// UpdatePortfolioValue records the latest valuation, advancing the peak
// and the monotonic max drawdown
func (m *Manager) UpdatePortfolioValue(value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.portfolioValue = value
	m.updateDrawdownLocked(value)
}

// UpdateDrawdown folds a valuation into the drawdown tracker without
// touching the recorded portfolio value
func (m *Manager) UpdateDrawdown(value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateDrawdownLocked(value)
}

// updateDrawdownLocked advances the peak (only upward) and the max
// drawdown (monotonic). Must hold m.mu.
func (m *Manager) updateDrawdownLocked(value float64) {
	if value > m.peakValue {
		m.peakValue = value
		m.peakDate = time.Now()
	}
	if m.peakValue > 0 {
		m.currentDrawdown = (m.peakValue - value) / m.peakValue * 100
		if m.currentDrawdown > m.maxDrawdown {
			m.maxDrawdown = m.currentDrawdown
		}
	}
}

// CheckAndEnforceLimits verifies the daily loss budget and the drawdown
// ceiling, latching the emergency stop on violation. Returns true only
// when the stop is not latched and all limits hold.
func (m *Manager) CheckAndEnforceLimits() bool {
	m.mu.Lock()
	m.rolloverLocked(time.Now())

	// 이미 정지 상태면 항상 false
	if m.stopActive {
		m.mu.Unlock()
		return false
	}

	var event *StopEvent
	switch {
	case m.limits.MaxDailyLoss > 0 && m.dailyPnL <= -m.limits.MaxDailyLoss:
		event = &StopEvent{
			Reason: StopDailyLossLimit,
			Detail: fmt.Sprintf("daily pnl %.2f breached limit %.2f", m.dailyPnL, -m.limits.MaxDailyLoss),
		}
	case m.currentDrawdown >= drawdownStopPercent:
		event = &StopEvent{
			Reason: StopMaxDrawdown,
			Detail: fmt.Sprintf("drawdown %.2f%% breached limit %.1f%%", m.currentDrawdown, drawdownStopPercent),
		}
	}

	if event == nil {
		m.mu.Unlock()
		return true
	}

	if !m.limits.EmergencyStopEnabled {
		m.mu.Unlock()
		return false
	}

	event.Timestamp = time.Now()
	m.stopActive = true
	m.stopEvent = *event
	callbacks := append([]StopCallback(nil), m.stopCallbacks...)
	m.mu.Unlock()

	m.logger.WithFields(map[string]interface{}{
		"reason": event.Reason,
		"detail": event.Detail,
	}).Error("Emergency stop triggered")

	m.notify(callbacks, *event)
	return false
}

// TriggerEmergencyStop latches the stop manually. In-flight orders are
// left alone; only new admissions are refused.
func (m *Manager) TriggerEmergencyStop(detail string) {
	m.trigger(StopManual, detail)
}

// TriggerSystemStop latches the stop for internal failures that leave
// the books inconsistent
func (m *Manager) TriggerSystemStop(detail string) {
	m.trigger(StopSystemError, detail)
}

func (m *Manager) trigger(reason StopReason, detail string) {
	m.mu.Lock()
	if m.stopActive {
		m.mu.Unlock()
		return
	}
	event := StopEvent{Reason: reason, Detail: detail, Timestamp: time.Now()}
	m.stopActive = true
	m.stopEvent = event
	callbacks := append([]StopCallback(nil), m.stopCallbacks...)
	m.mu.Unlock()

	m.logger.WithFields(map[string]interface{}{
		"reason": reason,
		"detail": detail,
	}).Error("Emergency stop triggered")
	m.notify(callbacks, event)
}

// ClearEmergencyStop releases the latch
func (m *Manager) ClearEmergencyStop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.stopActive {
		return
	}
	m.stopActive = false
	m.stopEvent = StopEvent{}
	m.logger.Warn("Emergency stop cleared")
}

// IsEmergencyStopActive reports the latch state
func (m *Manager) IsEmergencyStopActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopActive
}

// OnEmergencyStop registers an observer for stop transitions
func (m *Manager) OnEmergencyStop(cb StopCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCallbacks = append(m.stopCallbacks, cb)
}

func (m *Manager) notify(callbacks []StopCallback, event StopEvent) {
	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.WithField("panic", r).Error("Stop callback panicked")
				}
			}()
			cb(event)
		}()
	}
}

// PositionOpened records a new open position on the instrument
func (m *Manager) PositionOpened(instrument string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionCounts[instrument]++
}

// PositionClosed records a position close on the instrument
func (m *Manager) PositionClosed(instrument string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.positionCounts[instrument] > 0 {
		m.positionCounts[instrument]--
	}
	if m.positionCounts[instrument] == 0 {
		delete(m.positionCounts, instrument)
	}
}

// rolloverLocked resets the daily window when the calendar date has
// advanced. Must hold m.mu.
func (m *Manager) rolloverLocked(now time.Time) {
	today := dateOf(now)
	if today.Equal(m.dailyDate) {
		return
	}

	m.logger.WithFields(map[string]interface{}{
		"closed_date": m.dailyDate.Format("2006-01-02"),
		"daily_pnl":   m.dailyPnL,
		"trades":      m.dailyTrades,
	}).Info("Daily risk window rolled over")

	m.dailyDate = today
	m.dailyPnL = 0
	m.dailyTrades = 0
	m.dailyWins = 0
	m.dailyLosses = 0
}

// ResetDaily forces a daily window reset, for scheduled jobs
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dailyDate = dateOf(time.Now())
	m.dailyPnL = 0
	m.dailyTrades = 0
	m.dailyWins = 0
	m.dailyLosses = 0
	m.logger.Info("Daily risk window reset")
}

func dateOf(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
