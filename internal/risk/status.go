package risk

import (
	"time"
)

// Status is a point-in-time projection of the risk state for observers
type Status struct {
	Timestamp           time.Time  `json:"timestamp"`
	PortfolioValue      float64    `json:"portfolio_value"`
	PeakValue           float64    `json:"peak_value"`
	DailyPnL            float64    `json:"daily_pnl"`
	DailyLossRemaining  float64    `json:"daily_loss_remaining"`
	CurrentDrawdown     float64    `json:"current_drawdown_percent"`
	MaxDrawdown         float64    `json:"max_drawdown_percent"`
	OpenPositionCount   int        `json:"open_position_count"`
	EmergencyStopActive bool       `json:"emergency_stop_active"`
	StopReason          StopReason `json:"stop_reason,omitempty"`
	StopDetail          string     `json:"stop_detail,omitempty"`
}

// DailyMetrics summarizes the current trading day
type DailyMetrics struct {
	Date     time.Time `json:"date"`
	PnL      float64   `json:"pnl"`
	Trades   int       `json:"trades"`
	Wins     int       `json:"wins"`
	Losses   int       `json:"losses"`
	WinRate  float64   `json:"win_rate"`
	LossCap  float64   `json:"loss_cap"`
	Breached bool      `json:"breached"`
}

// DrawdownMetrics summarizes the drawdown state
type DrawdownMetrics struct {
	PortfolioValue  float64   `json:"portfolio_value"`
	PeakValue       float64   `json:"peak_value"`
	PeakDate        time.Time `json:"peak_date"`
	CurrentDrawdown float64   `json:"current_drawdown_percent"`
	MaxDrawdown     float64   `json:"max_drawdown_percent"`
	StopThreshold   float64   `json:"stop_threshold_percent"`
}

// GetStatus returns the full risk projection
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rolloverLocked(time.Now())

	status := Status{
		Timestamp:           time.Now(),
		PortfolioValue:      m.portfolioValue,
		PeakValue:           m.peakValue,
		DailyPnL:            m.dailyPnL,
		CurrentDrawdown:     m.currentDrawdown,
		MaxDrawdown:         m.maxDrawdown,
		EmergencyStopActive: m.stopActive,
	}
	if m.limits.MaxDailyLoss > 0 {
		status.DailyLossRemaining = m.limits.MaxDailyLoss + m.dailyPnL
		if status.DailyLossRemaining < 0 {
			status.DailyLossRemaining = 0
		}
	}
	for _, count := range m.positionCounts {
		status.OpenPositionCount += count
	}
	if m.stopActive {
		status.StopReason = m.stopEvent.Reason
		status.StopDetail = m.stopEvent.Detail
	}
	return status
}

// GetDailyMetrics returns the current day's realized trading summary
func (m *Manager) GetDailyMetrics() DailyMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rolloverLocked(time.Now())

	metrics := DailyMetrics{
		Date:     m.dailyDate,
		PnL:      m.dailyPnL,
		Trades:   m.dailyTrades,
		Wins:     m.dailyWins,
		Losses:   m.dailyLosses,
		LossCap:  m.limits.MaxDailyLoss,
		Breached: m.limits.MaxDailyLoss > 0 && m.dailyPnL <= -m.limits.MaxDailyLoss,
	}
	if decided := m.dailyWins + m.dailyLosses; decided > 0 {
		metrics.WinRate = float64(m.dailyWins) / float64(decided) * 100
	}
	return metrics
}

// GetDrawdownMetrics returns the drawdown projection
func (m *Manager) GetDrawdownMetrics() DrawdownMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	return DrawdownMetrics{
		PortfolioValue:  m.portfolioValue,
		PeakValue:       m.peakValue,
		PeakDate:        m.peakDate,
		CurrentDrawdown: m.currentDrawdown,
		MaxDrawdown:     m.maxDrawdown,
		StopThreshold:   drawdownStopPercent,
	}
}
