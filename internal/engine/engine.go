// Package engine composes the execution stack: signals are sized and
// admitted by the risk manager, routed through the order manager, and
// completed executions are fed back into the portfolio ledger and the
// risk state.
package engine

import (
	"fmt"
	"time"

	"github.com/wonny/talos/internal/contracts"
	"github.com/wonny/talos/internal/execution"
	"github.com/wonny/talos/internal/order"
	"github.com/wonny/talos/internal/portfolio"
	"github.com/wonny/talos/internal/risk"
	"github.com/wonny/talos/pkg/logger"
)

// Engine wires the order manager, risk manager, and portfolio ledger
// ⭐ 피드백 루프: 체결 → 원장 → 리스크 상태 갱신
type Engine struct {
	orders    *order.Manager
	risk      *risk.Manager
	portfolio *portfolio.Manager
	logger    *logger.Logger
}

// New builds an engine over the given executor
func New(executor execution.Executor, orderCfg order.Config, limits risk.Limits, portfolioCfg portfolio.Config, log *logger.Logger) *Engine {
	e := &Engine{
		orders:    order.NewManager(executor, orderCfg, log),
		risk:      risk.NewManager(limits, portfolioCfg.InitialCapital, log),
		portfolio: portfolio.NewManager(portfolioCfg, log),
		logger:    log.WithComponent("engine"),
	}

	e.orders.OnExecutionReport(e.onExecutionReport)
	e.risk.OnEmergencyStop(func(event risk.StopEvent) {
		// In-flight orders are left to run; only new admissions stop
		e.logger.WithFields(map[string]interface{}{
			"reason": event.Reason,
			"detail": event.Detail,
		}).Error("Emergency stop active, admissions halted")
	})

	return e
}

// Orders exposes the order manager for observers
func (e *Engine) Orders() *order.Manager { return e.orders }

// Risk exposes the risk manager for observers
func (e *Engine) Risk() *risk.Manager { return e.risk }

// Portfolio exposes the ledger for observers
func (e *Engine) Portfolio() *portfolio.Manager { return e.portfolio }

// Start launches the order manager's background loops
func (e *Engine) Start() {
	e.orders.Start()
	e.logger.Info("Engine started")
}

// Stop shuts the order manager down
func (e *Engine) Stop() {
	e.orders.Shutdown()
	e.logger.Info("Engine stopped")
}

// SubmitSignal sizes, admits, and routes one strategy signal. Returns
// the order id on acceptance.
func (e *Engine) SubmitSignal(signal contracts.Signal) (string, error) {
	quantity := signal.Quantity
	price := signal.Price
	if price <= 0 {
		// 시장가 신호는 추정가 필요. 마지막 체결가로 근사
		if pos := e.portfolio.GetPosition(signal.Instrument); pos != nil {
			price = pos.CurrentPrice
		}
	}
	if price <= 0 {
		return "", fmt.Errorf("no reference price for %s", signal.Instrument)
	}

	if quantity <= 0 {
		quantity = e.risk.CalculatePositionSize(e.portfolio.GetCash(), price, signal.Sizing)
		if quantity <= 0 {
			return "", fmt.Errorf("position sizing produced no quantity for %s", signal.Instrument)
		}
	}

	o := &contracts.Order{
		Instrument:   signal.Instrument,
		Side:         signal.Side,
		Quantity:     quantity,
		Kind:         signal.Kind,
		Price:        signal.Price,
		TriggerPrice: signal.TriggerPrice,
		StrategyID:   signal.StrategyID,
	}

	result := e.risk.ValidateOrder(o, price, e.portfolio.GetCash())
	if !result.Approved {
		e.logger.WithFields(map[string]interface{}{
			"instrument": signal.Instrument,
			"strategy":   signal.StrategyID,
			"reason":     result.Reason,
		}).Warn("Signal rejected by risk admission")
		return "", fmt.Errorf("risk admission rejected: %s", result.Reason)
	}

	return e.orders.Submit(o, true)
}

// onExecutionReport folds a completed order into the ledger and updates
// the risk state
func (e *Engine) onExecutionReport(report contracts.ExecutionReport) {
	hadPosition := e.portfolio.GetPosition(report.Instrument) != nil
	realizedBefore := e.portfolio.GetSummary().RealizedPnL

	trade := contracts.Trade{
		Instrument:      report.Instrument,
		Side:            report.Side,
		Quantity:        report.FilledQuantity,
		Price:           report.AverageFillPrice,
		Timestamp:       report.CompletedAt,
		OrderID:         report.OrderID,
		ExchangeOrderID: report.ExchangeOrderID,
		StrategyID:      report.StrategyID,
		Commission:      report.TotalCommission,
	}
	if err := e.portfolio.UpdatePosition(trade); err != nil {
		// 체결된 거래를 원장이 거부하면 장부가 이미 어긋난 상태다
		e.logger.WithFields(map[string]interface{}{
			"order_id": report.OrderID,
			"error":    err.Error(),
		}).Error("Ledger refused completed trade")
		e.risk.TriggerSystemStop(fmt.Sprintf("ledger refused trade for order %s: %s", report.OrderID, err))
		return
	}

	hasPosition := e.portfolio.GetPosition(report.Instrument) != nil
	switch {
	case !hadPosition && hasPosition:
		e.risk.PositionOpened(report.Instrument)
	case hadPosition && !hasPosition:
		e.risk.PositionClosed(report.Instrument)
	}

	if realized := e.portfolio.GetSummary().RealizedPnL - realizedBefore; realized != 0 {
		e.risk.UpdateDailyPnL(realized)
	}

	e.risk.UpdatePortfolioValue(e.portfolio.GetPortfolioValue())
	e.risk.CheckAndEnforceLimits()
}

// MarkPrices refreshes ledger marks and the risk valuation
func (e *Engine) MarkPrices(prices map[string]float64) {
	e.portfolio.UpdateMarketPrices(prices)
	e.risk.UpdatePortfolioValue(e.portfolio.GetPortfolioValue())
	e.risk.CheckAndEnforceLimits()
}

// Snapshot records a portfolio snapshot and returns it
func (e *Engine) Snapshot() portfolio.Snapshot {
	return e.portfolio.CreateSnapshot()
}

// Status aggregates the engine state for observers
type Status struct {
	Timestamp time.Time         `json:"timestamp"`
	Orders    order.Statistics  `json:"orders"`
	Risk      risk.Status       `json:"risk"`
	Portfolio portfolio.Summary `json:"portfolio"`
}

// GetStatus returns the combined projection
func (e *Engine) GetStatus() Status {
	return Status{
		Timestamp: time.Now(),
		Orders:    e.orders.GetStatistics(),
		Risk:      e.risk.GetStatus(),
		Portfolio: e.portfolio.GetSummary(),
	}
}
