// Package audit persists lifecycle events, trades, and snapshots to
// PostgreSQL so the in-memory state can be reconstructed externally.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/talos/internal/contracts"
	"github.com/wonny/talos/internal/engine"
	"github.com/wonny/talos/internal/order"
	"github.com/wonny/talos/internal/portfolio"
	"github.com/wonny/talos/pkg/database"
	"github.com/wonny/talos/pkg/logger"
)

const writeTimeout = 5 * time.Second

// Repository writes audit rows through the shared pool
type Repository struct {
	db     *database.DB
	logger *logger.Logger
}

// NewRepository creates a repository over an open pool
func NewRepository(db *database.DB, log *logger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: log.WithComponent("audit_repository"),
	}
}

// EnsureSchema creates the audit tables when missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS order_events (
			id BIGSERIAL PRIMARY KEY,
			event_time TIMESTAMPTZ NOT NULL,
			event_type TEXT NOT NULL,
			order_id TEXT NOT NULL,
			instrument TEXT,
			side TEXT,
			kind TEXT,
			quantity INTEGER,
			price DOUBLE PRECISION,
			status TEXT,
			filled_quantity INTEGER,
			average_price DOUBLE PRECISION,
			message TEXT,
			strategy_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_events_order_id ON order_events (order_id)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id BIGSERIAL PRIMARY KEY,
			trade_time TIMESTAMPTZ NOT NULL,
			instrument TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			order_id TEXT,
			exchange_order_id TEXT,
			strategy_id TEXT,
			commission DOUBLE PRECISION,
			tax DOUBLE PRECISION
		)`,
		`CREATE TABLE IF NOT EXISTS portfolio_snapshots (
			id BIGSERIAL PRIMARY KEY,
			snapshot_time TIMESTAMPTZ NOT NULL,
			cash DOUBLE PRECISION NOT NULL,
			position_value DOUBLE PRECISION NOT NULL,
			total_value DOUBLE PRECISION NOT NULL,
			realized_pnl DOUBLE PRECISION NOT NULL,
			unrealized_pnl DOUBLE PRECISION NOT NULL,
			total_commission DOUBLE PRECISION NOT NULL,
			total_tax DOUBLE PRECISION NOT NULL,
			return_percent DOUBLE PRECISION NOT NULL,
			open_positions INTEGER NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := r.db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure audit schema: %w", err)
		}
	}
	return nil
}

// SaveOrderEvent persists one audit trail entry
func (r *Repository) SaveOrderEvent(ctx context.Context, event order.AuditEvent) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO order_events
			(event_time, event_type, order_id, instrument, side, kind, quantity,
			 price, status, filled_quantity, average_price, message, strategy_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		event.Timestamp, string(event.Type), event.OrderID, event.Instrument,
		string(event.Side), string(event.Kind), event.Quantity, event.Price,
		string(event.Status), event.FilledQuantity, event.AveragePrice,
		event.Message, event.StrategyID,
	)
	if err != nil {
		return fmt.Errorf("failed to save order event: %w", err)
	}
	return nil
}

// SaveTrade persists one completed trade
func (r *Repository) SaveTrade(ctx context.Context, trade contracts.Trade) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO trades
			(trade_time, instrument, side, quantity, price, order_id,
			 exchange_order_id, strategy_id, commission, tax)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		trade.Timestamp, trade.Instrument, string(trade.Side), trade.Quantity,
		trade.Price, trade.OrderID, trade.ExchangeOrderID, trade.StrategyID,
		trade.Commission, trade.Tax,
	)
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// SaveSnapshot persists one portfolio valuation
func (r *Repository) SaveSnapshot(ctx context.Context, snapshot portfolio.Snapshot) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO portfolio_snapshots
			(snapshot_time, cash, position_value, total_value, realized_pnl,
			 unrealized_pnl, total_commission, total_tax, return_percent,
			 open_positions)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		snapshot.Timestamp, snapshot.Cash, snapshot.PositionValue,
		snapshot.TotalValue, snapshot.RealizedPnL, snapshot.UnrealizedPnL,
		snapshot.TotalCommission, snapshot.TotalTax,
		snapshot.ReturnPercent, snapshot.OpenPositions,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Attach subscribes the repository to engine events. Writes run off the
// callback goroutine so a slow database never blocks execution.
func (r *Repository) Attach(eng *engine.Engine) {
	orders := eng.Orders()

	orders.OnOrderUpdate(func(update contracts.OrderUpdate) {
		r.async(func(ctx context.Context) error {
			return r.SaveOrderEvent(ctx, order.AuditEvent{
				Timestamp:      update.Timestamp,
				Type:           order.AuditStatusUpdate,
				OrderID:        update.OrderID,
				Status:         update.Status,
				FilledQuantity: update.FilledQuantity,
				AveragePrice:   update.AveragePrice,
				Message:        update.Message,
			})
		})
	})

	orders.OnExecutionReport(func(report contracts.ExecutionReport) {
		r.async(func(ctx context.Context) error {
			return r.SaveTrade(ctx, contracts.Trade{
				Instrument:      report.Instrument,
				Side:            report.Side,
				Quantity:        report.FilledQuantity,
				Price:           report.AverageFillPrice,
				Timestamp:       report.CompletedAt,
				OrderID:         report.OrderID,
				ExchangeOrderID: report.ExchangeOrderID,
				StrategyID:      report.StrategyID,
				Commission:      report.TotalCommission,
			})
		})
	})
}

func (r *Repository) async(fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			r.logger.WithError(err).Error("Audit write failed")
		}
	}()
}
