package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/talos/internal/api"
	"github.com/wonny/talos/internal/audit"
	"github.com/wonny/talos/internal/engine"
	"github.com/wonny/talos/internal/execution"
	"github.com/wonny/talos/internal/external/kite"
	"github.com/wonny/talos/internal/order"
	"github.com/wonny/talos/internal/portfolio"
	"github.com/wonny/talos/internal/risk"
	"github.com/wonny/talos/pkg/config"
	"github.com/wonny/talos/pkg/database"
	"github.com/wonny/talos/pkg/logger"
)

var paperMode bool

var tradeCmd = &cobra.Command{
	Use:   "trade",
	Short: "Run the live trading engine",
	Long: `Starts the execution engine against the configured venue, the
housekeeping scheduler, and the observer API. Use --paper to route
orders to the in-process paper venue instead of Kite.`,
	RunE: runTrade,
}

func init() {
	tradeCmd.Flags().BoolVar(&paperMode, "paper", false, "route orders to the paper venue")
}

func runTrade(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	var executor execution.Executor
	if paperMode {
		log.Info("Paper mode: orders stay in-process")
		executor = execution.NewPaperExecutor()
	} else {
		if cfg.Kite.APIKey == "" || cfg.Kite.AccessToken == "" {
			return fmt.Errorf("KITE_API_KEY and KITE_ACCESS_TOKEN are required for live trading")
		}
		executor = kite.NewClient(cfg.Kite, log)
	}

	eng := buildEngine(executor, cfg, log)
	eng.Start()
	defer eng.Stop()

	// Audit persistence is optional; without DATABASE_URL the trail
	// stays in memory only
	if cfg.Database.URL != "" {
		db, err := database.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to connect audit database: %w", err)
		}
		defer db.Close()

		repo := audit.NewRepository(db, log)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = repo.EnsureSchema(ctx)
		cancel()
		if err != nil {
			return err
		}
		repo.Attach(eng)
		log.Info("Audit persistence attached")
	}

	return serve(eng, cfg, log)
}

// buildEngine maps configuration onto the engine components
func buildEngine(executor execution.Executor, cfg *config.Config, log *logger.Logger) *engine.Engine {
	orderCfg := order.Config{
		MaxRetries:      cfg.Engine.MaxRetries,
		RetryDelay:      cfg.Engine.RetryDelay,
		MonitorInterval: cfg.Engine.MonitorInterval,
		QueueSize:       cfg.Engine.QueueSize,
		ShutdownTimeout: cfg.Engine.ShutdownTimeout,
	}
	limits := risk.Limits{
		MaxDailyLoss:              cfg.Risk.MaxDailyLoss,
		MaxPositionSizePercent:    cfg.Risk.MaxPositionSizePercent,
		RiskPerTradePercent:       1,
		StopLossPercent:           cfg.Risk.StopLossPercent,
		MaxPositionsPerInstrument: cfg.Risk.MaxPositionsPerInstrument,
		EmergencyStopEnabled:      cfg.Risk.EmergencyStopEnabled,
	}
	portfolioCfg := portfolio.Config{
		InitialCapital: cfg.Portfolio.InitialCapital,
		CommissionRate: cfg.Portfolio.CommissionRate,
		TaxRate:        cfg.Portfolio.TaxRate,
	}
	return engine.New(executor, orderCfg, limits, portfolioCfg, log)
}

// serve runs the scheduler and the API server until SIGINT/SIGTERM
func serve(eng *engine.Engine, cfg *config.Config, log *logger.Logger) error {
	sched := newScheduler(eng, log)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	server := api.NewServer(cfg.Port, eng, log)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
