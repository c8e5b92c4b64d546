package commands

import (
	"github.com/spf13/cobra"

	"github.com/wonny/talos/internal/engine"
	"github.com/wonny/talos/internal/execution"
	"github.com/wonny/talos/internal/scheduler"
	"github.com/wonny/talos/pkg/logger"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the observer API over a paper engine",
	Long: `Starts the observer API backed by a fresh paper engine. Useful
for dashboard development without touching a venue.`,
	RunE: runAPI,
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	eng := buildEngine(execution.NewPaperExecutor(), cfg, log)
	eng.Start()
	defer eng.Stop()

	return serve(eng, cfg, log)
}

func newScheduler(eng *engine.Engine, log *logger.Logger) *scheduler.Scheduler {
	return scheduler.New(eng, log)
}
