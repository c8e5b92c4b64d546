package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/talos/pkg/config"
	"github.com/wonny/talos/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "talos",
	Short: "Self-directed trade execution engine",
	Long: `Talos runs a trade execution core: order lifecycle management,
risk admission control, and a portfolio ledger, with a REST/WebSocket
observer surface.`,
	SilenceUsage: true,
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(tradeCmd)
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(statusCmd)
}

// loadConfig loads configuration and builds the root logger
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, logger.New(cfg), nil
}
