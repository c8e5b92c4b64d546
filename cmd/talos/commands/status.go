package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/talos/pkg/httputil"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the status of a running instance",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	client := httputil.NewWithTimeout(log, 5*time.Second).DisableRetry()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Get(ctx, "http://localhost:"+cfg.Port+"/api/status")
	if err != nil {
		return fmt.Errorf("instance not reachable on port %s: %w", cfg.Port, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(body))
	return nil
}
