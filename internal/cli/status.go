package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Resume tracking an interrupted batch",
	Long: `Check for a batch persisted by a previous run. If one is still in
flight, resume tracking it against the server until it settles.

Examples:
  uplink status`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("backend not reachable: %w", err)
	}

	orch := newOrchestrator(0)

	handle, err := orch.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore batch: %w", err)
	}
	if handle == nil {
		fmt.Println("No batch in progress")
		return nil
	}

	if err := RunBatchProgress(orch, handle); err != nil {
		return err
	}

	printSummary(orch)

	if view, ok := orch.View(); ok && view.Settled() {
		if err := orch.Clear(); err != nil {
			return fmt.Errorf("clear finished batch: %w", err)
		}
	}
	return nil
}
