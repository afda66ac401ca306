// Package cli provides the command-line interface for uplink.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/uplink/internal/accounts"
	"github.com/raphaelgruber/uplink/internal/backend"
	"github.com/raphaelgruber/uplink/internal/config"
	"github.com/raphaelgruber/uplink/internal/metrics"
	"github.com/raphaelgruber/uplink/internal/quota"
	"github.com/raphaelgruber/uplink/internal/service"
	"github.com/raphaelgruber/uplink/internal/store"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config and clients
	cfg        config.Config
	logCleanup func() error
	client     *backend.Client
	registry   *accounts.Registry
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "uplink",
	Short: "Batch document uploader with live progress tracking",
	Long: `Uplink submits batches of documents - local files and files from
connected cloud accounts - to the processing backend, tracks each file
through the pipeline stages in real time, and survives restarts by
persisting batch state.

An interrupted batch is picked up again with 'uplink status'.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, cleanup := config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)
		logCleanup = cleanup

		client = backend.New(cfg.ServerURL, metrics.NewCollector())

		registry = accounts.NewRegistry()
		if err := registry.Load(cmd.Context(), accounts.NewStatic(cfg.File.Accounts)); err != nil {
			return fmt.Errorf("load accounts: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if client != nil {
			snap := client.Metrics().Snapshot()
			if snap.Poll != nil {
				slog.Debug("session metrics", "polls", snap.Poll.Count, "poll_avg_ms", snap.Poll.AvgTimeMs)
			}
			if snap.StreamLocal != nil && snap.StreamLocal.TotalBytes != nil {
				slog.Debug("session metrics", "local_streams", snap.StreamLocal.Count, "bytes_sent", *snap.StreamLocal.TotalBytes)
			}
		}
		if logCleanup != nil {
			_ = logCleanup()
		}
	},
}

// newOrchestrator wires the engine against the backend, the configured quota
// tier, and the snapshot slot. Current usage is the server's document count;
// the server remains the authority when the two disagree.
func newOrchestrator(used int) *service.Orchestrator {
	limits := cfg.TierLimits()
	maxItems := limits.MaxItems
	if maxItems < 0 {
		maxItems = quota.Unlimited
	}
	tier := quota.Tier{
		Name:         cfg.Tier,
		MaxItems:     maxItems,
		MaxFileBytes: limits.MaxFileMB * 1024 * 1024,
	}
	guard := quota.NewGuard(tier, used)
	return service.New(client, guard, store.New(cfg.SnapshotFile, client.Metrics()))
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
