package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/uplink/internal/service"
	"github.com/raphaelgruber/uplink/internal/source"
)

var uploadRemote []string

var uploadCmd = &cobra.Command{
	Use:   "upload [files...]",
	Short: "Upload local and remote files for processing",
	Long: `Upload a batch of documents to the processing backend.

Local files are given as arguments. Files from connected cloud accounts are
given with --remote in the form account:file-id[:display-name], where
account is the account id or its label from 'uplink accounts'.

Examples:
  uplink upload notes.pdf report.docx
  uplink upload --remote work@gmail.com:1BxiMVs0XRA5
  uplink upload slides.pdf --remote acc_7f2:doc-81:Q3 Plan --remote acc_9aa:doc-14`,
	Args: cobra.ArbitraryArgs,
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringArrayVar(&uploadRemote, "remote", nil, "remote file as account:file-id[:display-name]")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if len(args) == 0 && len(uploadRemote) == 0 {
		return errors.New("nothing to upload: give local files or --remote references")
	}

	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("backend not reachable: %w", err)
	}

	sel := source.Selection{LocalPaths: args}
	for _, ref := range uploadRemote {
		r, err := parseRemoteRef(ref)
		if err != nil {
			return err
		}
		sel.Remote = append(sel.Remote, r)
	}

	// Current usage for the quota pre-check comes from the server's list.
	docs, err := client.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("fetch current usage: %w", err)
	}
	orch := newOrchestrator(len(docs))

	handle, rejected, err := orch.Submit(ctx, sel)
	for _, rej := range rejected {
		fmt.Printf("Skipped %s: %s\n", rej.Item.DisplayName, rej.Reason)
	}
	if err != nil {
		if errors.Is(err, service.ErrAllRejected) {
			return errors.New("no items accepted for upload")
		}
		return err
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

// parseRemoteRef parses account:file-id[:display-name].
func parseRemoteRef(ref string) (source.RemoteSelection, error) {
	parts := strings.SplitN(ref, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return source.RemoteSelection{}, fmt.Errorf("invalid --remote %q (expected account:file-id[:display-name])", ref)
	}

	acc, ok := registry.Resolve(parts[0])
	if !ok {
		return source.RemoteSelection{}, fmt.Errorf("unknown account %q (see 'uplink accounts')", parts[0])
	}

	r := source.RemoteSelection{Account: acc, FileID: parts[1]}
	if len(parts) == 3 {
		r.Name = parts[2]
	}
	return r, nil
}

func printSummary(orch *service.Orchestrator) {
	view, ok := orch.View()
	if !ok {
		return
	}

	fmt.Printf("\n%d completed, %d failed of %d\n", view.CompletedCount, view.FailedCount, view.Total)
	for _, it := range view.Items {
		if it.Error != "" {
			fmt.Printf("  %s: %s\n", it.DisplayName, it.Error)
		}
	}
}
