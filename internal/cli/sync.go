package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/agentworkforce/erpsync/internal/engine"
)

func newSyncCommand(root *RootOptions) *cobra.Command {
	var doctype, docname string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation pass across configured doctypes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, root, doctype, docname)
		},
	}
	cmd.Flags().StringVar(&doctype, "doctype", "", "limit sync to a single doctype")
	cmd.Flags().StringVar(&docname, "docname", "", "limit sync to a single document (requires --doctype)")
	return cmd
}

func runSync(cmd *cobra.Command, root *RootOptions, doctype, docname string) error {
	if docname != "" && doctype == "" {
		return NewExitError(ExitCommandError, "--docname requires --doctype")
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx := context.Background()
	if err := rt.store.ClearAllSyncingFlags(ctx); err != nil {
		return WrapExitError(ExitCommandError, "clear stale syncing flags", err)
	}

	out := cmd.OutOrStdout()
	configs := rt.cfg.DoctypeConfigs()

	var targets []engine.DoctypeConfig
	if doctype != "" {
		dc, ok := configs[doctype]
		if !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("doctype %q is not configured", doctype))
		}
		targets = []engine.DoctypeConfig{dc}
	} else {
		for _, name := range rt.cfg.Names() {
			targets = append(targets, configs[name])
		}
	}

	var total engine.Summary
	for _, dc := range targets {
		if docname != "" {
			outcome := rt.executor.SyncOne(ctx, dc, docname, engine.DirectionNone)
			total.Add(outcome)
			reportOutcome(out, dc.Name, docname, outcome)
			continue
		}
		summary, err := rt.executor.SyncAll(ctx, dc, 100)
		if err != nil {
			return WrapExitError(ExitConnectionErr, fmt.Sprintf("sync doctype %s", dc.Name), err)
		}
		fmt.Fprintf(out, "%s: %d total, %d synced, %d conflicts, %d skipped, %d failed\n",
			dc.Name, summary.Total, summary.Success, summary.Conflicts, summary.Skipped, summary.Failed)
		total.Total += summary.Total
		total.Success += summary.Success
		total.Conflicts += summary.Conflicts
		total.Skipped += summary.Skipped
		total.Failed += summary.Failed
	}

	fmt.Fprintf(out, "\ntotal: %d, synced: %d, conflicts: %d, skipped: %d, failed: %d\n",
		total.Total, total.Success, total.Conflicts, total.Skipped, total.Failed)

	if total.Failed > 0 || total.Conflicts > 0 {
		return NewExitError(ExitRunFailure, "sync completed with failures or unresolved conflicts")
	}
	return nil
}

func reportOutcome(out io.Writer, doctype, docname string, o engine.Outcome) {
	switch {
	case o.Err != nil:
		fmt.Fprintf(out, "%s/%s: FAILED: %v\n", doctype, docname, o.Err)
	case o.Conflict:
		fmt.Fprintf(out, "%s/%s: CONFLICT\n", doctype, docname)
	case o.Skipped != "":
		fmt.Fprintf(out, "%s/%s: skipped (%s)\n", doctype, docname, o.Skipped)
	default:
		fmt.Fprintf(out, "%s/%s: synced (%s)\n", doctype, docname, o.Direction)
	}
}
