package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentworkforce/erpsync/internal/engine"
)

func newTestCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Check configuration, state backend, and both endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(cmd, root)
		},
	}
	return cmd
}

func runTest(cmd *cobra.Command, root *RootOptions) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Checking configuration...")
	cfg, err := loadConfig(root)
	if err != nil {
		fmt.Fprintf(out, "  [FAIL] %v\n", err)
		return err
	}
	fmt.Fprintf(out, "  [OK] %d doctype(s) configured: %v\n", len(cfg.Doctypes), cfg.Names())

	rt, err := newRuntime(cfg)
	if err != nil {
		fmt.Fprintf(out, "  [FAIL] %v\n", err)
		return err
	}
	defer rt.close()

	allOK := true
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	fmt.Fprintln(out, "\nChecking cloud endpoint...")
	if !pingEndpoint(ctx, out, rt.cloud) {
		allOK = false
	}
	fmt.Fprintln(out, "\nChecking local endpoint...")
	if !pingEndpoint(ctx, out, rt.local) {
		allOK = false
	}

	fmt.Fprintln(out, "\nChecking state backend...")
	if _, _, err := rt.store.QueueCounts(ctx); err != nil {
		fmt.Fprintf(out, "  [FAIL] state backend error: %v\n", err)
		allOK = false
	} else {
		fmt.Fprintln(out, "  [OK] state backend reachable")
	}

	if !allOK {
		return NewExitError(ExitConnectionErr, "one or more checks failed")
	}
	fmt.Fprintln(out, "\nAll checks passed.")
	return nil
}

func pingEndpoint(ctx context.Context, out io.Writer, client engine.RemoteClient) bool {
	user, err := client.Ping(ctx)
	if err != nil {
		fmt.Fprintf(out, "  [FAIL] %v\n", err)
		return false
	}
	fmt.Fprintf(out, "  [OK] authenticated as %s\n", user)
	return true
}
