package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentworkforce/erpsync/internal/engine"
)

func newStatusCommand(root *RootOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List sync record state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.close()

			records, err := rt.store.ListSyncRecords(context.Background(), engine.SyncStatus(status))
			if err != nil {
				return WrapExitError(ExitCommandError, "list sync records", err)
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "no sync records")
				return nil
			}
			tally := map[engine.SyncStatus]int{}
			for _, r := range records {
				tally[r.Status]++
				lastSynced := "never"
				if r.LastSynced != nil {
					lastSynced = r.LastSynced.Format("2006-01-02T15:04:05Z")
				}
				fmt.Fprintf(out, "%-30s %-10s %-6s last_synced=%s retries=%d\n",
					r.Key(), r.Status, r.LastDirection, lastSynced, r.RetryCount)
			}
			fmt.Fprintf(out, "synced=%d error=%d failed=%d conflict=%d\n",
				tally[engine.StatusSynced], tally[engine.StatusError], tally[engine.StatusFailed], tally[engine.StatusConflict])
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, synced, error, failed, conflict)")
	return cmd
}
