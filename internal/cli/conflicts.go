package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newConflictsCommand(root *RootOptions) *cobra.Command {
	var unresolvedOnly bool
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List recorded sync conflicts",
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

			list, err := rt.store.ListConflicts(context.Background(), unresolvedOnly)
			if err != nil {
				return WrapExitError(ExitCommandError, "list conflicts", err)
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "no conflicts recorded")
				return nil
			}
			for _, c := range list {
				state := "unresolved"
				if c.Resolved {
					state = "resolved:" + c.Resolution
				}
				fmt.Fprintf(out, "#%-6d %s/%s  %s  cloud_modified=%s local_modified=%s\n",
					c.ID, c.Doctype, c.Docname, state, c.CloudModified, c.LocalModified)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&unresolvedOnly, "unresolved", false, "show only unresolved conflicts")
	return cmd
}
