package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentworkforce/erpsync/internal/engine"
)

const starterConfig = `cloud:
  base_url: https://cloud.example.com
  api_key: your_cloud_api_key
  api_secret: your_cloud_api_secret

local:
  base_url: https://local.example.com
  api_key: your_local_api_key
  api_secret: your_local_api_secret

doctypes:
  - name: Item
    exclude_fields: []
  - name: Customer
    exclude_fields: []

conflict_policy: latest_timestamp
state_backend_dsn: "sqlite://./erpsync.db"
webhook_secret: change_this
webhook_addr: ":8686"
poll_interval: 2s
batch_size: 10
stale_claim_after: 5m
log_level: info
log_format: text
`

func newInitCommand(root *RootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "erpsync.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if !force {
				if _, err := os.Stat(path); err == nil {
					return NewExitError(ExitCommandError, fmt.Sprintf("%s already exists, use --force to overwrite", path))
				}
			}
			if err := os.WriteFile(path, []byte(starterConfig), 0o600); err != nil {
				return WrapExitError(ExitCommandError, "write config", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s — edit it with your endpoint credentials, then run `erpsync --config %s test`\n", path, path)
			fmt.Fprintf(cmd.OutOrStdout(), "valid conflict policies: %v\n", engine.ValidPolicies)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
