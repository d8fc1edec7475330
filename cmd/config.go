package cmd

import "github.com/spf13/cobra"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage tasktime configuration file values.",
	Long: `Create, edit, display, and delete the tasktime configuration file.

The configuration stores service-wide values:
- server.port / server.db_path
- aggregate.window_days / limit / cache_ttl / cache_size
- notify.enabled / from / smtp.host / smtp.port / smtp.username / smtp.password
- log.level / log.format

Every key can be overridden from the environment, e.g. TASKTIME_SERVER_PORT=9090.`,
	Example: `
  # Create default config in $HOME/.tasktime.yaml
  tasktime config create

  # Show active config and source file
  tasktime config show

  # Open active config in editor (creates example if missing)
  tasktime config edit

  # Delete active config file
  tasktime config delete
`,
}

func init() {
	rootCmd.AddCommand(configCmd)
}
