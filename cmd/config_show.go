package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"tasktime/config"
)

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show active configuration values.",
	Long: `Display the effective configuration as YAML and the resolved config file path.

Values include defaults and TASKTIME_* environment overrides. The SMTP password is masked.
This command validates the configuration before printing values.`,
	Example: `
  # Show active configuration
  tasktime config show
`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadAndValidate()
		if err != nil {
			fmt.Println("Invalid config:", err)
			return
		}

		if configPath := viper.ConfigFileUsed(); configPath != "" {
			fmt.Println("Config file loaded from:", configPath)
		} else {
			fmt.Println("No config file loaded; showing defaults and environment overrides.")
		}
		fmt.Println("Configuration:")
		if err := writeConfigYAML(os.Stdout, *cfg); err != nil {
			fmt.Fprintln(os.Stderr, "Render config:", err)
		}
	},
}

func writeConfigYAML(w io.Writer, cfg config.Config) error {
	if cfg.Notify.SMTP.Password != "" {
		cfg.Notify.SMTP.Password = "********"
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encode config yaml: %w", err)
	}
	return encoder.Close()
}

func init() {
	configCmd.AddCommand(configShowCmd)
}
