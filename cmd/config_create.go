package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tasktime/config"
)

var configCreateStdout bool

var configCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a configuration file from the example template.",
	Long: `Create a new configuration file from the same example template used by "config edit".

If a configuration file is already in use, no new file is written.
With --stdout the template is printed instead, e.g. for container images.`,
	Example: `
  # Create default config at $HOME/.tasktime.yaml
  tasktime config create

  # Print the template
  tasktime config create --stdout > ./.tasktime.yaml
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configCreateStdout {
			return printDefaultConfig(os.Stdout)
		}
		return saveDefaultConfig()
	},
}

func saveDefaultConfig() error {
	configPath, err := configFilePath(cfgFile, viper.ConfigFileUsed())
	if err != nil {
		return err
	}

	created, err := writeTemplateIfMissing(configPath)
	if err != nil {
		return err
	}

	if created {
		fmt.Printf("New config file created at: %s\n", configPath)
		return nil
	}

	fmt.Printf("Config file already exists at: %s\n", configPath)
	return nil
}

func printDefaultConfig(w io.Writer) error {
	if _, err := io.WriteString(w, config.ExampleYAML()); err != nil {
		return fmt.Errorf("write config template: %w", err)
	}
	return nil
}

func init() {
	configCmd.AddCommand(configCreateCmd)

	configCreateCmd.Flags().BoolVar(&configCreateStdout, "stdout", false, "Print the template instead of writing a file")
}
