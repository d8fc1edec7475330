package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tasktime/config"
)

var (
	configEditKeepInvalid bool
	configDeleteYes       bool
)

var (
	configPromptInput  io.Reader = os.Stdin
	configPromptOutput io.Writer = os.Stdout
)

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the active config in an editor.",
	Long: `Open the active tasktime config file in $VISUAL, $EDITOR or vi.

A missing file is created from the example template first. After the editor exits the
file is validated: window and limit of the top-tasks report, cache TTL and size,
SMTP settings when notify.enabled is true, and log level and format. An invalid edit is
rolled back to the previous content unless --keep-invalid is set. On success the
effective report, notification and logging settings are printed.`,
	Example: `
  # Edit active config
  tasktime config edit

  # Keep the edited file even if it does not validate
  tasktime config edit --keep-invalid
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, err := configFilePath(cfgFile, viper.ConfigFileUsed())
		if err != nil {
			return err
		}

		cfg, err := editConfigFile(configPath, runEditor, !configEditKeepInvalid)
		if err != nil {
			return err
		}

		fmt.Printf("Configuration saved and validated: %s\n", configPath)
		for _, line := range describeConfig(*cfg) {
			fmt.Println("  " + line)
		}
		return nil
	},
}

var configDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the active configuration file.",
	Long: `Delete the configuration file currently selected by tasktime.

The database named by server.db_path is kept; use "tasktime delete" to remove it.
Without --yes the command asks for confirmation by typing exactly "Y".`,
	Example: `
  # Delete active config
  tasktime config delete

  # Delete config at a custom path without prompting
  tasktime --configFile ./custom-tasktime.yaml config delete --yes
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.ConfigFileUsed()
		if configPath == "" {
			return fmt.Errorf("no configuration file found")
		}

		if !configDeleteYes {
			confirmed, err := confirmPrompt(configPromptInput, configPromptOutput, fmt.Sprintf("Delete configuration file %q?", configPath))
			if err != nil {
				return err
			}
			if !confirmed {
				return fmt.Errorf("config delete aborted: confirmation was not 'Y'")
			}
		}

		dbPath, err := deleteConfigFile(configPath)
		if err != nil {
			return err
		}
		fmt.Printf("Configuration file deleted: %s\n", configPath)
		if dbPath != "" {
			fmt.Printf("Database kept: %s\n", dbPath)
		}
		return nil
	},
}

func configFilePath(configFileFlag, configFileUsed string) (string, error) {
	if strings.TrimSpace(configFileFlag) != "" {
		return configFileFlag, nil
	}
	if strings.TrimSpace(configFileUsed) != "" {
		return configFileUsed, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".tasktime.yaml"), nil
}

// writeTemplateIfMissing creates path from the example template and reports whether it did.
func writeTemplateIfMissing(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("checking config file failed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("creating config directory failed: %w", err)
	}
	if err := os.WriteFile(path, []byte(config.ExampleYAML()), 0o600); err != nil {
		return false, fmt.Errorf("creating example config failed: %w", err)
	}
	return true, nil
}

// editConfigFile runs edit on path and validates the result. With rollback set, an
// invalid result is replaced by the content the file had before the edit.
func editConfigFile(path string, edit func(path string) error, rollback bool) (*config.Config, error) {
	created, err := writeTemplateIfMissing(path)
	if err != nil {
		return nil, err
	}
	if created {
		fmt.Printf("No config file found. Created example config at: %s\n", path)
	}

	before, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config failed: %w", err)
	}

	if err := edit(path); err != nil {
		return nil, fmt.Errorf("opening editor failed: %w", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading edited config failed: %w", err)
	}
	cfg, validateErr := config.ValidateYAMLContent(after)
	if validateErr == nil {
		return cfg, nil
	}

	if !rollback || bytes.Equal(before, after) {
		return nil, fmt.Errorf("config validation failed in %s: %w", path, validateErr)
	}
	if err := os.WriteFile(path, before, 0o600); err != nil {
		return nil, fmt.Errorf("config validation failed in %s (%v), restoring previous content: %w", path, validateErr, err)
	}
	return nil, fmt.Errorf("config validation failed in %s, previous content restored: %w", path, validateErr)
}

// describeConfig summarizes the settings that shape reports, notifications and logs.
func describeConfig(cfg config.Config) []string {
	lines := []string{
		fmt.Sprintf("Server: port %d, database %s", cfg.Server.Port, cfg.Server.DBPath),
		fmt.Sprintf("Top tasks: last %d days, top %d, cached %s per user (max %d users)",
			cfg.Aggregate.WindowDays, cfg.Aggregate.Limit, cfg.Aggregate.CacheTTL, cfg.Aggregate.CacheSize),
	}
	if cfg.Notify.Enabled {
		lines = append(lines, fmt.Sprintf("Notifications: mailed from %s via %s:%d", cfg.Notify.From, cfg.Notify.SMTP.Host, cfg.Notify.SMTP.Port))
	} else {
		lines = append(lines, "Notifications: disabled, events are written to the log")
	}
	return append(lines, fmt.Sprintf("Logging: %s level, %s format", cfg.Log.Level, cfg.Log.Format))
}

// deleteConfigFile removes the config and returns the database path it pointed at, if
// the file could still be read as a config.
func deleteConfigFile(path string) (string, error) {
	var dbPath string
	if content, err := os.ReadFile(path); err == nil {
		if cfg, err := config.ValidateYAMLContent(content); err == nil {
			dbPath = cfg.Server.DBPath
		}
	}

	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("error deleting configuration file: %w", err)
	}
	return dbPath, nil
}

func runEditor(path string) error {
	editorCommand := editorCommandFor(os.Getenv, path)
	editorCommand.Stdin = os.Stdin
	editorCommand.Stdout = os.Stdout
	editorCommand.Stderr = os.Stderr
	return editorCommand.Run()
}

// editorCommandFor builds the editor invocation from $VISUAL, then $EDITOR, then vi.
func editorCommandFor(getenv func(string) string, path string) *exec.Cmd {
	editor := "vi"
	for _, key := range []string{"VISUAL", "EDITOR"} {
		if value := strings.TrimSpace(getenv(key)); value != "" {
			editor = value
			break
		}
	}

	fields := strings.Fields(editor)
	args := append(fields[1:], path)
	return exec.Command(fields[0], args...)
}

func init() {
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configDeleteCmd)

	configEditCmd.Flags().BoolVar(&configEditKeepInvalid, "keep-invalid", false, "Keep the edited file even when it fails validation")
	configDeleteCmd.Flags().BoolVar(&configDeleteYes, "yes", false, "Delete without asking for confirmation")
}
