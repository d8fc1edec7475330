/*
Copyright © 2025 riad@rsworld.eu

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"tasktime/config"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tasktime",
	Short: "Track time against tasks and rank tasks by time logged.",
	Long: `
**********************************************
*                TASKTIME                    *
**********************************************

This CLI runs the task time-tracking API, manages users and tasks in a local SQLite
database, starts and stops timers, records back-dated time, and reports the tasks with
the most time logged over the last month.
`,
	Example: `
  # Create configuration file
  tasktime config create

  # Provision a user and print its API token
  tasktime user add --email ada@example.com --first-name Ada --last-name Lovelace

  # Create a task owned by user 1
  tasktime task add --owner 1 --title "Write docs"

  # Start and stop a timer
  tasktime timer start --task 1 --user 1
  tasktime timer stop --task 1 --user 1

  # Record 90 minutes of back-dated work
  tasktime timer add --task 1 --user 1 --minutes 90 --at 2026-03-01T09:00:00Z

  # Show the top tasks of the last month
  tasktime report top --user 1

  # Serve the HTTP API
  tasktime serve --port 8080

  # Export time entries to Excel
  tasktime export --mode entries --output ./entries.xlsx
`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	config.SetDefaults()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "configFile", "", "Config file override (default discovery: $HOME/.tasktime.yaml, then ./.tasktime.yaml)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if !requiresConfig(cmd) {
			return nil
		}

		_, err := config.LoadAndValidate()
		return err
	}
}

func requiresConfig(cmd *cobra.Command) bool {
	return cmd != nil && cmd.Name() == "serve"
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".tasktime" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tasktime")
	}

	// TASKTIME_SERVER_PORT overrides server.port.
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintln(os.Stderr, "No config file found. Create one first with: tasktime config create")
	}
}
