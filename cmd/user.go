package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	userDBPath    string
	userEmail     string
	userFirstName string
	userLastName  string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage API users.",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user and print its API token",
	Long: `Create a user in the SQLite database and print a new API token.

The token is shown once. Only a bcrypt hash of it is stored.`,
	Example: `
  tasktime user add --email ada@example.com --first-name Ada --last-name Lovelace
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(userDBPath, func(a *app) error {
			user, token, err := a.store.CreateUser(context.Background(), userEmail, userFirstName, userLastName)
			if err != nil {
				return err
			}

			fmt.Printf("User created. ID: %d, Email: %s, Name: %s\n", user.ID, user.Email, user.FullName())
			fmt.Printf("API token: %s\n", token)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)

	userCmd.PersistentFlags().StringVar(&userDBPath, "db", "", "Path to SQLite database (default: server.db_path from config)")
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "User email address")
	userAddCmd.Flags().StringVar(&userFirstName, "first-name", "", "First name")
	userAddCmd.Flags().StringVar(&userLastName, "last-name", "", "Last name")

	_ = userAddCmd.MarkFlagRequired("email")
}
