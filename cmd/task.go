package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	taskDBPath      string
	taskOwnerID     int64
	taskTitle       string
	taskDescription string
	taskSearch      string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create and list tasks.",
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a task owned by a user",
	Example: `
  tasktime task add --owner 1 --title "Write docs"
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(taskDBPath, func(a *app) error {
			task, err := a.tasks.Create(context.Background(), taskOwnerID, taskTitle, taskDescription)
			if err != nil {
				return err
			}
			fmt.Printf("Task created. ID: %d, Title: %s, Owner: %d\n", task.ID, task.Title, task.OwnerID)
			return nil
		})
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, optionally filtered by title",
	Example: `
  tasktime task list
  tasktime task list --search docs
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(taskDBPath, func(a *app) error {
			list, err := a.tasks.List(context.Background(), taskSearch)
			if err != nil {
				return err
			}
			for _, task := range list {
				fmt.Printf("%d\t%s\t%s\towner=%d\n", task.ID, task.Status, task.Title, task.OwnerID)
			}
			fmt.Printf("Tasks: %d\n", len(list))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)

	taskCmd.PersistentFlags().StringVar(&taskDBPath, "db", "", "Path to SQLite database (default: server.db_path from config)")
	taskAddCmd.Flags().Int64Var(&taskOwnerID, "owner", 0, "Owner user ID")
	taskAddCmd.Flags().StringVar(&taskTitle, "title", "", "Task title")
	taskAddCmd.Flags().StringVar(&taskDescription, "description", "", "Task description")
	taskListCmd.Flags().StringVar(&taskSearch, "search", "", "Case-insensitive title substring")

	_ = taskAddCmd.MarkFlagRequired("owner")
	_ = taskAddCmd.MarkFlagRequired("title")
}
