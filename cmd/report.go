package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	reportDBPath string
	reportUserID int64
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show time reports for the trailing window.",
	Long: `Show time reports over the last aggregate.window_days days (default 30).

"report top" ranks tasks by total time logged by everyone. "report logs" lists the
entries a single user recorded.`,
}

var reportTopCmd = &cobra.Command{
	Use:   "top",
	Short: "Rank tasks by time logged in the last month",
	Example: `
  tasktime report top --user 1
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(reportDBPath, func(a *app) error {
			rows, err := a.reports.TopTasks(context.Background(), reportUserID, a.clock.Now())
			if err != nil {
				return err
			}
			for i, row := range rows {
				fmt.Printf("%2d. #%d %-40s %s  owner=%d  %s\n", i+1, row.TaskID, row.Title, row.Status, row.OwnerID, formatSeconds(row.TotalSeconds))
			}
			fmt.Printf("Tasks: %d\n", len(rows))
			return nil
		})
	},
}

var reportLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List a user's time entries from the last month",
	Example: `
  tasktime report logs --user 1
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(reportDBPath, func(a *app) error {
			now := a.clock.Now()
			entries, err := a.reports.OwnerLogs(context.Background(), reportUserID, now)
			if err != nil {
				return err
			}
			var total int64
			for _, entry := range entries {
				total += entry.AccumulatedSeconds
				fmt.Printf("#%d task=%d %-6s %s  logged %s  %s\n",
					entry.ID,
					entry.TaskID,
					entry.Kind,
					entry.StartedAt.Local().Format(time.RFC3339),
					humanize.RelTime(entry.CreatedAt, now, "ago", "from now"),
					formatSeconds(entry.AccumulatedSeconds),
				)
			}
			fmt.Printf("Entries: %d, Total: %s\n", len(entries), formatSeconds(total))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportTopCmd)
	reportCmd.AddCommand(reportLogsCmd)

	reportCmd.PersistentFlags().StringVar(&reportDBPath, "db", "", "Path to SQLite database (default: server.db_path from config)")
	reportCmd.PersistentFlags().Int64Var(&reportUserID, "user", 0, "Requesting user ID")
	_ = reportCmd.MarkPersistentFlagRequired("user")
}
