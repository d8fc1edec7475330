package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tasktime/ledger"
)

var (
	timerDBPath  string
	timerTaskID  int64
	timerUserID  int64
	timerMinutes int64
	timerAt      string
)

var timerCmd = &cobra.Command{
	Use:   "timer",
	Short: "Start, stop and inspect task timers.",
	Long: `Control the timer a user runs against a task.

A user has at most one timer per task. Stopping adds the whole seconds of the
running segment to the timer's total. "timer add" records back-dated minutes as a
separate entry and never touches the timer.`,
}

var timerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the timer for a task",
	Example: `
  tasktime timer start --task 1 --user 1
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(timerDBPath, func(a *app) error {
			entry, err := a.timers.StartTimer(context.Background(), timerTaskID, timerUserID, a.clock.Now())
			if err != nil {
				return err
			}
			fmt.Printf("Timer started. Task: %d, User: %d, At: %s\n", entry.TaskID, entry.OwnerID, entry.StartedAt.Local().Format(time.RFC3339))
			return nil
		})
	},
}

var timerStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running timer for a task",
	Example: `
  tasktime timer stop --task 1 --user 1
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(timerDBPath, func(a *app) error {
			entry, err := a.timers.StopTimer(context.Background(), timerTaskID, timerUserID, a.clock.Now())
			if err != nil {
				return err
			}
			fmt.Printf("Timer stopped. Task: %d, User: %d, Total: %s\n", entry.TaskID, entry.OwnerID, formatSeconds(entry.AccumulatedSeconds))
			return nil
		})
	},
}

var timerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the timer state for a task",
	Example: `
  tasktime timer status --task 1 --user 1
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(timerDBPath, func(a *app) error {
			entry, err := a.timers.Status(context.Background(), timerTaskID, timerUserID)
			if err != nil {
				return err
			}
			fmt.Println(describeTimer(entry, a.clock.Now()))
			return nil
		})
	},
}

var timerAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record back-dated minutes for a task",
	Example: `
  # 90 minutes starting now
  tasktime timer add --task 1 --user 1 --minutes 90

  # 60 minutes on a past date
  tasktime timer add --task 1 --user 1 --minutes 60 --at 2026-03-01T09:00:00Z
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(timerDBPath, func(a *app) error {
			startAt, err := parseTimerAt(timerAt, a.clock.Now())
			if err != nil {
				return err
			}
			entry, err := a.timers.AddManualEntry(context.Background(), timerTaskID, timerUserID, startAt, timerMinutes)
			if err != nil {
				return err
			}
			fmt.Printf("Time added. Entry: %d, Task: %d, Duration: %s, Start: %s\n",
				entry.ID, entry.TaskID, formatSeconds(entry.AccumulatedSeconds), entry.StartedAt.Local().Format(time.RFC3339))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(timerCmd)
	for _, sub := range []*cobra.Command{timerStartCmd, timerStopCmd, timerStatusCmd, timerAddCmd} {
		timerCmd.AddCommand(sub)
		sub.Flags().Int64Var(&timerTaskID, "task", 0, "Task ID")
		sub.Flags().Int64Var(&timerUserID, "user", 0, "User ID")
		_ = sub.MarkFlagRequired("task")
		_ = sub.MarkFlagRequired("user")
	}

	timerCmd.PersistentFlags().StringVar(&timerDBPath, "db", "", "Path to SQLite database (default: server.db_path from config)")
	timerAddCmd.Flags().Int64Var(&timerMinutes, "minutes", 0, "Duration in minutes (> 0)")
	timerAddCmd.Flags().StringVar(&timerAt, "at", "", "Start of the work, RFC3339 (default: now)")

	_ = timerAddCmd.MarkFlagRequired("minutes")
}

func parseTimerAt(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return now, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at value %q (expected RFC3339): %w", value, err)
	}
	return parsed, nil
}

func describeTimer(entry ledger.Entry, now time.Time) string {
	if entry.Running {
		return fmt.Sprintf("Task %d: running since %s (%s), total %s",
			entry.TaskID,
			entry.StartedAt.Local().Format(time.RFC3339),
			humanize.RelTime(entry.StartedAt, now, "ago", "from now"),
			formatSeconds(entry.Elapsed(now)),
		)
	}
	return fmt.Sprintf("Task %d: stopped, total %s", entry.TaskID, formatSeconds(entry.AccumulatedSeconds))
}

// formatSeconds renders a second count as a duration plus a digit-grouped raw value.
func formatSeconds(seconds int64) string {
	return fmt.Sprintf("%s (%s s)", time.Duration(seconds)*time.Second, humanize.Comma(seconds))
}
