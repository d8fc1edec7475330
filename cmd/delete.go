package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tasktime/storage"
)

var (
	deleteDBPath string
	deleteForce  bool
)

var (
	deletePromptInput  io.Reader = os.Stdin
	deletePromptOutput io.Writer = os.Stdout
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the complete SQLite database file",
	Long: `Destructive database cleanup command.

Deletes the SQLite database together with its WAL sidecar files (-wal, -shm). The prompt
shows how many users, tasks and time entries will be lost and must be answered with
exactly "Y". A database with running timers is only deleted with --force, since their
elapsed time has not been recorded yet.`,
	Example: `
  # Delete the database (requires interactive confirmation)
  tasktime delete --db ./tasktime.db

  # Delete even though timers are still running
  tasktime delete --db ./tasktime.db --force
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath := resolveDBPath(deleteDBPath)
		stats, err := inspectDatabase(context.Background(), dbPath)
		if err != nil {
			return err
		}
		if stats.RunningTimers > 0 && !deleteForce {
			return fmt.Errorf("database %s has %d running timer(s); stop them first or pass --force", dbPath, stats.RunningTimers)
		}

		confirmed, err := confirmPrompt(deletePromptInput, deletePromptOutput, deleteQuestion(dbPath, stats))
		if err != nil {
			return err
		}
		if !confirmed {
			return fmt.Errorf("delete aborted: confirmation was not 'Y'")
		}

		if err := removeDatabaseFile(dbPath); err != nil {
			return err
		}
		fmt.Printf("Deleted database file: %s\n", dbPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)

	deleteCmd.Flags().StringVar(&deleteDBPath, "db", "", "Path to SQLite database (default: server.db_path from config)")
	deleteCmd.Flags().BoolVar(&deleteForce, "force", false, "Delete even when timers are still running")
}

// inspectDatabase counts the rows of an existing database without creating a new one.
func inspectDatabase(ctx context.Context, path string) (storage.Stats, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return storage.Stats{}, fmt.Errorf("database file not found: %s", path)
		}
		return storage.Stats{}, fmt.Errorf("stat database file: %w", err)
	}
	if info.IsDir() {
		return storage.Stats{}, fmt.Errorf("database path is a directory: %s", path)
	}

	store, err := storage.OpenSQLite(path)
	if err != nil {
		return storage.Stats{}, err
	}
	defer store.Close()
	return store.Stats(ctx)
}

func deleteQuestion(path string, stats storage.Stats) string {
	return fmt.Sprintf("Delete database %q with %s users, %s tasks and %s time entries?",
		path, humanize.Comma(stats.Users), humanize.Comma(stats.Tasks), humanize.Comma(stats.Entries))
}

// confirmPrompt asks question and reports whether the answer was exactly "Y".
func confirmPrompt(input io.Reader, output io.Writer, question string) (bool, error) {
	if input == nil {
		return false, fmt.Errorf("confirmation input is not available")
	}
	if output == nil {
		output = io.Discard
	}

	if _, err := fmt.Fprintf(output, "%s Type Y to confirm: ", question); err != nil {
		return false, fmt.Errorf("write confirmation prompt: %w", err)
	}

	line, err := bufio.NewReader(input).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	return strings.TrimSpace(line) == "Y", nil
}

func removeDatabaseFile(path string) error {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("database file not found: %s", path)
		}
		return fmt.Errorf("delete database file: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete database sidecar %s: %w", path+suffix, err)
		}
	}
	return nil
}
