package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"tasktime/aggregate"
	"tasktime/internal/timeutil"
	"tasktime/output"
	"tasktime/storage"
)

var (
	exportFormat     string
	exportMode       string
	exportOutput     string
	exportDBPath     string
	exportTaskID     int64
	exportWindowDays int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export time entries or the top-task report to CSV/Excel",
	Long: `Export data from SQLite.

Modes:
- entries: export each time entry row (optionally for one task)
- top: export tasks ranked by total time logged in the trailing window

Output format can be selected explicitly via --format or inferred from --output extension.`,
	Example: `
  # Export all entries to CSV
  tasktime export --mode entries --output ./entries.csv

  # Export one task's entries to Excel
  tasktime export --mode entries --task 3 --output ./task-3.xlsx

  # Export the top-task ranking of the last 30 days
  tasktime export --mode top --output ./top.xlsx
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format := exportFormat
		if strings.TrimSpace(format) == "" {
			format = detectExportFormat(exportOutput)
		}
		writer, err := output.WriterForFormat(format)
		if err != nil {
			return err
		}

		store, err := storage.OpenSQLite(resolveDBPath(exportDBPath))
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := context.Background()
		mode := strings.TrimSpace(strings.ToLower(exportMode))
		switch mode {
		case "", "entries":
			entries, err := store.ListEntries(ctx, exportTaskID)
			if err != nil {
				return err
			}
			if err := writer.Write(exportOutput, output.EntriesTable(entries)); err != nil {
				return err
			}
			fmt.Printf("Export completed. Rows: %d, Mode: entries, Format: %s, File: %s\n", len(entries), format, exportOutput)
		case "top":
			rows, err := buildTopRows(ctx, store, exportWindowDays)
			if err != nil {
				return err
			}
			if err := writer.Write(exportOutput, output.TopTasksTable(rows)); err != nil {
				return err
			}
			fmt.Printf("Export completed. Tasks: %d, Mode: top, Format: %s, File: %s\n", len(rows), format, exportOutput)
		default:
			return fmt.Errorf("unsupported export mode: %s (supported: entries, top)", exportMode)
		}
		return nil
	},
}

// buildTopRows ranks every task in the window without the report limit or cache.
func buildTopRows(ctx context.Context, store *storage.SQLiteStore, windowDays int) ([]aggregate.Row, error) {
	if windowDays <= 0 {
		windowDays = aggregate.DefaultWindowDays
	}
	now := timeutil.SystemClock{}.Now()
	return aggregate.Compute(ctx, store, timeutil.WindowStart(now, windowDays), now, 0)
}

func detectExportFormat(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch ext {
	case "csv":
		return "csv"
	case "xlsx", "xlsm", "xls":
		return "excel"
	default:
		return "csv"
	}
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportMode, "mode", "entries", "Export mode: entries|top")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "", "Output format: csv|excel (optional, inferred from output extension)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path")
	exportCmd.Flags().StringVar(&exportDBPath, "db", "", "Path to SQLite database (default: server.db_path from config)")
	exportCmd.Flags().Int64Var(&exportTaskID, "task", 0, "Restrict entries mode to one task ID")
	exportCmd.Flags().IntVar(&exportWindowDays, "window-days", aggregate.DefaultWindowDays, "Trailing window in days for top mode")

	_ = exportCmd.MarkFlagRequired("output")
}
