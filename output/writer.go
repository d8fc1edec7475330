package output

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"tasktime/aggregate"
	"tasktime/ledger"
)

// Table is a header row plus values; cells are strings, ints or times.
type Table struct {
	Headers []string
	Rows    [][]any
}

type Writer interface {
	Write(path string, table Table) error
}

func WriterForFormat(format string) (Writer, error) {
	switch normalizeFormat(format) {
	case "csv":
		return &CSVWriter{}, nil
	case "excel", "xlsx":
		return &ExcelWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

func EntriesTable(entries []ledger.Entry) Table {
	table := Table{
		Headers: []string{"ID", "TaskID", "OwnerID", "Kind", "StartedAt", "StoppedAt", "DurationSeconds", "Running", "CreatedAt"},
		Rows:    make([][]any, 0, len(entries)),
	}
	for _, entry := range entries {
		var stopped any = ""
		if entry.StoppedAt != nil {
			stopped = *entry.StoppedAt
		}
		table.Rows = append(table.Rows, []any{
			entry.ID,
			entry.TaskID,
			entry.OwnerID,
			entry.Kind,
			entry.StartedAt,
			stopped,
			entry.AccumulatedSeconds,
			entry.Running,
			entry.CreatedAt,
		})
	}
	return table
}

func TopTasksTable(rows []aggregate.Row) Table {
	table := Table{
		Headers: []string{"Rank", "TaskID", "Title", "Status", "OwnerID", "TotalSeconds", "TotalHours"},
		Rows:    make([][]any, 0, len(rows)),
	}
	for i, row := range rows {
		table.Rows = append(table.Rows, []any{
			i + 1,
			row.TaskID,
			row.Title,
			row.Status,
			row.OwnerID,
			row.TotalSeconds,
			strconv.FormatFloat(float64(row.TotalSeconds)/3600, 'f', 2, 64),
		})
	}
	return table
}

func formatCell(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func normalizeFormat(value string) string {
	return strings.TrimSpace(strings.ToLower(value))
}
