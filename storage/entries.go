package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tasktime/ledger"
)

const entryColumns = `
	id,
	task_id,
	owner_id,
	kind,
	started_at,
	stopped_at,
	accumulated_seconds,
	running,
	created_at,
	updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// TimerEntry returns the canonical timer row for the (task, owner) pair.
func (s *SQLiteStore) TimerEntry(ctx context.Context, taskID, ownerID int64) (ledger.Entry, bool, error) {
	query := `SELECT` + entryColumns + `
FROM time_entries
WHERE task_id = ? AND owner_id = ? AND kind = 'timer';`

	entry, err := scanEntry(s.db.QueryRowContext(ctx, query, taskID, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Entry{}, false, nil
		}
		return ledger.Entry{}, false, fmt.Errorf("query timer entry task=%d owner=%d: %w", taskID, ownerID, err)
	}
	return entry, true, nil
}

// CreateEntry inserts a new ledger row and returns it with its ID and timestamps set.
// A second timer row for the same pair is rejected with ErrDuplicate.
func (s *SQLiteStore) CreateEntry(ctx context.Context, entry ledger.Entry) (ledger.Entry, error) {
	if err := s.ensureTaskAndUser(ctx, entry.TaskID, entry.OwnerID); err != nil {
		return ledger.Entry{}, err
	}
	if entry.Kind != ledger.KindTimer && entry.Kind != ledger.KindManual {
		return ledger.Entry{}, fmt.Errorf("unsupported entry kind %q", entry.Kind)
	}

	entry.CreatedAt = s.stamp(entry.CreatedAt)
	entry.UpdatedAt = entry.CreatedAt

	const insertStmt = `
INSERT INTO time_entries (
	task_id,
	owner_id,
	kind,
	started_at,
	stopped_at,
	accumulated_seconds,
	running,
	created_at,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`

	res, err := s.db.ExecContext(
		ctx,
		insertStmt,
		entry.TaskID,
		entry.OwnerID,
		entry.Kind,
		formatTimestamp(entry.StartedAt),
		nullableTimestamp(entry.StoppedAt),
		entry.AccumulatedSeconds,
		boolToInt(entry.Running),
		formatTimestamp(entry.CreatedAt),
		formatTimestamp(entry.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.Entry{}, fmt.Errorf("timer entry task=%d owner=%d: %w", entry.TaskID, entry.OwnerID, ErrDuplicate)
		}
		return ledger.Entry{}, fmt.Errorf("insert time entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("read inserted row id: %w", err)
	}
	entry.ID = id
	return entry, nil
}

// UpdateEntryState persists the mutable timer fields of entry, but only if the stored row
// still has running == expectedRunning. A miss returns ErrStaleEntry.
func (s *SQLiteStore) UpdateEntryState(ctx context.Context, entry ledger.Entry, expectedRunning bool) (ledger.Entry, error) {
	if entry.ID <= 0 {
		return ledger.Entry{}, fmt.Errorf("time entry id must be > 0")
	}
	entry.UpdatedAt = s.stamp(entry.UpdatedAt)

	const updateStmt = `
UPDATE time_entries
SET started_at = ?,
	stopped_at = ?,
	accumulated_seconds = ?,
	running = ?,
	updated_at = ?
WHERE id = ? AND running = ? AND accumulated_seconds <= ?;`

	res, err := s.db.ExecContext(
		ctx,
		updateStmt,
		formatTimestamp(entry.StartedAt),
		nullableTimestamp(entry.StoppedAt),
		entry.AccumulatedSeconds,
		boolToInt(entry.Running),
		formatTimestamp(entry.UpdatedAt),
		entry.ID,
		boolToInt(expectedRunning),
		entry.AccumulatedSeconds,
	)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("update time entry %d: %w", entry.ID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("read updated row count: %w", err)
	}
	if rows == 0 {
		return ledger.Entry{}, fmt.Errorf("time entry %d: %w", entry.ID, ErrStaleEntry)
	}
	return entry, nil
}

// EntriesCreatedBetween lists all ledger rows with created_at in [from, to].
func (s *SQLiteStore) EntriesCreatedBetween(ctx context.Context, from, to time.Time) ([]ledger.Entry, error) {
	query := `SELECT` + entryColumns + `
FROM time_entries
WHERE created_at >= ? AND created_at <= ?
ORDER BY created_at, id;`

	return s.queryEntries(ctx, query, formatTimestamp(from), formatTimestamp(to))
}

// OwnerEntriesCreatedBetween lists one owner's ledger rows with created_at in [from, to].
func (s *SQLiteStore) OwnerEntriesCreatedBetween(ctx context.Context, ownerID int64, from, to time.Time) ([]ledger.Entry, error) {
	query := `SELECT` + entryColumns + `
FROM time_entries
WHERE owner_id = ? AND created_at >= ? AND created_at <= ?
ORDER BY created_at, id;`

	return s.queryEntries(ctx, query, ownerID, formatTimestamp(from), formatTimestamp(to))
}

// ListEntries returns every ledger row, optionally restricted to one task.
func (s *SQLiteStore) ListEntries(ctx context.Context, taskID int64) ([]ledger.Entry, error) {
	if taskID > 0 {
		query := `SELECT` + entryColumns + `
FROM time_entries
WHERE task_id = ?
ORDER BY created_at, id;`
		return s.queryEntries(ctx, query, taskID)
	}

	query := `SELECT` + entryColumns + `
FROM time_entries
ORDER BY created_at, id;`
	return s.queryEntries(ctx, query)
}

func (s *SQLiteStore) queryEntries(ctx context.Context, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query time entries: %w", err)
	}
	defer rows.Close()

	entries := make([]ledger.Entry, 0, 64)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan time entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate time entries: %w", err)
	}
	return entries, nil
}

func scanEntry(row rowScanner) (ledger.Entry, error) {
	var (
		entry      ledger.Entry
		startedRaw string
		stoppedRaw sql.NullString
		running    int
		createdRaw string
		updatedRaw string
	)
	if err := row.Scan(
		&entry.ID,
		&entry.TaskID,
		&entry.OwnerID,
		&entry.Kind,
		&startedRaw,
		&stoppedRaw,
		&entry.AccumulatedSeconds,
		&running,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return ledger.Entry{}, err
	}
	entry.Running = running == 1

	var err error
	if entry.StartedAt, err = parseTimestamp(startedRaw); err != nil {
		return ledger.Entry{}, err
	}
	if stoppedRaw.Valid {
		stopped, err := parseTimestamp(stoppedRaw.String)
		if err != nil {
			return ledger.Entry{}, err
		}
		entry.StoppedAt = &stopped
	}
	if entry.CreatedAt, err = parseTimestamp(createdRaw); err != nil {
		return ledger.Entry{}, err
	}
	if entry.UpdatedAt, err = parseTimestamp(updatedRaw); err != nil {
		return ledger.Entry{}, err
	}
	return entry, nil
}

func nullableTimestamp(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTimestamp(*value)
}

func (s *SQLiteStore) ensureTaskAndUser(ctx context.Context, taskID, userID int64) error {
	if err := s.ensureExists(ctx, "tasks", taskID); err != nil {
		return fmt.Errorf("task %d: %w", taskID, err)
	}
	if err := s.ensureExists(ctx, "users", userID); err != nil {
		return fmt.Errorf("user %d: %w", userID, err)
	}
	return nil
}

func (s *SQLiteStore) ensureExists(ctx context.Context, table string, id int64) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?;`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.ErrEntityNotFound
		}
		return fmt.Errorf("check %s row: %w", table, err)
	}
	return nil
}
