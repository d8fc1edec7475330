package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tasktime/ledger"
	"tasktime/tasks"
)

// Stats counts the rows a database currently holds.
type Stats struct {
	Users         int64
	Tasks         int64
	Entries       int64
	RunningTimers int64
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.db.QueryRowContext(ctx, `
SELECT
	(SELECT COUNT(*) FROM users),
	(SELECT COUNT(*) FROM tasks),
	(SELECT COUNT(*) FROM time_entries),
	(SELECT COUNT(*) FROM time_entries WHERE running = 1);`,
	).Scan(&stats.Users, &stats.Tasks, &stats.Entries, &stats.RunningTimers)
	if err != nil {
		return Stats{}, fmt.Errorf("query database stats: %w", err)
	}
	return stats, nil
}

// FirstUser returns the user with the lowest id.
func (s *SQLiteStore) FirstUser(ctx context.Context) (User, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM users ORDER BY id LIMIT 1;`).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, fmt.Errorf("no users: %w", ledger.ErrEntityNotFound)
		}
		return User{}, fmt.Errorf("query first user: %w", err)
	}
	return s.GetUser(ctx, id)
}

// InsertTasks writes all tasks in one transaction and returns their new ids in input order.
func (s *SQLiteStore) InsertTasks(ctx context.Context, list []tasks.Task) ([]int64, error) {
	if len(list) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	const insertStmt = `
INSERT INTO tasks (
	title,
	description,
	status,
	owner_id,
	created_at,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?);`

	stmt, err := tx.PrepareContext(ctx, insertStmt)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("prepare insert statement: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(list))
	for _, task := range list {
		if task.Status == "" {
			task.Status = tasks.StatusOpen
		}
		created := s.stamp(task.CreatedAt)
		res, err := stmt.ExecContext(
			ctx,
			task.Title,
			task.Description,
			task.Status,
			task.OwnerID,
			formatTimestamp(created),
			formatTimestamp(created),
		)
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("insert task: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("read inserted row id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return ids, nil
}

// InsertEntries writes timer and manual rows in one transaction and returns how many were
// inserted. A timer row for a pair that already has one is skipped.
func (s *SQLiteStore) InsertEntries(ctx context.Context, entries []ledger.Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	for _, entry := range entries {
		if entry.Kind != ledger.KindTimer && entry.Kind != ledger.KindManual {
			return 0, fmt.Errorf("unsupported entry kind %q", entry.Kind)
		}
		if entry.AccumulatedSeconds < 0 {
			return 0, fmt.Errorf("entry task=%d owner=%d: %w", entry.TaskID, entry.OwnerID, ledger.ErrInvalidDuration)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}

	const insertStmt = `
INSERT OR IGNORE INTO time_entries (
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

	stmt, err := tx.PrepareContext(ctx, insertStmt)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prepare insert statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, entry := range entries {
		created := s.stamp(entry.CreatedAt)
		res, err := stmt.ExecContext(
			ctx,
			entry.TaskID,
			entry.OwnerID,
			entry.Kind,
			formatTimestamp(entry.StartedAt),
			nullableTimestamp(entry.StoppedAt),
			entry.AccumulatedSeconds,
			boolToInt(entry.Running),
			formatTimestamp(created),
			formatTimestamp(created),
		)
		if err != nil {
			_ = tx.Rollback()
			return inserted, fmt.Errorf("insert time entry: %w", err)
		}

		rows, err := res.RowsAffected()
		if err == nil && rows > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("commit transaction: %w", err)
	}
	return inserted, nil
}
