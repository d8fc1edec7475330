package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tasktime/ledger"
	"tasktime/tasks"
)

const taskColumns = `
	id,
	title,
	description,
	status,
	owner_id,
	created_at,
	updated_at`

func (s *SQLiteStore) CreateTask(ctx context.Context, task tasks.Task) (tasks.Task, error) {
	if err := s.ensureExists(ctx, "users", task.OwnerID); err != nil {
		return tasks.Task{}, fmt.Errorf("user %d: %w", task.OwnerID, err)
	}
	if task.Status == "" {
		task.Status = tasks.StatusOpen
	}
	task.CreatedAt = s.stamp(task.CreatedAt)
	task.UpdatedAt = task.CreatedAt

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO tasks (title, description, status, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?);`,
		task.Title,
		task.Description,
		task.Status,
		task.OwnerID,
		formatTimestamp(task.CreatedAt),
		formatTimestamp(task.UpdatedAt),
	)
	if err != nil {
		return tasks.Task{}, fmt.Errorf("insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return tasks.Task{}, fmt.Errorf("read inserted row id: %w", err)
	}
	task.ID = id
	return task, nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, id int64) (tasks.Task, error) {
	query := `SELECT` + taskColumns + ` FROM tasks WHERE id = ?;`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tasks.Task{}, fmt.Errorf("task %d: %w", id, ledger.ErrEntityNotFound)
		}
		return tasks.Task{}, fmt.Errorf("query task %d: %w", id, err)
	}
	return task, nil
}

// TasksByID loads the given tasks keyed by ID; unknown IDs are absent from the result.
func (s *SQLiteStore) TasksByID(ctx context.Context, ids []int64) (map[int64]tasks.Task, error) {
	out := make(map[int64]tasks.Task, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT`+taskColumns+` FROM tasks WHERE id IN (`+placeholders+`);`, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks by id: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out[task.ID] = task
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) ListTasks(ctx context.Context, filter tasks.Filter) ([]tasks.Task, error) {
	conditions := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if filter.Search != "" {
		conditions = append(conditions, `title LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(filter.Search)+"%")
	}
	if filter.OwnerID > 0 {
		conditions = append(conditions, `owner_id = ?`)
		args = append(args, filter.OwnerID)
	}
	if filter.Status != "" {
		conditions = append(conditions, `status = ?`)
		args = append(args, filter.Status)
	}

	query := `SELECT` + taskColumns + ` FROM tasks`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY id;`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	out := make([]tasks.Task, 0, 32)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return expectOneRow(res, fmt.Sprintf("task %d", id))
}

func (s *SQLiteStore) SetTaskOwner(ctx context.Context, taskID, ownerID int64) error {
	if err := s.ensureTaskAndUser(ctx, taskID, ownerID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET owner_id = ?, updated_at = ? WHERE id = ?;`,
		ownerID,
		formatTimestamp(s.clock.Now()),
		taskID,
	)
	if err != nil {
		return fmt.Errorf("update task %d owner: %w", taskID, err)
	}
	return expectOneRow(res, fmt.Sprintf("task %d", taskID))
}

func (s *SQLiteStore) SetTaskStatus(ctx context.Context, taskID int64, status string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?;`,
		status,
		formatTimestamp(s.clock.Now()),
		taskID,
	)
	if err != nil {
		return fmt.Errorf("update task %d status: %w", taskID, err)
	}
	return expectOneRow(res, fmt.Sprintf("task %d", taskID))
}

func (s *SQLiteStore) AddComment(ctx context.Context, comment tasks.Comment) (tasks.Comment, error) {
	if err := s.ensureTaskAndUser(ctx, comment.TaskID, comment.AuthorID); err != nil {
		return tasks.Comment{}, err
	}
	comment.CreatedAt = s.stamp(comment.CreatedAt)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO comments (task_id, author_id, text, created_at) VALUES (?, ?, ?, ?);`,
		comment.TaskID,
		comment.AuthorID,
		comment.Text,
		formatTimestamp(comment.CreatedAt),
	)
	if err != nil {
		return tasks.Comment{}, fmt.Errorf("insert comment: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return tasks.Comment{}, fmt.Errorf("read inserted row id: %w", err)
	}
	comment.ID = id
	return comment, nil
}

func (s *SQLiteStore) ListComments(ctx context.Context, taskID int64) ([]tasks.Comment, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, task_id, author_id, text, created_at FROM comments WHERE task_id = ? ORDER BY id;`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	out := make([]tasks.Comment, 0, 16)
	for rows.Next() {
		var (
			comment    tasks.Comment
			createdRaw string
		)
		if err := rows.Scan(&comment.ID, &comment.TaskID, &comment.AuthorID, &comment.Text, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		if comment.CreatedAt, err = parseTimestamp(createdRaw); err != nil {
			return nil, err
		}
		out = append(out, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return out, nil
}

func scanTask(row rowScanner) (tasks.Task, error) {
	var (
		task       tasks.Task
		createdRaw string
		updatedRaw string
	)
	if err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.Status,
		&task.OwnerID,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return tasks.Task{}, err
	}

	var err error
	if task.CreatedAt, err = parseTimestamp(createdRaw); err != nil {
		return tasks.Task{}, err
	}
	if task.UpdatedAt, err = parseTimestamp(updatedRaw); err != nil {
		return tasks.Task{}, err
	}
	return task, nil
}

func expectOneRow(res sql.Result, subject string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read affected row count: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", subject, ledger.ErrEntityNotFound)
	}
	return nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
