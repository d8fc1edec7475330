package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"tasktime/ledger"
)

type User struct {
	ID        int64
	Email     string
	FirstName string
	LastName  string
	CreatedAt time.Time
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// CreateUser provisions a user and returns the API token. Only a bcrypt hash of the
// token secret is stored; the token itself is shown once.
func (s *SQLiteStore) CreateUser(ctx context.Context, email, firstName, lastName string) (User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return User{}, "", fmt.Errorf("email is required")
	}

	secret := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.tokenCost)
	if err != nil {
		return User{}, "", fmt.Errorf("hash api token: %w", err)
	}

	user := User{
		Email:     email,
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		CreatedAt: s.clock.Now(),
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO users (email, first_name, last_name, token_hash, created_at) VALUES (?, ?, ?, ?, ?);`,
		user.Email,
		user.FirstName,
		user.LastName,
		string(hash),
		formatTimestamp(user.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, "", fmt.Errorf("user %q: %w", email, ErrDuplicate)
		}
		return User{}, "", fmt.Errorf("insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return User{}, "", fmt.Errorf("read inserted row id: %w", err)
	}
	user.ID = id
	return user, fmt.Sprintf("%d.%s", id, secret), nil
}

// AuthenticateToken resolves a "<user id>.<secret>" API token to its user.
func (s *SQLiteStore) AuthenticateToken(ctx context.Context, token string) (User, error) {
	idRaw, secret, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || secret == "" {
		return User{}, ErrInvalidToken
	}
	id, err := strconv.ParseInt(idRaw, 10, 64)
	if err != nil || id <= 0 {
		return User{}, ErrInvalidToken
	}

	var (
		user       User
		hash       string
		createdRaw string
	)
	err = s.db.QueryRowContext(
		ctx,
		`SELECT id, email, first_name, last_name, token_hash, created_at FROM users WHERE id = ?;`,
		id,
	).Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &hash, &createdRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrInvalidToken
		}
		return User{}, fmt.Errorf("query user %d: %w", id, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return User{}, ErrInvalidToken
	}
	if user.CreatedAt, err = parseTimestamp(createdRaw); err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (User, error) {
	var (
		user       User
		createdRaw string
	)
	err := s.db.QueryRowContext(
		ctx,
		`SELECT id, email, first_name, last_name, created_at FROM users WHERE id = ?;`,
		id,
	).Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &createdRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, fmt.Errorf("user %d: %w", id, ledger.ErrEntityNotFound)
		}
		return User{}, fmt.Errorf("query user %d: %w", id, err)
	}
	if user.CreatedAt, err = parseTimestamp(createdRaw); err != nil {
		return User{}, err
	}
	return user, nil
}

// UserEmail implements the notification directory lookup for one user.
func (s *SQLiteStore) UserEmail(ctx context.Context, userID int64) (string, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Email, nil
}

// TaskOwnerEmail returns the email of the user owning the task.
func (s *SQLiteStore) TaskOwnerEmail(ctx context.Context, taskID int64) (string, error) {
	var email string
	err := s.db.QueryRowContext(
		ctx,
		`SELECT u.email FROM tasks t JOIN users u ON u.id = t.owner_id WHERE t.id = ?;`,
		taskID,
	).Scan(&email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("task %d: %w", taskID, ledger.ErrEntityNotFound)
		}
		return "", fmt.Errorf("query task %d owner: %w", taskID, err)
	}
	return email, nil
}

// CommenterEmails returns the distinct emails of everyone who commented on the task.
func (s *SQLiteStore) CommenterEmails(ctx context.Context, taskID int64) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT DISTINCT u.email FROM comments c JOIN users u ON u.id = c.author_id WHERE c.task_id = ? ORDER BY u.email;`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("query commenters: %w", err)
	}
	defer rows.Close()

	emails := make([]string, 0, 8)
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan commenter: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commenters: %w", err)
	}
	return emails, nil
}
