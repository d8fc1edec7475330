package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"tasktime/notify"
)

const maxTitleLength = 255

// ValidationError carries per-field messages, rendered as {"field": ["msg"]} by the web layer.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, messages := range e.Fields {
		parts = append(parts, field+": "+strings.Join(messages, ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func fieldError(field, message string) error {
	return &ValidationError{Fields: map[string][]string{field: {message}}}
}

type Store interface {
	CreateTask(ctx context.Context, task Task) (Task, error)
	GetTask(ctx context.Context, id int64) (Task, error)
	ListTasks(ctx context.Context, filter Filter) ([]Task, error)
	DeleteTask(ctx context.Context, id int64) error
	SetTaskOwner(ctx context.Context, taskID, ownerID int64) error
	SetTaskStatus(ctx context.Context, taskID int64, status string) error
	AddComment(ctx context.Context, comment Comment) (Comment, error)
	ListComments(ctx context.Context, taskID int64) ([]Comment, error)
}

// Notifier receives terminal task events; delivery is fire-and-forget.
type Notifier interface {
	Dispatch(event notify.Event)
}

type Service struct {
	store    Store
	notifier Notifier
}

func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

func (s *Service) Create(ctx context.Context, ownerID int64, title, description string) (Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, fieldError("title", "This field is required.")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return Task{}, fieldError("title", fmt.Sprintf("Ensure this field has no more than %d characters.", maxTitleLength))
	}

	task, err := s.store.CreateTask(ctx, Task{
		Title:       title,
		Description: description,
		Status:      StatusOpen,
		OwnerID:     ownerID,
	})
	if err != nil {
		return Task{}, err
	}
	s.dispatch(notify.Event{Kind: notify.TaskAssigned, TaskID: task.ID, UserID: ownerID})
	return task, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Task, error) {
	return s.store.GetTask(ctx, id)
}

func (s *Service) List(ctx context.Context, search string) ([]Task, error) {
	return s.store.ListTasks(ctx, Filter{Search: strings.TrimSpace(search)})
}

func (s *Service) Mine(ctx context.Context, ownerID int64) ([]Task, error) {
	return s.store.ListTasks(ctx, Filter{OwnerID: ownerID})
}

func (s *Service) Completed(ctx context.Context) ([]Task, error) {
	return s.store.ListTasks(ctx, Filter{Status: StatusComplete})
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.DeleteTask(ctx, id)
}

// SetOwner reassigns a task and notifies the new owner.
func (s *Service) SetOwner(ctx context.Context, taskID, ownerID int64) error {
	if err := s.store.SetTaskOwner(ctx, taskID, ownerID); err != nil {
		return err
	}
	s.dispatch(notify.Event{Kind: notify.TaskAssigned, TaskID: taskID, UserID: ownerID})
	return nil
}

// SetCompleted marks a task complete and notifies everyone who commented on it.
func (s *Service) SetCompleted(ctx context.Context, taskID int64) error {
	if err := s.store.SetTaskStatus(ctx, taskID, StatusComplete); err != nil {
		return err
	}
	s.dispatch(notify.Event{Kind: notify.TaskCompleted, TaskID: taskID})
	return nil
}

func (s *Service) AddComment(ctx context.Context, taskID, authorID int64, text string) (Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Comment{}, fieldError("text", "This field is required.")
	}

	comment, err := s.store.AddComment(ctx, Comment{TaskID: taskID, AuthorID: authorID, Text: text})
	if err != nil {
		return Comment{}, err
	}
	s.dispatch(notify.Event{Kind: notify.CommentAdded, TaskID: taskID, UserID: authorID})
	return comment, nil
}

func (s *Service) Comments(ctx context.Context, taskID int64) ([]Comment, error) {
	if _, err := s.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, taskID)
}

func (s *Service) dispatch(event notify.Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.Dispatch(event)
}

// IsValidation reports whether err is a field validation failure.
func IsValidation(err error) (*ValidationError, bool) {
	var target *ValidationError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
