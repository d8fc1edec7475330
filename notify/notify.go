// Package notify delivers task event emails on a fire-and-forget basis.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

type Kind string

const (
	TaskAssigned  Kind = "task_assigned"
	CommentAdded  Kind = "comment_added"
	TaskCompleted Kind = "task_completed"
)

// Event is a terminal task event. UserID is the assignee for TaskAssigned and the
// comment author for CommentAdded; it is unused for TaskCompleted.
type Event struct {
	Kind   Kind
	TaskID int64
	UserID int64
}

type template struct {
	subject string
	body    string
}

var templates = map[Kind]template{
	TaskAssigned: {
		subject: "New task assigned",
		body:    "Hello, new task assigned to you!!!",
	},
	CommentAdded: {
		subject: "New comment to your task",
		body:    "Hello, new comment assigned to your task!!!",
	},
	TaskCompleted: {
		subject: "Task completed",
		body:    "The task you commented on has been changed to the complete state!!!",
	},
}

type Message struct {
	ID      string
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Directory resolves user and task relations to email addresses.
type Directory interface {
	UserEmail(ctx context.Context, userID int64) (string, error)
	TaskOwnerEmail(ctx context.Context, taskID int64) (string, error)
	CommenterEmails(ctx context.Context, taskID int64) ([]string, error)
}

type Dispatcher struct {
	directory Directory
	sender    Sender
	logger    *slog.Logger
	timeout   time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(directory Directory, sender Sender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		directory: directory,
		sender:    sender,
		logger:    logger,
		timeout:   30 * time.Second,
	}
}

// Dispatch queues delivery of the event and returns immediately. Events arriving after
// Close are dropped.
func (d *Dispatcher) Dispatch(event Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("notification dropped after shutdown", "kind", event.Kind, "task_id", event.TaskID)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.Deliver(ctx, event); err != nil {
			d.logger.Error("notification delivery failed", "kind", event.Kind, "task_id", event.TaskID, "error", err)
		}
	}()
}

// Deliver resolves recipients and sends one message per address.
func (d *Dispatcher) Deliver(ctx context.Context, event Event) error {
	tmpl, ok := templates[event.Kind]
	if !ok {
		return fmt.Errorf("unknown notification kind %q", event.Kind)
	}

	recipients, err := d.Recipients(ctx, event)
	if err != nil {
		return fmt.Errorf("resolve recipients: %w", err)
	}

	var errs error
	for _, to := range recipients {
		msg := Message{
			ID:      uuid.NewString(),
			To:      to,
			Subject: tmpl.subject,
			Body:    tmpl.body,
		}
		if err := d.sender.Send(ctx, msg); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("send to %s: %w", to, err))
		}
	}
	return errs
}

// Recipients returns the sorted, de-duplicated address set for an event.
func (d *Dispatcher) Recipients(ctx context.Context, event Event) ([]string, error) {
	var addresses []string
	switch event.Kind {
	case TaskAssigned:
		email, err := d.directory.UserEmail(ctx, event.UserID)
		if err != nil {
			return nil, err
		}
		addresses = []string{email}
	case CommentAdded:
		owner, err := d.directory.TaskOwnerEmail(ctx, event.TaskID)
		if err != nil {
			return nil, err
		}
		author, err := d.directory.UserEmail(ctx, event.UserID)
		if err != nil {
			return nil, err
		}
		if !strings.EqualFold(owner, author) {
			addresses = []string{owner}
		}
	case TaskCompleted:
		emails, err := d.directory.CommenterEmails(ctx, event.TaskID)
		if err != nil {
			return nil, err
		}
		addresses = emails
	default:
		return nil, fmt.Errorf("unknown notification kind %q", event.Kind)
	}
	return normalizeAddresses(addresses), nil
}

// Close stops accepting events and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}

func normalizeAddresses(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}
