// Package timer serializes start/stop/manual-add commands per (task, owner) pair.
package timer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tasktime/internal/timeutil"
	"tasktime/ledger"
)

var (
	ErrTimerAlreadyRunning = errors.New("timer for task is running already")
	ErrTimerNotFound       = errors.New("timer for task was not found")
	ErrConcurrentUpdate    = errors.New("timer was changed by another request")
)

// Store is the persistence the registry needs. UpdateEntryState must only write when the
// stored row still has running == expectedRunning; misses are recognized via WithStaleCheck.
type Store interface {
	TimerEntry(ctx context.Context, taskID, ownerID int64) (ledger.Entry, bool, error)
	CreateEntry(ctx context.Context, entry ledger.Entry) (ledger.Entry, error)
	UpdateEntryState(ctx context.Context, entry ledger.Entry, expectedRunning bool) (ledger.Entry, error)
}

type key struct {
	taskID  int64
	ownerID int64
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

type Registry struct {
	store Store
	clock timeutil.Clock
	// isStale reports whether a store error is a lost compare-and-swap.
	isStale func(error) bool

	mu    sync.Mutex
	locks map[key]*keyLock
}

type Option func(*Registry)

// WithStaleCheck sets how store compare-and-swap misses are recognized.
func WithStaleCheck(fn func(error) bool) Option {
	return func(r *Registry) {
		r.isStale = fn
	}
}

func WithClock(clock timeutil.Clock) Option {
	return func(r *Registry) {
		r.clock = clock
	}
}

func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:   store,
		clock:   timeutil.SystemClock{},
		isStale: func(error) bool { return false },
		locks:   make(map[key]*keyLock),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now returns the registry clock's current instant.
func (r *Registry) Now() time.Time {
	return r.clock.Now()
}

// StartTimer opens a running segment for the pair, creating the timer entry on first use.
func (r *Registry) StartTimer(ctx context.Context, taskID, ownerID int64, at time.Time) (ledger.Entry, error) {
	unlock := r.lock(key{taskID: taskID, ownerID: ownerID})
	defer unlock()

	entry, found, err := r.store.TimerEntry(ctx, taskID, ownerID)
	if err != nil {
		return ledger.Entry{}, err
	}

	if !found {
		entry = ledger.Entry{TaskID: taskID, OwnerID: ownerID, Kind: ledger.KindTimer, CreatedAt: at}
		if err := ledger.Open(&entry, at); err != nil {
			return ledger.Entry{}, err
		}
		created, err := r.store.CreateEntry(ctx, entry)
		if err != nil {
			return ledger.Entry{}, r.translate(err)
		}
		return created, nil
	}

	if err := ledger.Open(&entry, at); err != nil {
		if errors.Is(err, ledger.ErrAlreadyRunning) {
			return ledger.Entry{}, ErrTimerAlreadyRunning
		}
		return ledger.Entry{}, err
	}
	entry.UpdatedAt = at
	updated, err := r.store.UpdateEntryState(ctx, entry, false)
	if err != nil {
		return ledger.Entry{}, r.translate(err)
	}
	return updated, nil
}

// StopTimer closes the running segment and returns the entry with its new total.
func (r *Registry) StopTimer(ctx context.Context, taskID, ownerID int64, at time.Time) (ledger.Entry, error) {
	unlock := r.lock(key{taskID: taskID, ownerID: ownerID})
	defer unlock()

	entry, found, err := r.store.TimerEntry(ctx, taskID, ownerID)
	if err != nil {
		return ledger.Entry{}, err
	}
	if !found || !entry.Running {
		return ledger.Entry{}, ErrTimerNotFound
	}

	if _, err := ledger.Close(&entry, at); err != nil {
		return ledger.Entry{}, err
	}
	entry.UpdatedAt = at
	updated, err := r.store.UpdateEntryState(ctx, entry, true)
	if err != nil {
		return ledger.Entry{}, r.translate(err)
	}
	return updated, nil
}

// AddManualEntry records back-dated time as a new, independent, stopped entry.
func (r *Registry) AddManualEntry(ctx context.Context, taskID, ownerID int64, startAt time.Time, minutes int64) (ledger.Entry, error) {
	seconds, err := ledger.MinutesToSeconds(minutes)
	if err != nil {
		return ledger.Entry{}, err
	}

	entry := ledger.Entry{
		TaskID:    taskID,
		OwnerID:   ownerID,
		Kind:      ledger.KindManual,
		StartedAt: startAt,
		CreatedAt: r.clock.Now(),
	}
	if err := ledger.AddManual(&entry, seconds); err != nil {
		return ledger.Entry{}, err
	}
	return r.store.CreateEntry(ctx, entry)
}

// Status returns the pair's timer entry without changing it.
func (r *Registry) Status(ctx context.Context, taskID, ownerID int64) (ledger.Entry, error) {
	entry, found, err := r.store.TimerEntry(ctx, taskID, ownerID)
	if err != nil {
		return ledger.Entry{}, err
	}
	if !found {
		return ledger.Entry{}, ErrTimerNotFound
	}
	return entry, nil
}

func (r *Registry) translate(err error) error {
	if r.isStale(err) {
		return fmt.Errorf("%w: %w", ErrConcurrentUpdate, err)
	}
	return err
}

// lock takes the per-pair mutex. Locks are reference counted so the map only holds
// pairs with a command in flight.
func (r *Registry) lock(k key) func() {
	r.mu.Lock()
	l, ok := r.locks[k]
	if !ok {
		l = &keyLock{}
		r.locks[k] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, k)
		}
		r.mu.Unlock()
	}
}

func (r *Registry) lockCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
