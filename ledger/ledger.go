// Package ledger holds the time entry record and its pure state transitions.
package ledger

import (
	"errors"
	"math"
	"time"

	"tasktime/internal/timeutil"
)

const (
	KindTimer  = "timer"
	KindManual = "manual"
)

var (
	ErrAlreadyRunning  = errors.New("timer is already running")
	ErrNotRunning      = errors.New("timer is not running")
	ErrInvalidDuration = errors.New("duration must be positive")
	ErrEntityNotFound  = errors.New("entity not found")
)

// Entry is one ledger row: the accumulated time a single owner logged against a single task.
// Timer rows are mutated in place across start/stop cycles; only the latest segment
// boundaries are kept.
type Entry struct {
	ID                 int64
	TaskID             int64
	OwnerID            int64
	Kind               string
	StartedAt          time.Time
	StoppedAt          *time.Time
	AccumulatedSeconds int64
	Running            bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Open starts a new running segment at the given instant.
func Open(entry *Entry, at time.Time) error {
	if entry.Running {
		return ErrAlreadyRunning
	}
	entry.Running = true
	entry.StartedAt = at
	entry.StoppedAt = nil
	return nil
}

// Close ends the running segment and adds its whole seconds to the total.
// It returns the number of seconds added.
func Close(entry *Entry, at time.Time) (int64, error) {
	if !entry.Running {
		return 0, ErrNotRunning
	}
	if at.Before(entry.StartedAt) {
		return 0, ErrInvalidDuration
	}

	elapsed := timeutil.WholeSeconds(at.Sub(entry.StartedAt))
	if elapsed > math.MaxInt64-entry.AccumulatedSeconds {
		return 0, ErrInvalidDuration
	}
	stopped := at
	entry.AccumulatedSeconds += elapsed
	entry.Running = false
	entry.StoppedAt = &stopped
	return elapsed, nil
}

// AddManual adds back-dated seconds without touching the running state.
func AddManual(entry *Entry, seconds int64) error {
	if seconds <= 0 || seconds > math.MaxInt64-entry.AccumulatedSeconds {
		return ErrInvalidDuration
	}
	entry.AccumulatedSeconds += seconds
	return nil
}

// MinutesToSeconds converts a caller-supplied minute count at the service boundary.
func MinutesToSeconds(minutes int64) (int64, error) {
	if minutes <= 0 || minutes > math.MaxInt64/60 {
		return 0, ErrInvalidDuration
	}
	return minutes * 60, nil
}

// Elapsed reports the accumulated total plus the live segment when running.
func (e Entry) Elapsed(now time.Time) int64 {
	if !e.Running {
		return e.AccumulatedSeconds
	}
	return e.AccumulatedSeconds + timeutil.WholeSeconds(now.Sub(e.StartedAt))
}
