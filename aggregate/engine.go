// Package aggregate ranks tasks by time logged over a trailing window.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sync/singleflight"

	"tasktime/cache"
	"tasktime/internal/timeutil"
	"tasktime/ledger"
	"tasktime/tasks"
)

const (
	DefaultWindowDays = 30
	DefaultLimit      = 20
	DefaultCacheTTL   = 60 * time.Second
)

// Row is one ranked task with its summed duration.
type Row struct {
	TaskID       int64  `cbor:"1,keyasint"`
	Title        string `cbor:"2,keyasint"`
	Status       string `cbor:"3,keyasint"`
	OwnerID      int64  `cbor:"4,keyasint"`
	TotalSeconds int64  `cbor:"5,keyasint"`
}

type Store interface {
	EntriesCreatedBetween(ctx context.Context, from, to time.Time) ([]ledger.Entry, error)
	OwnerEntriesCreatedBetween(ctx context.Context, ownerID int64, from, to time.Time) ([]ledger.Entry, error)
	TasksByID(ctx context.Context, ids []int64) (map[int64]tasks.Task, error)
}

type Options struct {
	WindowDays int
	Limit      int
	CacheTTL   time.Duration
}

type Engine struct {
	store Store
	cache cache.Cache
	opts  Options
	group singleflight.Group
	enc   cbor.EncMode
}

func NewEngine(store Store, resultCache cache.Cache, opts Options) (*Engine, error) {
	if opts.WindowDays <= 0 {
		opts.WindowDays = DefaultWindowDays
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}

	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("create report encoder: %w", err)
	}

	return &Engine{store: store, cache: resultCache, opts: opts, enc: enc}, nil
}

// TopTasks returns the tasks with the most time logged in the window ending at now.
// Results are cached per requester for the configured TTL.
func (e *Engine) TopTasks(ctx context.Context, requesterID int64, now time.Time) ([]Row, error) {
	key := fmt.Sprintf("top:%d", requesterID)
	if cached, ok := e.cache.Get(key); ok {
		return decodeRows(cached)
	}

	// Concurrent misses for the same requester share one computation, so it must not
	// stop when the caller that started it goes away.
	shared := context.WithoutCancel(ctx)
	value, err, _ := e.group.Do(key, func() (any, error) {
		rows, err := e.computeTopTasks(shared, now)
		if err != nil {
			return nil, err
		}
		encoded, err := e.enc.Marshal(rows)
		if err != nil {
			return nil, fmt.Errorf("encode top tasks: %w", err)
		}
		e.cache.Set(key, encoded, e.opts.CacheTTL)
		return encoded, nil
	})
	if err != nil {
		return nil, err
	}
	return decodeRows(value.([]byte))
}

// OwnerLogs returns the owner's entries created within the window ending at now.
func (e *Engine) OwnerLogs(ctx context.Context, ownerID int64, now time.Time) ([]ledger.Entry, error) {
	return e.store.OwnerEntriesCreatedBetween(ctx, ownerID, timeutil.WindowStart(now, e.opts.WindowDays), now)
}

func (e *Engine) computeTopTasks(ctx context.Context, now time.Time) ([]Row, error) {
	return Compute(ctx, e.store, timeutil.WindowStart(now, e.opts.WindowDays), now, e.opts.Limit)
}

// Compute ranks the entries created in [from, to] and fills in task details.
func Compute(ctx context.Context, store Store, from, to time.Time, limit int) ([]Row, error) {
	entries, err := store.EntriesCreatedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load window entries: %w", err)
	}

	rows := Rank(entries, limit)
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.TaskID)
	}
	byID, err := store.TasksByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load ranked tasks: %w", err)
	}
	for i := range rows {
		if task, ok := byID[rows[i].TaskID]; ok {
			rows[i].Title = task.Title
			rows[i].Status = task.Status
			rows[i].OwnerID = task.OwnerID
		}
	}
	return rows, nil
}

// Rank sums accumulated seconds per task, orders by total descending with ties broken by
// ascending task id, and keeps at most limit rows (limit <= 0 keeps all).
func Rank(entries []ledger.Entry, limit int) []Row {
	totals := make(map[int64]int64, len(entries))
	for _, entry := range entries {
		totals[entry.TaskID] += max(entry.AccumulatedSeconds, 0)
	}

	rows := make([]Row, 0, len(totals))
	for taskID, total := range totals {
		rows = append(rows, Row{TaskID: taskID, TotalSeconds: total})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalSeconds != rows[j].TotalSeconds {
			return rows[i].TotalSeconds > rows[j].TotalSeconds
		}
		return rows[i].TaskID < rows[j].TaskID
	})

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

func decodeRows(data []byte) ([]Row, error) {
	var rows []Row
	if err := cbor.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode top tasks: %w", err)
	}
	if rows == nil {
		rows = []Row{}
	}
	return rows, nil
}
