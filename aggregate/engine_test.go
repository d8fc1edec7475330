package aggregate

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tasktime/cache"
	"tasktime/ledger"
	"tasktime/tasks"
)

type memoryStore struct {
	mu      sync.Mutex
	entries []ledger.Entry
	tasks   map[int64]tasks.Task
	loads   atomic.Int64
}

func (s *memoryStore) add(entries ...ledger.Entry) {
	s.mu.Lock()
	s.entries = append(s.entries, entries...)
	s.mu.Unlock()
}

func (s *memoryStore) EntriesCreatedBetween(_ context.Context, from, to time.Time) ([]ledger.Entry, error) {
	s.loads.Add(1)
	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Entry
	for _, entry := range s.entries {
		if !entry.CreatedAt.Before(from) && !entry.CreatedAt.After(to) {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *memoryStore) OwnerEntriesCreatedBetween(ctx context.Context, ownerID int64, from, to time.Time) ([]ledger.Entry, error) {
	all, err := s.EntriesCreatedBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	var out []ledger.Entry
	for _, entry := range all {
		if entry.OwnerID == ownerID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *memoryStore) TasksByID(_ context.Context, ids []int64) (map[int64]tasks.Task, error) {
	out := make(map[int64]tasks.Task, len(ids))
	for _, id := range ids {
		if task, ok := s.tasks[id]; ok {
			out[id] = task
		}
	}
	return out, nil
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var now = time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

func entry(taskID, ownerID, seconds int64, created time.Time) ledger.Entry {
	return ledger.Entry{TaskID: taskID, OwnerID: ownerID, AccumulatedSeconds: seconds, CreatedAt: created}
}

func newTestEngine(t *testing.T, store Store, clock *manualClock) *Engine {
	t.Helper()
	c, err := cache.NewTTLCache(16, clock)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	engine, err := NewEngine(store, c, Options{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func TestRank_SumsAndOrders(t *testing.T) {
	t.Parallel()

	rows := Rank([]ledger.Entry{
		entry(1, 1, 100, now),
		entry(1, 2, 50, now),
		entry(2, 1, 30, now),
	}, 20)

	want := []Row{
		{TaskID: 1, TotalSeconds: 150},
		{TaskID: 2, TotalSeconds: 30},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("expected %+v, got %+v", want, rows)
	}
}

func TestRank_BreaksTiesByTaskIDAndTruncates(t *testing.T) {
	t.Parallel()

	rows := Rank([]ledger.Entry{
		entry(9, 1, 60, now),
		entry(3, 1, 60, now),
		entry(5, 1, 60, now),
		entry(4, 1, 0, now),
		entry(7, 1, 120, now),
	}, 3)

	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if got := []int64{rows[0].TaskID, rows[1].TaskID, rows[2].TaskID}; !reflect.DeepEqual(got, []int64{7, 3, 5}) {
		t.Fatalf("expected order [7 3 5], got %v", got)
	}
}

func TestTopTasks_ScopesToWindowAndEnriches(t *testing.T) {
	t.Parallel()

	store := &memoryStore{tasks: map[int64]tasks.Task{
		1: {ID: 1, Title: "write docs", Status: tasks.StatusOpen, OwnerID: 3},
		2: {ID: 2, Title: "fix bug", Status: tasks.StatusComplete, OwnerID: 4},
	}}
	store.add(
		entry(1, 1, 100, now.Add(-time.Hour)),
		entry(1, 2, 50, now.AddDate(0, 0, -29)),
		entry(2, 1, 30, now.Add(-time.Minute)),
		entry(2, 1, 10_000, now.AddDate(0, 0, -31)),
	)

	engine := newTestEngine(t, store, &manualClock{now: now})
	rows, err := engine.TopTasks(context.Background(), 1, now)
	if err != nil {
		t.Fatalf("top tasks: %v", err)
	}

	want := []Row{
		{TaskID: 1, Title: "write docs", Status: tasks.StatusOpen, OwnerID: 3, TotalSeconds: 150},
		{TaskID: 2, Title: "fix bug", Status: tasks.StatusComplete, OwnerID: 4, TotalSeconds: 30},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("expected %+v, got %+v", want, rows)
	}
}

func TestTopTasks_ServesCachedResultUntilTTL(t *testing.T) {
	t.Parallel()

	store := &memoryStore{tasks: map[int64]tasks.Task{}}
	store.add(entry(1, 1, 100, now.Add(-time.Hour)))

	clock := &manualClock{now: now}
	engine := newTestEngine(t, store, clock)
	ctx := context.Background()

	first, err := engine.TopTasks(ctx, 1, now)
	if err != nil {
		t.Fatalf("top tasks: %v", err)
	}

	store.add(entry(2, 1, 500, now.Add(-time.Minute)))
	clock.Advance(59 * time.Second)

	second, err := engine.TopTasks(ctx, 1, clock.Now())
	if err != nil {
		t.Fatalf("top tasks: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected cached rows %+v, got %+v", first, second)
	}

	other, err := engine.TopTasks(ctx, 2, clock.Now())
	if err != nil {
		t.Fatalf("top tasks: %v", err)
	}
	if len(other) != 2 {
		t.Fatalf("expected another requester to miss the cache, got %+v", other)
	}

	clock.Advance(time.Second)
	third, err := engine.TopTasks(ctx, 1, clock.Now())
	if err != nil {
		t.Fatalf("top tasks: %v", err)
	}
	if len(third) != 2 || third[0].TaskID != 2 {
		t.Fatalf("expected refreshed ranking after ttl, got %+v", third)
	}
}

func TestTopTasks_CollapsesConcurrentMisses(t *testing.T) {
	t.Parallel()

	store := &memoryStore{tasks: map[int64]tasks.Task{}}
	store.add(entry(1, 1, 100, now.Add(-time.Hour)))
	engine := newTestEngine(t, store, &manualClock{now: now})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := engine.TopTasks(context.Background(), 1, now)
			if err != nil || len(rows) != 1 {
				t.Errorf("unexpected rows %+v err=%v", rows, err)
			}
		}()
	}
	wg.Wait()

	if loads := store.loads.Load(); loads > 2 {
		t.Fatalf("expected concurrent misses to share a load, got %d loads", loads)
	}
}

// gatedStore holds the window query until released and fails it if its context is done.
type gatedStore struct {
	*memoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) EntriesCreatedBetween(ctx context.Context, from, to time.Time) ([]ledger.Entry, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.memoryStore.EntriesCreatedBetween(ctx, from, to)
}

func TestTopTasks_SharedComputationSurvivesCallerCancel(t *testing.T) {
	t.Parallel()

	base := &memoryStore{tasks: map[int64]tasks.Task{}}
	base.add(entry(1, 1, 100, now.Add(-time.Hour)))
	store := &gatedStore{memoryStore: base, entered: make(chan struct{}), release: make(chan struct{})}
	engine := newTestEngine(t, store, &manualClock{now: now})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := engine.TopTasks(ctx, 1, now)
		first <- err
	}()
	<-store.entered

	second := make(chan error, 1)
	go func() {
		rows, err := engine.TopTasks(context.Background(), 1, now)
		if err == nil && len(rows) != 1 {
			err = errors.New("unexpected rows")
		}
		second <- err
	}()
	time.Sleep(10 * time.Millisecond)

	cancel()
	close(store.release)

	if err := <-first; err != nil {
		t.Fatalf("cancelled caller: %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("waiting caller: %v", err)
	}
}

func TestTopTasks_EmptyWindow(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, &memoryStore{tasks: map[int64]tasks.Task{}}, &manualClock{now: now})
	rows, err := engine.TopTasks(context.Background(), 1, now)
	if err != nil {
		t.Fatalf("top tasks: %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Fatalf("expected empty non-nil rows, got %#v", rows)
	}
}

func TestOwnerLogs_FiltersOwnerAndWindow(t *testing.T) {
	t.Parallel()

	store := &memoryStore{tasks: map[int64]tasks.Task{}}
	store.add(
		entry(1, 1, 100, now.Add(-time.Hour)),
		entry(1, 2, 50, now.Add(-time.Hour)),
		entry(2, 1, 30, now.AddDate(0, 0, -40)),
	)
	engine := newTestEngine(t, store, &manualClock{now: now})

	logs, err := engine.OwnerLogs(context.Background(), 1, now)
	if err != nil {
		t.Fatalf("owner logs: %v", err)
	}
	if len(logs) != 1 || logs[0].AccumulatedSeconds != 100 {
		t.Fatalf("unexpected logs: %+v", logs)
	}
}

func TestCompute_UnlimitedKeepsEveryTask(t *testing.T) {
	t.Parallel()

	store := &memoryStore{tasks: map[int64]tasks.Task{
		1: {ID: 1, Title: "a"},
	}}
	for i := int64(1); i <= 25; i++ {
		store.add(entry(i, 1, i, now.Add(-time.Hour)))
	}

	rows, err := Compute(context.Background(), store, now.AddDate(0, 0, -30), now, 0)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(rows) != 25 || rows[0].TaskID != 25 || rows[24].Title != "a" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}
