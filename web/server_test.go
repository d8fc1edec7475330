package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"tasktime/aggregate"
	"tasktime/cache"
	"tasktime/storage"
	"tasktime/tasks"
	"tasktime/timer"
)

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

type testEnv struct {
	ts    *httptest.Server
	store *storage.SQLiteStore
	clock *manualClock
	token string
	user  storage.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "web_test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	clock := &manualClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	resultCache, err := cache.NewTTLCache(16, clock)
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	engine, err := aggregate.NewEngine(store, resultCache, aggregate.Options{})
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	registry := timer.NewRegistry(store,
		timer.WithClock(clock),
		timer.WithStaleCheck(func(err error) bool {
			return errors.Is(err, storage.ErrStaleEntry) || errors.Is(err, storage.ErrDuplicate)
		}),
	)

	ts := httptest.NewServer(NewServer(Deps{
		Auth:    store,
		Timers:  registry,
		Reports: engine,
		Tasks:   tasks.NewService(store, nil),
		Clock:   clock,
	}))
	t.Cleanup(ts.Close)

	user, token, err := store.CreateUser(context.Background(), "ada@example.com", "Ada", "Lovelace")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	return &testEnv{ts: ts, store: store, clock: clock, token: token, user: user}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	return e.doAs(t, e.token, method, path, body)
}

func (e *testEnv) doAs(t *testing.T, token, method, path, body string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, payload
}

func (e *testEnv) createTask(t *testing.T, title string) taskView {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/tasks", `{"title":"`+title+`","description":"d"}`)
	if status != http.StatusCreated {
		t.Fatalf("create task: expected 201, got %d: %s", status, body)
	}
	var task taskView
	decodeInto(t, body, &task)
	return task
}

func decodeInto(t *testing.T, body []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
}

func TestServer_RequiresBearerToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	for _, token := range []string{"", "garbage", "1.not-the-secret"} {
		status, body := env.doAs(t, token, http.MethodGet, "/tasks", "")
		if status != http.StatusUnauthorized {
			t.Fatalf("token %q: expected 401, got %d", token, status)
		}
		if !strings.Contains(string(body), "authentication credentials were not provided") {
			t.Fatalf("unexpected body: %s", body)
		}
	}
}

func TestServer_TimerStartStopCycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	task := env.createTask(t, "write docs")
	base := "/tasks/" + itoa(task.ID) + "/timer"

	status, body := env.do(t, http.MethodPost, base+"/start", "")
	if status != http.StatusOK || !strings.Contains(string(body), "timer start") {
		t.Fatalf("start: got %d %s", status, body)
	}

	status, body = env.do(t, http.MethodPost, base+"/start", "")
	if status != http.StatusConflict || !strings.Contains(string(body), "Timer for task is running already") {
		t.Fatalf("second start: got %d %s", status, body)
	}

	env.clock.Advance(90*time.Second + 400*time.Millisecond)
	status, body = env.do(t, http.MethodPost, base+"/stop", "")
	if status != http.StatusOK {
		t.Fatalf("stop: got %d %s", status, body)
	}
	var stopped struct {
		Details string    `json:"details"`
		Entry   entryView `json:"entry"`
	}
	decodeInto(t, body, &stopped)
	if stopped.Details != "timer stop" || stopped.Entry.Duration != 90 || stopped.Entry.TimerOn {
		t.Fatalf("unexpected stop response: %+v", stopped)
	}

	status, body = env.do(t, http.MethodPost, base+"/stop", "")
	if status != http.StatusNotFound || !strings.Contains(string(body), "Timer for task was not found") {
		t.Fatalf("second stop: got %d %s", status, body)
	}

	status, body = env.do(t, http.MethodGet, base, "")
	if status != http.StatusOK {
		t.Fatalf("status: got %d %s", status, body)
	}
	var view timerStatusView
	decodeInto(t, body, &view)
	if view.Duration != 90 || view.Elapsed != 90 {
		t.Fatalf("unexpected status view: %+v", view)
	}
}

func TestServer_StartTimerUnknownTask(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	for _, path := range []string{"/tasks/999/timer/start", "/tasks/abc/timer/start"} {
		status, body := env.do(t, http.MethodPost, path, "")
		if status != http.StatusNotFound || !strings.Contains(string(body), "Not found.") {
			t.Fatalf("%s: got %d %s", path, status, body)
		}
	}
}

func TestServer_AddManualTime(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	task := env.createTask(t, "write docs")
	path := "/tasks/" + itoa(task.ID) + "/timer/add"

	status, body := env.do(t, http.MethodPost, path, `{"start_working_datetime":"2020-06-12T16:12:34Z","duration":60}`)
	if status != http.StatusCreated {
		t.Fatalf("add: got %d %s", status, body)
	}
	var added addTimeView
	decodeInto(t, body, &added)
	if added.Duration != 3600 || added.TimerOn || added.Task != task.ID {
		t.Fatalf("unexpected add response: %+v", added)
	}
	if !added.StartWorkingDatetime.Equal(time.Date(2020, 6, 12, 16, 12, 34, 0, time.UTC)) {
		t.Fatalf("unexpected start: %s", added.StartWorkingDatetime)
	}

	status, body = env.do(t, http.MethodPost, path, `{"start_working_datetime":"2020-06-12T16:12:34Z","duration":0}`)
	if status != http.StatusBadRequest || !strings.Contains(string(body), `"duration"`) {
		t.Fatalf("zero duration: got %d %s", status, body)
	}

	status, body = env.do(t, http.MethodPost, path, `{"start_working_datetime":"2020-06-12T16:12:34Z","duration":4611686018427387905}`)
	if status != http.StatusBadRequest || !strings.Contains(string(body), `"duration"`) {
		t.Fatalf("overflowing duration: got %d %s", status, body)
	}

	status, body = env.do(t, http.MethodPost, path, `{"duration":10}`)
	if status != http.StatusBadRequest || !strings.Contains(string(body), `"start_working_datetime":["This field is required."]`) {
		t.Fatalf("missing start: got %d %s", status, body)
	}
}

func TestServer_TopLastMonthRanksAndCaches(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	docs := env.createTask(t, "write docs")
	bug := env.createTask(t, "fix bug")

	add := func(task taskView, minutes string) {
		status, body := env.do(t, http.MethodPost, "/tasks/"+itoa(task.ID)+"/timer/add",
			`{"start_working_datetime":"2026-02-20T10:00:00Z","duration":`+minutes+`}`)
		if status != http.StatusCreated {
			t.Fatalf("add: got %d %s", status, body)
		}
	}
	add(docs, "1")
	add(bug, "5")

	var first []topTaskView
	status, body := env.do(t, http.MethodGet, "/tasks/top-last-month", "")
	if status != http.StatusOK {
		t.Fatalf("top: got %d %s", status, body)
	}
	decodeInto(t, body, &first)
	if len(first) != 2 || first[0].ID != bug.ID || first[0].TotalDuration != 300 || first[1].Title != "write docs" {
		t.Fatalf("unexpected ranking: %+v", first)
	}

	add(docs, "10")
	_, cached := env.do(t, http.MethodGet, "/tasks/top-last-month", "")
	if string(cached) != string(body) {
		t.Fatalf("expected cached response within ttl, got %s", cached)
	}

	env.clock.Advance(time.Minute)
	var refreshed []topTaskView
	_, body = env.do(t, http.MethodGet, "/tasks/top-last-month", "")
	decodeInto(t, body, &refreshed)
	if len(refreshed) != 2 || refreshed[0].ID != docs.ID || refreshed[0].TotalDuration != 660 {
		t.Fatalf("expected refreshed ranking, got %+v", refreshed)
	}

	var logs []entryView
	_, body = env.do(t, http.MethodGet, "/tasks/timer/last-month", "")
	decodeInto(t, body, &logs)
	if len(logs) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(logs))
	}
}

func TestServer_TaskEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	bob, _, err := env.store.CreateUser(context.Background(), "bob@example.com", "Bob", "Builder")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	status, body := env.do(t, http.MethodPost, "/tasks", `{"title":""}`)
	if status != http.StatusBadRequest || !strings.Contains(string(body), `"title"`) {
		t.Fatalf("empty title: got %d %s", status, body)
	}

	docs := env.createTask(t, "write docs")
	env.createTask(t, "fix bug")

	var found []taskView
	_, body = env.do(t, http.MethodGet, "/tasks?search=DOC", "")
	decodeInto(t, body, &found)
	if len(found) != 1 || found[0].ID != docs.ID {
		t.Fatalf("unexpected search result: %+v", found)
	}

	status, body = env.do(t, http.MethodPatch, "/tasks/"+itoa(docs.ID)+"/owner/"+itoa(bob.ID), "")
	if status != http.StatusOK || !strings.Contains(string(body), "success") {
		t.Fatalf("set owner: got %d %s", status, body)
	}
	var mine []taskView
	_, body = env.do(t, http.MethodGet, "/tasks/mine", "")
	decodeInto(t, body, &mine)
	if len(mine) != 1 || mine[0].Title != "fix bug" {
		t.Fatalf("unexpected mine: %+v", mine)
	}

	status, body = env.do(t, http.MethodPost, "/tasks/"+itoa(docs.ID)+"/comments", `{"text":"please review"}`)
	if status != http.StatusCreated {
		t.Fatalf("add comment: got %d %s", status, body)
	}
	var comments []commentView
	_, body = env.do(t, http.MethodGet, "/tasks/"+itoa(docs.ID)+"/comments", "")
	decodeInto(t, body, &comments)
	if len(comments) != 1 || comments[0].Author != env.user.ID {
		t.Fatalf("unexpected comments: %+v", comments)
	}

	status, body = env.do(t, http.MethodPost, "/tasks/"+itoa(docs.ID)+"/complete", "")
	if status != http.StatusOK || !strings.Contains(string(body), "task status set to completed") {
		t.Fatalf("complete: got %d %s", status, body)
	}
	var completed []taskView
	_, body = env.do(t, http.MethodGet, "/tasks/completed", "")
	decodeInto(t, body, &completed)
	if len(completed) != 1 || completed[0].Status != tasks.StatusComplete {
		t.Fatalf("unexpected completed: %+v", completed)
	}

	status, _ = env.do(t, http.MethodDelete, "/tasks/"+itoa(docs.ID), "")
	if status != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", status)
	}
	status, _ = env.do(t, http.MethodGet, "/tasks/"+itoa(docs.ID), "")
	if status != http.StatusNotFound {
		t.Fatalf("get deleted: expected 404, got %d", status)
	}
}

func itoa(value int64) string {
	return strconv.FormatInt(value, 10)
}
