package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tasktime/config"
	"tasktime/ledger"
)

func newTestApp(t *testing.T) *app {
	t.Helper()

	cfg, err := config.ValidateYAMLContent([]byte("log:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("validate config: %v", err)
	}
	a, err := newApp(cfg, filepath.Join(t.TempDir(), "tasktime.db"), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

func TestNewApp_TimerAndReportFlow(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	ctx := context.Background()

	user, _, err := a.store.CreateUser(ctx, "ada@example.com", "Ada", "Lovelace")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	task, err := a.tasks.Create(ctx, user.ID, "write docs", "")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	start := a.clock.Now()
	if _, err := a.timers.StartTimer(ctx, task.ID, user.ID, start); err != nil {
		t.Fatalf("start timer: %v", err)
	}
	stopped, err := a.timers.StopTimer(ctx, task.ID, user.ID, start.Add(45*time.Second))
	if err != nil {
		t.Fatalf("stop timer: %v", err)
	}
	if stopped.AccumulatedSeconds != 45 {
		t.Fatalf("expected 45s, got %d", stopped.AccumulatedSeconds)
	}

	rows, err := a.reports.TopTasks(ctx, user.ID, start.Add(time.Minute))
	if err != nil {
		t.Fatalf("top tasks: %v", err)
	}
	if len(rows) != 1 || rows[0].TotalSeconds != 45 || rows[0].Title != "write docs" {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	exported, err := buildTopRows(ctx, a.store, 30)
	if err != nil {
		t.Fatalf("build top rows: %v", err)
	}
	if len(exported) != 1 || exported[0].TaskID != task.ID {
		t.Fatalf("unexpected export rows: %+v", exported)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("close app: %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	logger, err := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &out)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "task_id", 7)

	text := out.String()
	if strings.Contains(text, "hidden") || !strings.Contains(text, `"task_id":7`) {
		t.Fatalf("unexpected log output: %s", text)
	}

	if _, err := newLogger(config.LogConfig{Level: "loud", Format: "text"}, &out); err == nil {
		t.Fatalf("expected error for invalid level")
	}
	if _, err := newLogger(config.LogConfig{Level: "info", Format: "xml"}, &out); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestParseTimerAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	got, err := parseTimerAt("", now)
	if err != nil || !got.Equal(now) {
		t.Fatalf("expected now, got %s err=%v", got, err)
	}

	got, err = parseTimerAt("2020-06-12T16:12:34Z", now)
	if err != nil || !got.Equal(time.Date(2020, 6, 12, 16, 12, 34, 0, time.UTC)) {
		t.Fatalf("unexpected parsed time %s err=%v", got, err)
	}

	if _, err := parseTimerAt("12.06.2020", now); err == nil {
		t.Fatalf("expected error for non-RFC3339 value")
	}
}

func TestDescribeTimer(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	running := ledger.Entry{TaskID: 3, Running: true, StartedAt: now.Add(-2 * time.Hour), AccumulatedSeconds: 600}
	text := describeTimer(running, now)
	if !strings.Contains(text, "running since") || !strings.Contains(text, "2 hours ago") || !strings.Contains(text, "7,800 s") {
		t.Fatalf("unexpected running description: %s", text)
	}

	stopped := ledger.Entry{TaskID: 3, AccumulatedSeconds: 5400}
	if got := describeTimer(stopped, now); got != "Task 3: stopped, total 1h30m0s (5,400 s)" {
		t.Fatalf("unexpected stopped description: %s", got)
	}
}

func TestDetectExportFormat(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"entries.csv": "csv",
		"top.XLSX":    "excel",
		"report.out":  "csv",
		"legacy.xls":  "excel",
	}
	for path, want := range cases {
		if got := detectExportFormat(path); got != want {
			t.Fatalf("%s: expected %s, got %s", path, want, got)
		}
	}
}
