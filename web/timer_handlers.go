package web

import (
	"net/http"
	"time"

	"tasktime/aggregate"
	"tasktime/ledger"
)

type entryView struct {
	ID                   int64      `json:"id"`
	Task                 int64      `json:"task"`
	Owner                int64      `json:"owner"`
	Kind                 string     `json:"kind"`
	StartWorkingDatetime time.Time  `json:"start_working_datetime"`
	StoppedAt            *time.Time `json:"stopped_at"`
	Duration             int64      `json:"duration"`
	TimerOn              bool       `json:"timer_on"`
	CreatedAt            time.Time  `json:"created_at"`
}

type timerStatusView struct {
	entryView
	Elapsed int64 `json:"elapsed"`
}

type addTimeRequest struct {
	StartWorkingDatetime *time.Time `json:"start_working_datetime" validate:"required"`
	Duration             *int64     `json:"duration" validate:"required"`
}

type addTimeView struct {
	ID                   int64     `json:"id"`
	Task                 int64     `json:"task"`
	Duration             int64     `json:"duration"`
	TimerOn              bool      `json:"timer_on"`
	StartWorkingDatetime time.Time `json:"start_working_datetime"`
}

type topTaskView struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	Status        string `json:"status"`
	Owner         int64  `json:"owner"`
	TotalDuration int64  `json:"total_duration"`
}

func newEntryView(entry ledger.Entry) entryView {
	return entryView{
		ID:                   entry.ID,
		Task:                 entry.TaskID,
		Owner:                entry.OwnerID,
		Kind:                 entry.Kind,
		StartWorkingDatetime: entry.StartedAt.UTC(),
		StoppedAt:            entry.StoppedAt,
		Duration:             entry.AccumulatedSeconds,
		TimerOn:              entry.Running,
		CreatedAt:            entry.CreatedAt.UTC(),
	}
}

func (s *Server) handleTimerStart(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r, "task_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.timers.StartTimer(r.Context(), taskID, currentUser(r).ID, s.clock.Now()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail("timer start"))
}

func (s *Server) handleTimerStop(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r, "task_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	entry, err := s.timers.StopTimer(r.Context(), taskID, currentUser(r).ID, s.clock.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"details": "timer stop",
		"entry":   newEntryView(entry),
	})
}

func (s *Server) handleTimerAdd(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r, "task_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var body addTimeRequest
	if err := s.decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	entry, err := s.timers.AddManualEntry(r.Context(), taskID, currentUser(r).ID, *body.StartWorkingDatetime, *body.Duration)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, addTimeView{
		ID:                   entry.ID,
		Task:                 entry.TaskID,
		Duration:             entry.AccumulatedSeconds,
		TimerOn:              entry.Running,
		StartWorkingDatetime: entry.StartedAt.UTC(),
	})
}

func (s *Server) handleTimerStatus(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r, "task_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	entry, err := s.timers.Status(r.Context(), taskID, currentUser(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, timerStatusView{
		entryView: newEntryView(entry),
		Elapsed:   entry.Elapsed(s.clock.Now()),
	})
}

func (s *Server) handleLastMonthLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := s.reports.OwnerLogs(r.Context(), currentUser(r).ID, s.clock.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	views := make([]entryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, newEntryView(entry))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleTopLastMonth(w http.ResponseWriter, r *http.Request) {
	rows, err := s.reports.TopTasks(r.Context(), currentUser(r).ID, s.clock.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTopTaskViews(rows))
}

func newTopTaskViews(rows []aggregate.Row) []topTaskView {
	views := make([]topTaskView, 0, len(rows))
	for _, row := range rows {
		views = append(views, topTaskView{
			ID:            row.TaskID,
			Title:         row.Title,
			Status:        row.Status,
			Owner:         row.OwnerID,
			TotalDuration: row.TotalSeconds,
		})
	}
	return views
}
