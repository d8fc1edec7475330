package web

import (
	"net/http"
	"time"

	"tasktime/tasks"
)

type taskView struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Owner       int64     `json:"owner"`
	CreatedAt   time.Time `json:"created_at"`
}

type commentView struct {
	ID        int64     `json:"id"`
	Task      int64     `json:"task"`
	Author    int64     `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type createTaskRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description"`
}

type createCommentRequest struct {
	Text string `json:"text" validate:"required"`
}

func newTaskView(task tasks.Task) taskView {
	return taskView{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		Status:      task.Status,
		Owner:       task.OwnerID,
		CreatedAt:   task.CreatedAt.UTC(),
	}
}

func newTaskViews(list []tasks.Task) []taskView {
	views := make([]taskView, 0, len(list))
	for _, task := range list {
		views = append(views, newTaskView(task))
	}
	return views
}

func newCommentView(comment tasks.Comment) commentView {
	return commentView{
		ID:        comment.ID,
		Task:      comment.TaskID,
		Author:    comment.AuthorID,
		Text:      comment.Text,
		CreatedAt: comment.CreatedAt.UTC(),
	}
}

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	list, err := s.tasks.List(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskViews(list))
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	var body createTaskRequest
	if err := s.decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	task, err := s.tasks.Create(r.Context(), currentUser(r).ID, body.Title, body.Description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTaskView(task))
}

func (s *Server) handleTaskMine(w http.ResponseWriter, r *http.Request) {
	list, err := s.tasks.Mine(r.Context(), currentUser(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskViews(list))
}

func (s *Server) handleTaskCompleted(w http.ResponseWriter, r *http.Request) {
	list, err := s.tasks.Completed(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskViews(list))
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r, "task_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	task, err := s.tasks.Get(r.Context(), taskID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskView(task))
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r, "task_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.tasks.Delete(r.Context(), taskID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTaskSetOwner(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r, "task_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	userID, err := pathID(r, "user_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.tasks.SetOwner(r.Context(), taskID, userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail("success"))
}

func (s *Server) handleTaskComplete(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r, "task_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.tasks.SetCompleted(r.Context(), taskID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail("task status set to completed"))
}

func (s *Server) handleCommentList(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r, "task_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	comments, err := s.tasks.Comments(r.Context(), taskID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]commentView, 0, len(comments))
	for _, comment := range comments {
		views = append(views, newCommentView(comment))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCommentCreate(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r, "task_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var body createCommentRequest
	if err := s.decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	comment, err := s.tasks.AddComment(r.Context(), taskID, currentUser(r).ID, body.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newCommentView(comment))
}
