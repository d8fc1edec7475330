// Package web serves the task and timer JSON API. Every route requires a bearer token.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"tasktime/aggregate"
	"tasktime/internal/timeutil"
	"tasktime/ledger"
	"tasktime/storage"
	"tasktime/tasks"
	"tasktime/timer"
)

type Authenticator interface {
	AuthenticateToken(ctx context.Context, token string) (storage.User, error)
}

// Deps are the services the API delegates to.
type Deps struct {
	Auth    Authenticator
	Timers  *timer.Registry
	Reports *aggregate.Engine
	Tasks   *tasks.Service
	Clock   timeutil.Clock
	Logger  *slog.Logger
}

type Server struct {
	auth     Authenticator
	timers   *timer.Registry
	reports  *aggregate.Engine
	tasks    *tasks.Service
	clock    timeutil.Clock
	logger   *slog.Logger
	validate *validator.Validate

	mux *http.ServeMux
}

type contextKey int

const userKey contextKey = iota

var errInvalidID = errors.New("invalid id")

func NewServer(deps Deps) http.Handler {
	server := &Server{
		auth:     deps.Auth,
		timers:   deps.Timers,
		reports:  deps.Reports,
		tasks:    deps.Tasks,
		clock:    deps.Clock,
		logger:   deps.Logger,
		validate: newValidator(),
	}
	if server.clock == nil {
		server.clock = timeutil.SystemClock{}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /tasks/{task_id}/timer/start", server.handleTimerStart)
	mux.HandleFunc("POST /tasks/{task_id}/timer/stop", server.handleTimerStop)
	mux.HandleFunc("POST /tasks/{task_id}/timer/add", server.handleTimerAdd)
	mux.HandleFunc("GET /tasks/{task_id}/timer", server.handleTimerStatus)
	mux.HandleFunc("GET /tasks/timer/last-month", server.handleLastMonthLogs)
	mux.HandleFunc("GET /tasks/top-last-month", server.handleTopLastMonth)
	mux.HandleFunc("GET /tasks", server.handleTaskList)
	mux.HandleFunc("POST /tasks", server.handleTaskCreate)
	mux.HandleFunc("GET /tasks/mine", server.handleTaskMine)
	mux.HandleFunc("GET /tasks/completed", server.handleTaskCompleted)
	mux.HandleFunc("GET /tasks/{task_id}", server.handleTaskGet)
	mux.HandleFunc("DELETE /tasks/{task_id}", server.handleTaskDelete)
	mux.HandleFunc("PATCH /tasks/{task_id}/owner/{user_id}", server.handleTaskSetOwner)
	mux.HandleFunc("POST /tasks/{task_id}/complete", server.handleTaskComplete)
	mux.HandleFunc("GET /tasks/{task_id}/comments", server.handleCommentList)
	mux.HandleFunc("POST /tasks/{task_id}/comments", server.handleCommentCreate)
	server.mux = mux

	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	started := time.Now()
	defer func() {
		s.logger.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration", time.Since(started),
		)
	}()

	user, ok := s.authenticate(r)
	if !ok {
		writeJSON(recorder, http.StatusUnauthorized, detail("authentication credentials were not provided"))
		return
	}
	s.mux.ServeHTTP(recorder, r.WithContext(context.WithValue(r.Context(), userKey, user)))
}

func (s *Server) authenticate(r *http.Request) (storage.User, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return storage.User{}, false
	}
	user, err := s.auth.AuthenticateToken(r.Context(), token)
	if err != nil {
		if !errors.Is(err, storage.ErrInvalidToken) {
			s.logger.Error("authenticate request", "error", err)
		}
		return storage.User{}, false
	}
	return user, true
}

func currentUser(r *http.Request) storage.User {
	user, _ := r.Context().Value(userKey).(storage.User)
	return user
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// writeError maps domain errors to API responses. Unknown errors are logged and
// reported as a generic 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if verr, ok := tasks.IsValidation(err); ok {
		writeJSON(w, http.StatusBadRequest, verr.Fields)
		return
	}

	switch {
	case errors.Is(err, timer.ErrTimerAlreadyRunning):
		writeJSON(w, http.StatusConflict, detail("Timer for task is running already"))
	case errors.Is(err, timer.ErrTimerNotFound):
		writeJSON(w, http.StatusNotFound, detail("Timer for task was not found"))
	case errors.Is(err, timer.ErrConcurrentUpdate):
		writeJSON(w, http.StatusConflict, detail("Timer was changed by another request"))
	case errors.Is(err, ledger.ErrInvalidDuration):
		writeJSON(w, http.StatusBadRequest, map[string][]string{"duration": {"Ensure this value is greater than 0."}})
	case errors.Is(err, ledger.ErrEntityNotFound), errors.Is(err, errInvalidID):
		writeJSON(w, http.StatusNotFound, detail("Not found."))
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, detail("internal server error"))
	}
}

// decodeBody decodes a single JSON object and runs struct validation on it.
func (s *Server) decodeBody(r *http.Request, out any) error {
	if err := decodeJSON(r, out); err != nil {
		return &tasks.ValidationError{Fields: map[string][]string{"non_field_errors": {err.Error()}}}
	}
	if err := s.validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		fields := make(map[string][]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = append(fields[fe.Field()], validationMessage(fe))
		}
		return &tasks.ValidationError{Fields: fields}
	}
	return nil
}

func newValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return validate
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	default:
		return fmt.Sprintf("Failed on the %q rule.", fe.Tag())
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := parsePositiveInt64(r.PathValue(name))
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", name, r.PathValue(name), errInvalidID)
	}
	return id, nil
}

func parsePositiveInt64(value string) (int64, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, err
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("value must be > 0")
	}
	return parsed, nil
}

func decodeJSON(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func detail(message string) map[string]string {
	return map[string]string{"detail": message}
}
