// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	service "github.com/okian/skillcert/internal/app"
	"github.com/okian/skillcert/internal/domain/failure"
	"github.com/okian/skillcert/internal/domain/model"
	"github.com/okian/skillcert/pkg/logger"
)

// Dependencies required by HTTP handlers. *service.Service satisfies it.
type Dependencies interface {
	WorkspaceDependencies
	SessionDependencies
	LevelsDependencies
}

// WorkspaceDependencies drives the hierarchy cursor of a workspace.
type WorkspaceDependencies interface {
	NewWorkspace(ctx context.Context) (service.WorkspaceView, error)
	Workspace(ctx context.Context, id string) (service.WorkspaceView, error)
	Select(ctx context.Context, id, level string, nodeID int64) (service.WorkspaceView, error)
	Back(ctx context.Context, id string) (service.WorkspaceView, error)
}

// SessionDependencies drives evaluation sessions.
type SessionDependencies interface {
	OpenSession(ctx context.Context, req service.SessionRequest) (service.SessionView, error)
	Session(ctx context.Context, id string) (service.SessionView, error)
	CloseSession(ctx context.Context, id string) error
	Score(ctx context.Context, id string, inputs []service.ScoreInput) (service.SessionView, error)
	SelectSupervisor(ctx context.Context, id string, supervisorID int64) (service.SessionView, error)
	CaptureSignature(ctx context.Context, id, slotType string, p model.PendingSignature) (service.SessionView, error)
	RemoveSignature(ctx context.Context, id, slotType string) (service.SessionView, error)
	ClearSignature(ctx context.Context, id, slotType string) (bool, error)
	Submit(ctx context.Context, id string) (service.SubmitView, error)
	RetrySignatures(ctx context.Context, id string) (service.SignatureReport, error)
}

// Server wires HTTP routes for the evaluation API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	workspaceHandler *WorkspaceHandler
	levelsHandler    *LevelsHandler
	sessionHandler   *SessionHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		workspaceHandler: NewWorkspaceHandler(deps),
		levelsHandler:    NewLevelsHandler(deps),
		sessionHandler:   NewSessionHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", MetricsMiddleware(s.healthHandler.HandleMetrics, "metrics"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /workspaces", MetricsMiddleware(s.workspaceHandler.HandleCreate, "workspaces"))
	mux.HandleFunc("GET /workspaces/{id}", MetricsMiddleware(s.workspaceHandler.HandleGet, "workspaces"))
	mux.HandleFunc("POST /workspaces/{id}/select", MetricsMiddleware(s.workspaceHandler.HandleSelect, "workspaces_select"))
	mux.HandleFunc("POST /workspaces/{id}/back", MetricsMiddleware(s.workspaceHandler.HandleBack, "workspaces_back"))

	mux.HandleFunc("GET /employees/{id}/levels", MetricsMiddleware(s.levelsHandler.HandleGet, "levels"))

	mux.HandleFunc("POST /sessions", MetricsMiddleware(s.sessionHandler.HandleOpen, "sessions"))
	mux.HandleFunc("GET /sessions/{id}", MetricsMiddleware(s.sessionHandler.HandleGet, "sessions"))
	mux.HandleFunc("DELETE /sessions/{id}", MetricsMiddleware(s.sessionHandler.HandleClose, "sessions"))
	mux.HandleFunc("POST /sessions/{id}/scores", MetricsMiddleware(s.sessionHandler.HandleScores, "sessions_scores"))
	mux.HandleFunc("POST /sessions/{id}/supervisor", MetricsMiddleware(s.sessionHandler.HandleSupervisor, "sessions_supervisor"))
	mux.HandleFunc("POST /sessions/{id}/signatures", MetricsMiddleware(s.sessionHandler.HandleCapture, "sessions_signatures"))
	mux.HandleFunc("DELETE /sessions/{id}/signatures/{tipo}", MetricsMiddleware(s.sessionHandler.HandleRemove, "sessions_signatures"))
	mux.HandleFunc("POST /sessions/{id}/signatures/{tipo}/clear", MetricsMiddleware(s.sessionHandler.HandleClear, "sessions_signatures"))
	mux.HandleFunc("POST /sessions/{id}/signatures/retry", MetricsMiddleware(s.sessionHandler.HandleRetry, "sessions_retry"))
	mux.HandleFunc("POST /sessions/{id}/submit", MetricsMiddleware(s.sessionHandler.HandleSubmit, "sessions_submit"))
}

var validate = newValidator() //nolint:gochecknoglobals // validator caches struct metadata

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorResponse struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps a service error onto a response. Backend messages are
// shown as they came; unclassified errors are logged and hidden.
func writeFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
		return
	case service.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}

	switch failure.KindOf(err) {
	case failure.KindValidation:
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    "validation",
			Message: failure.UserMessage(err),
			Fields:  failure.FieldsOf(err),
		})
	case failure.KindTransport:
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Code:    "backend",
			Message: failure.UserMessage(err),
		})
	default:
		logger.Get().Error(r.Context(), "request failed",
			logger.String("op", op),
			logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}

// decode reads a JSON body into v and validates its struct tags. Field
// errors are reported by json name.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return failure.Field(fmt.Errorf("%w: %w", ErrBadRequest, err), "body")
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return failure.Field(fmt.Errorf("%w: %w", ErrBadRequest, err), "body")
		}
		fields := make(map[string][]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = append(fields[fe.Field()], fe.Tag())
		}
		return failure.Validation(ErrBadRequest, fields)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, failure.Field(ErrBadRequest, name, "must be a positive integer")
	}
	return id, nil
}

func queryID(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, failure.Field(ErrBadRequest, name, "required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, failure.Field(ErrBadRequest, name, "must be a positive integer")
	}
	return id, nil
}
