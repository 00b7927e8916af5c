package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/aretw0/autopilot/internal/logging"
	"github.com/aretw0/autopilot/internal/runtime"
	"github.com/aretw0/autopilot/pkg/domain"
	"github.com/aretw0/autopilot/pkg/state"
)

// BasePath prefixes every administrative route.
const BasePath = "/api/autopilot"

// Pilot is the control surface the handler drives.
type Pilot interface {
	Start(ctx context.Context) error
	Stop() error
	Reset(ctx context.Context) error
	Status(ctx context.Context) runtime.Status
	State() *state.Store
	Tasks(ctx context.Context) ([]domain.Task, error)
	Ping(ctx context.Context) error
}

// Server holds the handlers of the administrative API.
type Server struct {
	pilot   Pilot
	streams *StreamManager
	metrics http.Handler
	logger  *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithEvents serves the stream at BasePath/events. Register streams.Hooks() on the engine to feed it.
func WithEvents(streams *StreamManager) Option {
	return func(s *Server) {
		s.streams = streams
	}
}

// NewHandler creates the HTTP handler for the administrative API.
func NewHandler(pilot Pilot, opts ...Option) http.Handler {
	s := &Server{pilot: pilot, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Route(BasePath, func(r chi.Router) {
		r.Post("/start", s.start)
		r.Post("/stop", s.stop)
		r.Get("/status", s.status)
		r.Post("/reset", s.reset)
		r.Post("/complete-task", s.completeTask)
		r.Get("/token-status", s.tokenStatus)
		r.Get("/tasks", s.tasks)
		r.Get("/health", s.health)

		r.Get("/states", s.listStates)
		r.Delete("/states", s.clearStates)
		r.Get("/states/{key}", s.getState)
		r.Put("/states/{key}", s.setState)
		r.Delete("/states/{key}", s.deleteState)

		if s.streams != nil {
			r.Get("/events", s.serveEvents)
		}
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	// The loop outlives the request.
	if err := s.pilot.Start(context.WithoutCancel(r.Context())); err != nil {
		if errors.Is(err, domain.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("start failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	st := s.pilot.Status(r.Context())
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "started", "run_id": st.RunID})
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	if err := s.pilot.Stop(); err != nil {
		if errors.Is(err, domain.ErrNotRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pilot.Status(r.Context()))
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if err := s.pilot.Reset(r.Context()); err != nil {
		s.logger.Error("reset failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) completeTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	task, ok := s.pilot.State().CurrentTask(ctx)
	if !ok {
		writeError(w, http.StatusConflict, domain.ErrNoTask.Error())
		return
	}
	if err := s.pilot.State().CompleteTask(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("task completed by operator", "task", string(task))
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed", "task": string(task)})
}

func (s *Server) tokenStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pilot.State().TokenStatus(r.Context()))
}

func (s *Server) tasks(w http.ResponseWriter, r *http.Request) {
	all, err := s.pilot.Tasks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if all == nil {
		all = []domain.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": all, "count": len(all)})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.pilot.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listStates(w http.ResponseWriter, r *http.Request) {
	snap, err := s.pilot.State().Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writeJSON(w, http.StatusOK, map[string]any{"states": snap, "keys": keys})
}

func (s *Server) clearStates(w http.ResponseWriter, r *http.Request) {
	if err := s.pilot.State().Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	val, err := s.pilot.State().Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("state %q not found", key))
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": val})
}

type setStateRequest struct {
	Value json.RawMessage `json:"value"`
}

func (s *Server) setState(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var body setStateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil || len(body.Value) == 0 {
		writeError(w, http.StatusBadRequest, `body must be {"value": ...}`)
		return
	}
	val := stateValue(body.Value)
	if err := s.pilot.State().Set(r.Context(), key, val); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": val})
}

// stateValue keeps strings as-is and stores any other JSON value in its compact encoding.
func stateValue(raw json.RawMessage) string {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return string(raw)
}

func (s *Server) deleteState(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.pilot.State().Remove(r.Context(), key); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "key": key})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
