package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/autopilot/internal/logging"
	"github.com/aretw0/autopilot/pkg/domain"
)

// StreamManager fans engine events out to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan<- string]struct{}
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[chan<- string]struct{}),
		logger:      logger,
	}
}

func (sm *StreamManager) Subscribe() (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 32)
	sm.subscribers[ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if _, ok := sm.subscribers[ch]; ok {
			delete(sm.subscribers, ch)
			close(ch)
		}
	}
}

func (sm *StreamManager) Broadcast(msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers {
		select {
		case ch <- msg:
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE: client buffer full, dropping event")
		}
	}
}

// Hooks returns lifecycle hooks that broadcast every event as JSON.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnIterationStart:   func(_ context.Context, e *domain.TaskEvent) { sm.publish(e) },
		OnTaskSelected:     func(_ context.Context, e *domain.TaskEvent) { sm.publish(e) },
		OnTaskCompleted:    func(_ context.Context, e *domain.TaskEvent) { sm.publish(e) },
		OnActionDispatched: func(_ context.Context, e *domain.ActionEvent) { sm.publish(e) },
		OnVerdict:          func(_ context.Context, e *domain.VerdictEvent) { sm.publish(e) },
		OnError: func(_ context.Context, e *domain.ErrorEvent) {
			sm.publish(struct {
				domain.EventBase
				Error string `json:"error"`
			}{e.EventBase, e.Err.Error()})
		},
		OnStop: func(_ context.Context, e *domain.StopEvent) { sm.publish(e) },
	}
}

func (sm *StreamManager) publish(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		sm.logger.Error("SSE: event encode failed", "error", err)
		return
	}
	sm.Broadcast(string(b))
}

// serveEvents handles GET /events (SSE).
func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.streams.Subscribe()
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
