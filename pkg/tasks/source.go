// Package tasks supplies the pool of candidate task descriptions.
package tasks

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/aretw0/autopilot/internal/logging"
	"github.com/aretw0/autopilot/pkg/domain"
	"github.com/aretw0/autopilot/pkg/ports"
)

// DefaultDelimiter separates entries in the task catalog (full-width semicolon).
const DefaultDelimiter = "；"

// Source picks tasks uniformly at random from a delimited catalog.
// Tasks may repeat across calls.
type Source struct {
	text      ports.TextSource
	delimiter string
	logger    *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Source)

// WithDelimiter overrides the entry delimiter.
func WithDelimiter(delim string) Option {
	return func(s *Source) {
		if delim != "" {
			s.delimiter = delim
		}
	}
}

// WithRand injects the random source, for deterministic tests.
func WithRand(rng *rand.Rand) Option {
	return func(s *Source) {
		s.rng = rng
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// New creates a Source reading the catalog from text.
func New(text ports.TextSource, opts ...Option) *Source {
	s := &Source{
		text:      text,
		delimiter: DefaultDelimiter,
		logger:    logging.NewNop(),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next returns a random task, or false when the catalog is empty or unreadable.
func (s *Source) Next(ctx context.Context) (domain.Task, bool) {
	all, err := s.All(ctx)
	if err != nil {
		s.logger.Error("task catalog unreadable", "error", err)
		return "", false
	}
	if len(all) == 0 {
		s.logger.Warn("task catalog is empty")
		return "", false
	}

	s.mu.Lock()
	i := s.rng.IntN(len(all))
	s.mu.Unlock()
	return all[i], true
}

// All returns every non-empty catalog entry, trimmed, in catalog order.
func (s *Source) All(ctx context.Context) ([]domain.Task, error) {
	text, err := s.text.Read(ctx)
	if err != nil {
		return nil, err
	}
	return Split(text, s.delimiter), nil
}

// Split breaks text on delim and drops blank entries.
func Split(text, delim string) []domain.Task {
	var out []domain.Task
	for _, part := range strings.Split(text, delim) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, domain.Task(part))
		}
	}
	return out
}
