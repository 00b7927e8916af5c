// Package state provides the typed execution-state service shared by the engine
// and the administrative surfaces.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aretw0/autopilot/internal/logging"
	"github.com/aretw0/autopilot/pkg/domain"
	"github.com/aretw0/autopilot/pkg/ports"
)

const tokenPreviewLen = 20

// Store is the single owner of the execution state.
// It wraps a raw ports.KVStore with typed accessors and the credential preference rule.
type Store struct {
	kv        ports.KVStore
	permanent string
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPermanentToken sets a statically configured credential.
// It always wins over a token captured from a login response.
func WithPermanentToken(token string) Option {
	return func(s *Store) {
		s.permanent = NormalizeToken(token)
	}
}

// WithLogger sets the logger used for backend failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a Store over kv.
func New(kv ports.KVStore, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeToken trims a credential and strips a leading "Bearer " scheme.
func NormalizeToken(token string) string {
	token = strings.TrimSpace(token)
	if len(token) >= 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.kv.Set(ctx, key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Get returns the value for key, or domain.ErrKeyNotFound.
// The login token honors the permanent credential.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if key == domain.KeyLoginToken && s.permanent != "" {
		return s.permanent, nil
	}
	val, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return "", err
		}
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return val, nil
}

// Has reports whether key holds a value. Backend failures count as absent.
func (s *Store) Has(ctx context.Context, key string) bool {
	_, err := s.Get(ctx, key)
	if err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
		s.logger.Warn("state lookup failed", "key", key, "error", err)
	}
	return err == nil
}

// Remove deletes the given keys.
func (s *Store) Remove(ctx context.Context, keys ...string) error {
	if err := s.kv.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("remove %v: %w", keys, err)
	}
	return nil
}

// Clear drops all execution state. The permanent credential is configuration, not state, and survives.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Clear(ctx); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}

// Snapshot returns a copy of the raw state.
func (s *Store) Snapshot(ctx context.Context) (map[string]string, error) {
	all, err := s.kv.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	out := make(map[string]string, len(all))
	for k, v := range all {
		out[k] = v
	}
	return out, nil
}

func (s *Store) str(ctx context.Context, key string) string {
	val, err := s.Get(ctx, key)
	if err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
		s.logger.Warn("state read failed", "key", key, "error", err)
	}
	return val
}

// CurrentTask returns the active task, if any.
func (s *Store) CurrentTask(ctx context.Context) (domain.Task, bool) {
	val := s.str(ctx, domain.KeyCurrentTask)
	return domain.Task(val), val != ""
}

// Step returns the step index of the active task. Absent or malformed means 0.
func (s *Store) Step(ctx context.Context) int {
	val := s.str(ctx, domain.KeyCurrentStep)
	if val == "" {
		return 0
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		s.logger.Warn("malformed step counter", "value", val)
		return 0
	}
	return n
}

// SetStep stores the step index.
func (s *Store) SetStep(ctx context.Context, step int) error {
	return s.Set(ctx, domain.KeyCurrentStep, strconv.Itoa(step))
}

// IncrementStep advances the step index by one and returns the new value.
func (s *Store) IncrementStep(ctx context.Context) (int, error) {
	next := s.Step(ctx) + 1
	if err := s.SetStep(ctx, next); err != nil {
		return 0, err
	}
	return next, nil
}

// LastResponse returns the body of the most recent action response.
func (s *Store) LastResponse(ctx context.Context) (string, bool) {
	val, err := s.Get(ctx, domain.KeyLastResponse)
	if err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
		s.logger.Warn("state read failed", "key", domain.KeyLastResponse, "error", err)
	}
	return val, err == nil
}

// SetLastResponse records the body of the most recent action response.
func (s *Store) SetLastResponse(ctx context.Context, body string) error {
	return s.Set(ctx, domain.KeyLastResponse, body)
}

// StepResult returns the model's stated expected outcome of the last step.
func (s *Store) StepResult(ctx context.Context) string {
	return s.str(ctx, domain.KeyCurrentStepResult)
}

// NextStep returns the model's own guidance for the following turn.
func (s *Store) NextStep(ctx context.Context) string {
	return s.str(ctx, domain.KeyNextStep)
}

// RecordTurn stores the step result and next-step guidance of a turn. Empty values are skipped.
func (s *Store) RecordTurn(ctx context.Context, turn domain.ModelTurn) error {
	if turn.StepResult != "" {
		if err := s.Set(ctx, domain.KeyCurrentStepResult, turn.StepResult); err != nil {
			return err
		}
	}
	if turn.NextStep != "" {
		if err := s.Set(ctx, domain.KeyNextStep, turn.NextStep); err != nil {
			return err
		}
	}
	return nil
}

// LoginToken returns the credential to attach, permanent first.
func (s *Store) LoginToken(ctx context.Context) (string, bool) {
	val := s.str(ctx, domain.KeyLoginToken)
	return val, val != ""
}

// HasLoginToken reports whether any credential is available.
func (s *Store) HasLoginToken(ctx context.Context) bool {
	_, ok := s.LoginToken(ctx)
	return ok
}

// SetLoginToken stores a dynamically captured credential.
func (s *Store) SetLoginToken(ctx context.Context, token string) error {
	return s.Set(ctx, domain.KeyLoginToken, token)
}

// BeginTask makes task active at step 0 and forgets the previous task's turn data.
func (s *Store) BeginTask(ctx context.Context, task domain.Task) error {
	if err := s.Set(ctx, domain.KeyCurrentTask, string(task)); err != nil {
		return err
	}
	if err := s.SetStep(ctx, 0); err != nil {
		return err
	}
	return s.Remove(ctx, domain.KeyLastResponse, domain.KeyCurrentStepResult, domain.KeyNextStep)
}

// CompleteTask ends the active task. The last response and credentials are kept.
func (s *Store) CompleteTask(ctx context.Context) error {
	return s.Remove(ctx, domain.KeyCurrentTask, domain.KeyCurrentStep, domain.KeyCurrentStepResult, domain.KeyNextStep)
}

// TokenStatus reports which credentials are held.
func (s *Store) TokenStatus(ctx context.Context) domain.TokenStatus {
	dynamic, err := s.kv.Get(ctx, domain.KeyLoginToken)
	status := domain.TokenStatus{
		HasPermanent: s.permanent != "",
		HasDynamic:   err == nil && dynamic != "",
	}
	active, ok := s.LoginToken(ctx)
	status.Active = ok
	if ok {
		status.Preview = preview(active)
	}
	return status
}

func preview(token string) string {
	r := []rune(token)
	if len(r) <= tokenPreviewLen {
		return token
	}
	return string(r[:tokenPreviewLen]) + "..."
}
