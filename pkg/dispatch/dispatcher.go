// Package dispatch executes normalized action specs and records their outcome in the state.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/autopilot/internal/logging"
	"github.com/aretw0/autopilot/pkg/domain"
	"github.com/aretw0/autopilot/pkg/ports"
	"github.com/aretw0/autopilot/pkg/state"
)

const defaultLoginPattern = "login"

// Dispatcher executes one action at a time. Failures never propagate to the caller:
// they are recorded as an "ERROR: " sentinel in last_response.
type Dispatcher struct {
	transport    ports.Transport
	store        *state.Store
	baseURL      string
	loginPattern string
	logger       *slog.Logger
	now          func() time.Time
}

type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithBaseURL resolves relative action urls against base.
func WithBaseURL(base string) Option {
	return func(d *Dispatcher) {
		d.baseURL = strings.TrimRight(base, "/")
	}
}

// WithLoginPattern sets the url substring that marks a login endpoint.
func WithLoginPattern(pattern string) Option {
	return func(d *Dispatcher) {
		if pattern != "" {
			d.loginPattern = strings.ToLower(pattern)
		}
	}
}

// New creates a Dispatcher.
func New(transport ports.Transport, store *state.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport:    transport,
		store:        store,
		loginPattern: defaultLoginPattern,
		logger:       logging.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch executes spec with the stored credential and records the response body.
func (d *Dispatcher) Dispatch(ctx context.Context, spec domain.ActionSpec) (out domain.Outcome) {
	out = domain.Outcome{Spec: spec}
	start := d.now()
	defer func() { out.Duration = d.now().Sub(start) }()

	req, err := d.build(ctx, spec)
	if err != nil {
		out.Err = err
		d.fail(ctx, spec, err)
		return out
	}

	d.logger.Info("dispatching action", "method", req.Method, "url", req.URL)
	resp, err := d.transport.Do(ctx, req)
	if err != nil {
		out.Err = err
		d.fail(ctx, spec, err)
		return out
	}

	out.Status = resp.Status
	out.Body = string(resp.Body)
	if err := d.store.SetLastResponse(ctx, out.Body); err != nil {
		d.logger.Warn("could not record response", "error", err)
	}
	d.logger.Info("action completed", "method", req.Method, "url", req.URL, "status", resp.Status)

	if d.isLogin(spec.URL) && out.OK() {
		d.captureCredential(ctx, &out)
	}
	return out
}

// DispatchAll executes specs in order. It stops early only when ctx is done.
func (d *Dispatcher) DispatchAll(ctx context.Context, specs []domain.ActionSpec) []domain.Outcome {
	outcomes := make([]domain.Outcome, 0, len(specs))
	for i, spec := range specs {
		if ctx.Err() != nil {
			d.logger.Info("dispatch interrupted", "remaining", len(specs)-i)
			break
		}
		outcomes = append(outcomes, d.Dispatch(ctx, spec))
	}
	return outcomes
}

func (d *Dispatcher) build(ctx context.Context, spec domain.ActionSpec) (ports.Request, error) {
	if !spec.Valid() {
		return ports.Request{}, domain.ErrInvalidAction
	}

	target, err := d.resolve(spec.URL, spec.Params)
	if err != nil {
		return ports.Request{}, err
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if token, ok := d.store.LoginToken(ctx); ok {
		header.Set("Authorization", "Bearer "+token)
	} else {
		d.logger.Debug("no credential available", "url", spec.URL)
	}

	var body []byte
	switch {
	case spec.Body != nil:
		body, err = json.Marshal(spec.Body)
		if err != nil {
			return ports.Request{}, fmt.Errorf("encode body: %w", err)
		}
	case spec.BodyText != "":
		body = []byte(spec.BodyText)
	}

	return ports.Request{
		Method: strings.ToUpper(strings.TrimSpace(spec.Method)),
		URL:    target,
		Header: header,
		Body:   body,
	}, nil
}

func (d *Dispatcher) resolve(raw string, params map[string]any) (string, error) {
	raw = strings.TrimSpace(raw)
	if d.baseURL != "" && !strings.Contains(raw, "://") {
		raw = d.baseURL + "/" + strings.TrimLeft(raw, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if len(params) == 0 {
		return u.String(), nil
	}

	q := u.Query()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := params[k]; v != nil {
			q.Set(k, paramValue(v))
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func paramValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%v", t)
	case map[string]any, []any:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

func (d *Dispatcher) isLogin(rawURL string) bool {
	return strings.Contains(strings.ToLower(rawURL), d.loginPattern)
}

func (d *Dispatcher) captureCredential(ctx context.Context, out *domain.Outcome) {
	token, ok := ExtractCredential(out.Body)
	if !ok {
		d.logger.Warn("login succeeded but no token found in response", "url", out.Spec.URL)
		return
	}
	if err := d.store.SetLoginToken(ctx, token); err != nil {
		d.logger.Warn("could not store credential", "error", err)
		return
	}
	out.Credential = token
	d.logger.Info("credential captured", "url", out.Spec.URL)
}

func (d *Dispatcher) fail(ctx context.Context, spec domain.ActionSpec, err error) {
	d.logger.Warn("action failed", "method", spec.Method, "url", spec.URL, "error", err)
	if serr := d.store.SetLastResponse(ctx, domain.ErrorPrefix+err.Error()); serr != nil {
		d.logger.Warn("could not record failure", "error", serr)
	}
}
