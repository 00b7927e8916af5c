// Package httpclient implements ports.Transport over net/http with a token-bucket rate limit.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aretw0/autopilot/pkg/ports"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 30 * time.Second
	defaultMaxBody = 2 << 20
)

// Transport executes action requests against the target application.
type Transport struct {
	client  *http.Client
	limiter *rate.Limiter
	maxBody int64
}

type Option func(*Transport)

// WithTimeout bounds each request, connection and body included.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.client.Timeout = d
		}
	}
}

// WithRateLimit caps outgoing requests to rpm per minute with the given burst.
// rpm <= 0 disables limiting.
func WithRateLimit(rpm, burst int) Option {
	return func(t *Transport) {
		if rpm <= 0 {
			t.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
	}
}

// WithMaxBody caps how many response bytes are read.
func WithMaxBody(n int64) Option {
	return func(t *Transport) {
		if n > 0 {
			t.maxBody = n
		}
	}
}

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) {
		t.client = c
	}
}

// New creates a Transport.
func New(opts ...Option) *Transport {
	t := &Transport{
		client:  &http.Client{Timeout: defaultTimeout},
		maxBody: defaultMaxBody,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var _ ports.Transport = (*Transport)(nil)

// Do sends req and returns the status and (bounded) body. Non-2xx statuses are not errors.
func (t *Transport) Do(ctx context.Context, req ports.Request) (ports.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return ports.Response{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return ports.Response{}, fmt.Errorf("build request: %w", err)
	}
	for k, vals := range req.Header {
		for _, v := range vals {
			hreq.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(hreq)
	if err != nil {
		return ports.Response{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody))
	if err != nil {
		return ports.Response{Status: resp.StatusCode}, fmt.Errorf("read response: %w", err)
	}
	return ports.Response{Status: resp.StatusCode, Body: data}, nil
}
