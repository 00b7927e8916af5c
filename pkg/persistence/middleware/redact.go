package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/autopilot/pkg/ports"
)

// Mask replaces redacted values in snapshots.
const Mask = "***"

type redactionMiddleware struct {
	next     ports.KVStore
	patterns []*regexp.Regexp
}

// NewRedactionMiddleware masks, in All, the values of keys matching any pattern.
// Single-key reads are untouched so the engine still sees real credentials.
func NewRedactionMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, 0, len(patternStrings))
	for _, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return func(next ports.KVStore) ports.KVStore {
		return &redactionMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *redactionMiddleware) Get(ctx context.Context, key string) (string, error) {
	return m.next.Get(ctx, key)
}

func (m *redactionMiddleware) Set(ctx context.Context, key, value string) error {
	return m.next.Set(ctx, key, value)
}

func (m *redactionMiddleware) Delete(ctx context.Context, keys ...string) error {
	return m.next.Delete(ctx, keys...)
}

func (m *redactionMiddleware) Clear(ctx context.Context) error {
	return m.next.Clear(ctx)
}

func (m *redactionMiddleware) All(ctx context.Context) (map[string]string, error) {
	all, err := m.next.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(all))
	for k, v := range all {
		out[k] = v
		for _, p := range m.patterns {
			if p.MatchString(k) {
				out[k] = Mask
				break
			}
		}
	}
	return out, nil
}
