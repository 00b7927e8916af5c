package memory

import (
	"context"
	"sync"
)

// Source implements ports.TextSource over an in-memory string.
// Useful for tests and for task lists given inline in configuration.
type Source struct {
	mu   sync.RWMutex
	text string
	err  error
}

// NewSource creates a Source holding text.
func NewSource(text string) *Source {
	return &Source{text: text}
}

// NewFailingSource creates a Source whose reads always fail with err.
func NewFailingSource(err error) *Source {
	return &Source{err: err}
}

// Read returns the current text.
func (s *Source) Read(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

// Update replaces the text returned by subsequent reads.
func (s *Source) Update(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
	s.err = nil
}
