// Package file provides filesystem-backed text sources for the task list and the capability catalog.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Source implements ports.TextSource by reading a file on every call,
// so edits to the catalog are picked up by the next turn.
type Source struct {
	Path string
}

// NewSource creates a Source for path.
func NewSource(path string) *Source {
	return &Source{Path: filepath.Clean(path)}
}

// Read returns the file contents.
func (s *Source) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", s.Path, err)
	}
	return string(data), nil
}
