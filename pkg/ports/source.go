package ports

import "context"

// TextSource provides read-only text, such as the task list or the capability catalog.
type TextSource interface {
	Read(ctx context.Context) (string, error)
}
