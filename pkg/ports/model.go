package ports

import "context"

// Model is the language model capability: given a prompt, return text.
type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ModelFunc adapts a plain function to the Model interface.
type ModelFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls f(ctx, prompt).
func (f ModelFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
