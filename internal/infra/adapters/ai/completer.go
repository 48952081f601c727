package ai

import "context"

// Completer sends one prompt to a language model and returns the reply text.
type Completer interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}
