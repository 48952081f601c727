package ai

import "context"

var _ Completer = (*limitedCompleter)(nil)

type limitedCompleter struct {
	inner Completer
	sem   chan struct{}
}

// NewLimitedCompleter caps concurrent calls to inner. Waiting callers give up
// when their context ends.
func NewLimitedCompleter(inner Completer, maxConcurrent int) Completer {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedCompleter{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedCompleter) Name() string { return l.inner.Name() }

func (l *limitedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Complete(ctx, prompt)
}
