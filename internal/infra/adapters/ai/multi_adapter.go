package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

var _ Completer = (*MultiCompleter)(nil)

// MultiCompleter tries providers in order, starting from the default one,
// and returns the first successful reply.
type MultiCompleter struct {
	order []Completer
	log   zerolog.Logger
}

func NewMultiCompleter(defaultProvider string, providers []Completer, logger *zerolog.Logger) *MultiCompleter {
	defaultProvider = strings.ToLower(strings.TrimSpace(defaultProvider))
	order := make([]Completer, 0, len(providers))
	for _, p := range providers {
		if p != nil && strings.EqualFold(p.Name(), defaultProvider) {
			order = append(order, p)
		}
	}
	for _, p := range providers {
		if p != nil && !strings.EqualFold(p.Name(), defaultProvider) {
			order = append(order, p)
		}
	}
	return &MultiCompleter{order: order, log: logger.With().Str("component", "ai").Logger()}
}

func (m *MultiCompleter) Name() string {
	names := make([]string, 0, len(m.order))
	for _, p := range m.order {
		names = append(names, p.Name())
	}
	return strings.Join(names, ",")
}

func (m *MultiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if len(m.order) == 0 {
		return "", errors.New("no ai provider configured")
	}
	var errs []error
	for _, p := range m.order {
		reply, err := p.Complete(ctx, prompt)
		if err == nil {
			return reply, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		m.log.Warn().Err(err).Str("provider", p.Name()).Msg("provider failed, trying next")
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return "", errors.Join(errs...)
}
