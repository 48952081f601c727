// Package scheduler runs a sweep function on a fixed interval.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweep does one round of periodic work and reports how many items it touched.
type Sweep func(ctx context.Context) (int, error)

// Scheduler periodically runs a Sweep until stopped.
type Scheduler struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	sweep    Sweep
	log      *zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler runs sweep every interval. If interval <= 0 it defaults to
// 1 minute. Each run is bounded by the interval itself.
func NewScheduler(name string, interval time.Duration, sweep Sweep, logger *zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "Scheduler").Str("sweep", name).Logger()
	return &Scheduler{
		name:     name,
		interval: interval,
		timeout:  interval,
		sweep:    sweep,
		log:      &l,
		done:     make(chan struct{}),
	}
}

// Start begins the loop in a background goroutine. Calling Start again has
// no effect.
func (s *Scheduler) Start(parent context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(s.done)
	}()

	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.sweep(runCtx)
	if err != nil {
		s.log.Error().Err(err).Msg("sweep failed")
		return
	}
	if n > 0 {
		s.log.Info().Int("count", n).Msg("sweep done")
	}
}

// Stop cancels the loop and waits for it to finish. It is idempotent.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = make(chan struct{})
}
