package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"snipr-audio/internal/domain/model"
	"snipr-audio/internal/domain/ports/adapter"
)

var _ adapter.JobNotifier = (*NoopNotifier)(nil)

// NoopNotifier logs notifications instead of sending them.
type NoopNotifier struct {
	log zerolog.Logger
}

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	return &NoopNotifier{log: logger.With().Str("component", "noop_notifier").Logger()}
}

func (n *NoopNotifier) JobFinished(_ context.Context, job *model.ConversionJob) error {
	n.log.Debug().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("job finished")
	return nil
}
