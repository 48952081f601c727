package adapter

import (
	"context"

	"snipr-audio/internal/domain/model"
)

// JobNotifier is told about jobs that reached a terminal state.
type JobNotifier interface {
	JobFinished(ctx context.Context, job *model.ConversionJob) error
}
