package repository

import (
	"context"
	"time"

	"snipr-audio/internal/domain/model"
)

type ConversionJobRepository interface {
	Save(ctx context.Context, tx Tx, job *model.ConversionJob) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.ConversionJob, error)
	// ListByOwner returns the owner's jobs, newest first.
	ListByOwner(ctx context.Context, tx Tx, ownerID string, limit int) ([]*model.ConversionJob, error)
	// ClaimNextPending atomically moves the oldest pending job to processing
	// and returns it. It returns domain.ErrNotFound when nothing is pending.
	ClaimNextPending(ctx context.Context) (*model.ConversionJob, error)
	// FailStale fails processing jobs not updated since olderThan, leaving
	// the ids in exclude untouched.
	FailStale(ctx context.Context, olderThan time.Time, reason string, exclude []string) (int, error)
}
