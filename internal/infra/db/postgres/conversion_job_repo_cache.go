package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"snipr-audio/internal/domain/model"
	"snipr-audio/internal/domain/ports/repository"
	"snipr-audio/internal/infra/metrics"
	red "snipr-audio/internal/infra/redis"
)

var _ repository.ConversionJobRepository = (*conversionJobRepoCacheDecorator)(nil)

// conversionJobRepoCacheDecorator caches FindByID for status polling. Every
// write path through the decorator drops the job's key.
type conversionJobRepoCacheDecorator struct {
	inner repository.ConversionJobRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewConversionJobRepoCacheDecorator(inner repository.ConversionJobRepository, cache red.RedisClient, ttl time.Duration) repository.ConversionJobRepository {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &conversionJobRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func jobCacheKey(id string) string { return "job:id:" + id }

func (d *conversionJobRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, job *model.ConversionJob) error {
	_ = d.cache.Del(ctx, jobCacheKey(job.ID))
	return d.inner.Save(ctx, tx, job)
}

func (d *conversionJobRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ConversionJob, error) {
	key := jobCacheKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var job model.ConversionJob
		if json.Unmarshal([]byte(val), &job) == nil {
			metrics.IncCacheRequest("job", "hit")
			return &job, nil
		}
	} else if !errors.Is(err, red.Nil) {
		metrics.IncCacheRequest("job", "error")
	}

	metrics.IncCacheRequest("job", "miss")
	job, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(job); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return job, nil
}

func (d *conversionJobRepoCacheDecorator) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, limit int) ([]*model.ConversionJob, error) {
	return d.inner.ListByOwner(ctx, tx, ownerID, limit)
}

func (d *conversionJobRepoCacheDecorator) ClaimNextPending(ctx context.Context) (*model.ConversionJob, error) {
	job, err := d.inner.ClaimNextPending(ctx)
	if err == nil && job != nil {
		_ = d.cache.Del(ctx, jobCacheKey(job.ID))
	}
	return job, err
}

// FailStale does not report which ids it failed; the short ttl bounds any
// stale read.
func (d *conversionJobRepoCacheDecorator) FailStale(ctx context.Context, olderThan time.Time, reason string, exclude []string) (int, error) {
	return d.inner.FailStale(ctx, olderThan, reason, exclude)
}
