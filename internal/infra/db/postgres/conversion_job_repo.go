package postgres

import (
	"context"
	"errors"
	"time"

	"snipr-audio/internal/domain"
	"snipr-audio/internal/domain/model"
	"snipr-audio/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.ConversionJobRepository = (*conversionJobRepo)(nil)

type conversionJobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewConversionJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *conversionJobRepo {
	return &conversionJobRepo{pool: pool, tm: tm}
}

const jobColumns = `id, owner_id, source_url, source_text, source_title, status, title, summary,
  audio_url, audio_bytes, duration_seconds, error, created_at, updated_at`

// Save upserts the job. A row already in a terminal state is never
// overwritten; that case reports ErrInvalidTransition.
func (r *conversionJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.ConversionJob) error {
	if !job.Status.Valid() {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO conversion_jobs (` + jobColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  title = EXCLUDED.title,
  summary = EXCLUDED.summary,
  audio_url = EXCLUDED.audio_url,
  audio_bytes = EXCLUDED.audio_bytes,
  duration_seconds = EXCLUDED.duration_seconds,
  error = EXCLUDED.error,
  updated_at = EXCLUDED.updated_at
WHERE conversion_jobs.status NOT IN ('completed', 'failed');`

	cmd, err := execSQL(ctx, r.pool, tx, q,
		job.ID, job.OwnerID, job.Source.URL, job.Source.Text, job.Source.Title, string(job.Status),
		job.Title, job.Summary, job.AudioURL, job.AudioBytes, job.DurationSeconds, job.Error,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *conversionJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ConversionJob, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+jobColumns+` FROM conversion_jobs WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	job, err := scanJob(row)
	if err != nil {
		return nil, notFound(err)
	}
	return job, nil
}

func (r *conversionJobRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, limit int) ([]*model.ConversionJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := queryRows(ctx, r.pool, tx, `
SELECT `+jobColumns+`
FROM conversion_jobs
WHERE owner_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ConversionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// ClaimNextPending moves the oldest pending job to processing. Concurrent
// claimers skip each other's locked rows, so a job is claimed once.
func (r *conversionJobRepo) ClaimNextPending(ctx context.Context) (*model.ConversionJob, error) {
	var job *model.ConversionJob

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const q = `
SELECT ` + jobColumns + `
FROM conversion_jobs
WHERE status = 'pending'
ORDER BY created_at
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, q)
		if err != nil {
			return err
		}
		fetched, err := scanJob(row)
		if err != nil {
			return notFound(err)
		}
		if err := fetched.Start(); err != nil {
			return err
		}
		if err := r.Save(ctx, tx, fetched); err != nil {
			return err
		}
		job = fetched
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

func (r *conversionJobRepo) FailStale(ctx context.Context, olderThan time.Time, reason string, exclude []string) (int, error) {
	const q = `
UPDATE conversion_jobs
SET status = 'failed', error = $2, audio_url = '', audio_bytes = 0, duration_seconds = 0, updated_at = NOW()
WHERE status = 'processing' AND updated_at < $1 AND NOT (id = ANY($3));`
	// a nil slice encodes as NULL, which would match nothing
	if exclude == nil {
		exclude = []string{}
	}
	cmd, err := execSQL(ctx, r.pool, nil, q, olderThan, reason, exclude)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

func scanJob(row pgx.Row) (*model.ConversionJob, error) {
	var j model.ConversionJob
	var status string
	err := row.Scan(
		&j.ID, &j.OwnerID, &j.Source.URL, &j.Source.Text, &j.Source.Title, &status,
		&j.Title, &j.Summary, &j.AudioURL, &j.AudioBytes, &j.DurationSeconds, &j.Error,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Status = model.JobStatus(status)
	return &j, nil
}
