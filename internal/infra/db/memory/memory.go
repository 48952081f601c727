// Package memory holds process-local repositories used in dev mode and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"snipr-audio/internal/domain"
	"snipr-audio/internal/domain/model"
	"snipr-audio/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
)

// TxManager runs fn directly. Memory repositories are individually atomic.
type TxManager struct{}

var _ repository.TransactionManager = TxManager{}

func (TxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

var _ repository.ConversionJobRepository = (*JobRepo)(nil)

type JobRepo struct {
	mu   sync.Mutex
	jobs map[string]model.ConversionJob
}

func NewJobRepo() *JobRepo {
	return &JobRepo{jobs: make(map[string]model.ConversionJob)}
}

func (r *JobRepo) Save(_ context.Context, _ repository.Tx, job *model.ConversionJob) error {
	if !job.Status.Valid() {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.jobs[job.ID]; ok && cur.Status.Terminal() {
		return domain.ErrInvalidTransition
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *JobRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.ConversionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &job, nil
}

func (r *JobRepo) ListByOwner(_ context.Context, _ repository.Tx, ownerID string, limit int) ([]*model.ConversionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ConversionJob
	for _, j := range r.jobs {
		if j.OwnerID == ownerID {
			j := j
			out = append(out, &j)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.After(out[k].CreatedAt)
		}
		return out[i].ID > out[k].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *JobRepo) ClaimNextPending(_ context.Context) (*model.ConversionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var next *model.ConversionJob
	for _, j := range r.jobs {
		if j.Status != model.JobStatusPending {
			continue
		}
		if next == nil || j.CreatedAt.Before(next.CreatedAt) || (j.CreatedAt.Equal(next.CreatedAt) && j.ID < next.ID) {
			j := j
			next = &j
		}
	}
	if next == nil {
		return nil, domain.ErrNotFound
	}
	if err := next.Start(); err != nil {
		return nil, err
	}
	r.jobs[next.ID] = *next
	return next, nil
}

func (r *JobRepo) FailStale(_ context.Context, olderThan time.Time, reason string, exclude []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	n := 0
	for id, j := range r.jobs {
		if _, ok := skip[id]; ok {
			continue
		}
		if j.Status == model.JobStatusProcessing && j.UpdatedAt.Before(olderThan) {
			if err := j.Fail(reason); err != nil {
				return n, err
			}
			r.jobs[id] = j
			n++
		}
	}
	return n, nil
}

var _ repository.UserFeedRepository = (*FeedRepo)(nil)

type FeedRepo struct {
	mu    sync.Mutex
	feeds map[string]*model.UserFeed
}

func NewFeedRepo() *FeedRepo {
	return &FeedRepo{feeds: make(map[string]*model.UserFeed)}
}

func (r *FeedRepo) FindByOwner(_ context.Context, _ repository.Tx, ownerID string) (*model.UserFeed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.feeds[ownerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *f
	cp.Entries = append([]model.FeedEntry(nil), f.Entries...)
	return &cp, nil
}

func (r *FeedRepo) Create(_ context.Context, _ repository.Tx, feed *model.UserFeed) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.feeds[feed.OwnerID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *feed
	cp.Entries = append([]model.FeedEntry(nil), feed.Entries...)
	r.feeds[feed.OwnerID] = &cp
	return nil
}

func (r *FeedRepo) AppendEntry(_ context.Context, _ repository.Tx, entry *model.FeedEntry) (bool, error) {
	if err := entry.Validate(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.feeds[entry.OwnerID]
	if !ok {
		return false, domain.ErrNotFound
	}
	for _, e := range f.Entries {
		if e.GUID == entry.GUID {
			return false, nil
		}
	}
	f.Entries = append(f.Entries, *entry)
	f.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *FeedRepo) UpdateFeedID(_ context.Context, _ repository.Tx, ownerID, feedID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.feeds[ownerID]
	if !ok {
		return domain.ErrNotFound
	}
	f.FeedID = feedID
	f.UpdatedAt = time.Now().UTC()
	return nil
}
