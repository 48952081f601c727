package usecase

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"snipr-audio/internal/domain"
	"snipr-audio/internal/domain/model"
	"snipr-audio/internal/domain/ports/adapter"
	"snipr-audio/internal/domain/ports/repository"
	"snipr-audio/internal/infra/logging"
	"snipr-audio/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ JobUseCase = (*jobUC)(nil)

type JobUseCase interface {
	// Submit validates and records a pending job. It returns before any
	// pipeline work starts.
	Submit(ctx context.Context, p adapter.Principal, src model.SourceRef) (*model.ConversionJob, error)
	// SubmitDocument reads an uploaded book and submits its text. filename
	// names the episode when the book carries no title.
	SubmitDocument(ctx context.Context, p adapter.Principal, filename string, data []byte) (*model.ConversionJob, error)
	Get(ctx context.Context, p adapter.Principal, jobID string) (*model.ConversionJob, error)
	List(ctx context.Context, p adapter.Principal) ([]*model.ConversionJob, error)
}

type JobLimits struct {
	RateLimit  int
	RateWindow time.Duration
	ListLimit  int
}

type jobUC struct {
	jobs    repository.ConversionJobRepository
	feeds   FeedUseCase
	limiter adapter.RateLimiter
	docs    adapter.DocumentReader
	limits  JobLimits
	wake    func()
	log     *zerolog.Logger
}

// NewJobUseCase wires submission. limiter, docs and wake may be nil; without
// docs, document uploads are rejected.
func NewJobUseCase(jobs repository.ConversionJobRepository, feeds FeedUseCase, limiter adapter.RateLimiter,
	docs adapter.DocumentReader, limits JobLimits, wake func(), logger *zerolog.Logger) *jobUC {
	l := logger.With().Str("component", "JobUseCase").Logger()
	if wake == nil {
		wake = func() {}
	}
	return &jobUC{jobs: jobs, feeds: feeds, limiter: limiter, docs: docs, limits: limits, wake: wake, log: &l}
}

func (uc *jobUC) Submit(ctx context.Context, p adapter.Principal, src model.SourceRef) (*model.ConversionJob, error) {
	defer logging.TraceDuration(uc.log, "JobUseCase.Submit")()
	if p.ID == "" {
		return nil, domain.ErrAuth
	}
	job, err := model.NewConversionJob(p.ID, src)
	if err != nil {
		metrics.IncSubmissionRejected("validation")
		return nil, err
	}

	if uc.limiter != nil && uc.limits.RateLimit > 0 {
		ok, err := uc.limiter.Allow(ctx, adapter.SubmissionKey(p.ID), uc.limits.RateLimit, uc.limits.RateWindow)
		if err != nil {
			// a broken limiter must not block submissions
			uc.log.Warn().Err(err).Msg("rate limiter unavailable")
		} else if !ok {
			metrics.IncSubmissionRejected("rate_limited")
			return nil, domain.ErrRateLimited
		}
	}

	if _, err := uc.feeds.EnsureFeed(ctx, p); err != nil {
		return nil, err
	}
	if err := uc.jobs.Save(ctx, repository.NoTX, job); err != nil {
		return nil, err
	}
	metrics.IncConversionJob(string(model.JobStatusPending))
	logging.With(logging.WithJobID(ctx, job.ID), uc.log).Info().
		Bool("url_source", job.Source.IsURL()).Msg("job submitted")
	uc.wake()
	return job, nil
}

func (uc *jobUC) SubmitDocument(ctx context.Context, p adapter.Principal, filename string, data []byte) (*model.ConversionJob, error) {
	if p.ID == "" {
		return nil, domain.ErrAuth
	}
	if uc.docs == nil {
		return nil, domain.Validationf("document uploads are not enabled")
	}
	if len(data) == 0 {
		return nil, domain.Validationf("document is empty")
	}
	book, err := uc.docs.Read(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.IncSubmissionRejected("unreadable_document")
		return nil, domain.Validationf("unreadable document: %v", err)
	}
	title := book.Title
	if title == "" {
		title = strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	}
	if title == "." || title == "/" {
		title = ""
	}
	logging.With(ctx, uc.log).Debug().Str("title", title).Str("author", book.Byline).Msg("document read")
	return uc.Submit(ctx, p, model.SourceRef{Text: book.CleanText, Title: title})
}

// Get hides other owners' jobs behind ErrNotFound.
func (uc *jobUC) Get(ctx context.Context, p adapter.Principal, jobID string) (*model.ConversionJob, error) {
	job, err := uc.jobs.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if job.OwnerID != p.ID {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (uc *jobUC) List(ctx context.Context, p adapter.Principal) ([]*model.ConversionJob, error) {
	return uc.jobs.ListByOwner(ctx, repository.NoTX, p.ID, uc.limits.ListLimit)
}
