package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"snipr-audio/internal/domain"
	"snipr-audio/internal/domain/model"
	"snipr-audio/internal/domain/ports/adapter"
	"snipr-audio/internal/domain/ports/repository"
	"snipr-audio/internal/infra/adapters/storage"
	"snipr-audio/internal/infra/logging"
	"snipr-audio/internal/infra/metrics"
	"snipr-audio/internal/textproc"

	"github.com/rs/zerolog"
)

const (
	StageExtract    = "extract"
	StageSummarize  = "summarize"
	StageSegment    = "segment"
	StageSynthesize = "synthesize"
	StageStore      = "store"
	StagePersist    = "persist"
)

// titleMaxRunes caps titles derived from the first sentence.
const titleMaxRunes = 80

// finalizeTimeout bounds each write made after the pipeline returns.
const finalizeTimeout = 30 * time.Second

// FeedAppender publishes a completed job to its owner's feed.
type FeedAppender interface {
	Append(ctx context.Context, job *model.ConversionJob) error
}

type Stages struct {
	Extractor   adapter.ContentExtractor
	Summarizer  adapter.Summarizer
	Synthesizer adapter.SpeechSynthesizer
	Store       adapter.ArtifactStore
}

type ProcessorConfig struct {
	PollInterval time.Duration
	StaleAfter   time.Duration
	MaxChunk     int
	Voice        adapter.Voice
}

// ConversionProcessor claims pending jobs and drives each through the
// pipeline to a terminal state.
type ConversionProcessor struct {
	jobs     repository.ConversionJobRepository
	stages   Stages
	feeds    FeedAppender
	notifier adapter.JobNotifier
	cfg      ProcessorConfig
	wake     chan struct{}
	inflight atomic.Int32
	active   sync.Map // job id -> struct{}
	log      *zerolog.Logger
}

func NewConversionProcessor(
	jobs repository.ConversionJobRepository,
	stages Stages,
	feeds FeedAppender,
	notifier adapter.JobNotifier,
	cfg ProcessorConfig,
	logger *zerolog.Logger,
) *ConversionProcessor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxChunk <= 0 {
		cfg.MaxChunk = textproc.DefaultMaxChunk
	}
	l := logger.With().Str("component", "ConversionProcessor").Logger()
	return &ConversionProcessor{
		jobs:     jobs,
		stages:   stages,
		feeds:    feeds,
		notifier: notifier,
		cfg:      cfg,
		wake:     make(chan struct{}, 1),
		log:      &l,
	}
}

// Wake asks the poll loop to look for work now instead of at the next tick.
func (p *ConversionProcessor) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Start runs the poll loop until ctx is done. Run it in a goroutine.
func (p *ConversionProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Dur("poll_interval", p.cfg.PollInterval).Msg("conversion processor started")
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("conversion processor stopping")
			return
		case <-ticker.C:
		case <-p.wake:
		}
		p.dispatch(pool)
	}
}

// dispatch fills idle workers with claim tasks.
func (p *ConversionProcessor) dispatch(pool *Pool) {
	for int(p.inflight.Load()) < pool.Workers() {
		p.inflight.Add(1)
		err := pool.Submit(func(ctx context.Context) error {
			defer p.inflight.Add(-1)
			if p.processOne(ctx) {
				p.Wake()
			}
			return nil
		})
		if err != nil {
			p.inflight.Add(-1)
			if !errors.Is(err, domain.ErrQueueFull) {
				p.log.Error().Err(err).Msg("submit failed")
			}
			return
		}
	}
}

// processOne claims and runs one job. It reports whether a job was found.
func (p *ConversionProcessor) processOne(ctx context.Context) bool {
	job, err := p.jobs.ClaimNextPending(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) && ctx.Err() == nil {
			p.log.Error().Err(err).Msg("failed to claim job")
		}
		return false
	}
	p.Run(ctx, job)
	return true
}

// Run executes the pipeline for a job already in processing. Every path,
// including a panic, ends with the job saved as completed or failed.
func (p *ConversionProcessor) Run(ctx context.Context, job *model.ConversionJob) {
	ctx = logging.WithJobID(logging.WithOwnerID(ctx, job.OwnerID), job.ID)
	log := logging.With(ctx, p.log)
	log.Info().Msg("processing job")
	start := time.Now()
	p.active.Store(job.ID, struct{}{})
	defer p.active.Delete(job.ID)

	err := p.safePipeline(ctx, job)
	if err != nil {
		reason := err.Error()
		if ctx.Err() != nil {
			reason = model.InterruptedReason
		}
		if ferr := job.Fail(reason); ferr != nil {
			log.Error().Err(ferr).Str("status", string(job.Status)).Msg("cannot mark job failed")
		}
		log.Warn().Err(err).Msg("job failed")
	}

	// final writes must survive a cancelled job context
	saveCtx, cancel := p.finalizeContext(ctx)
	serr := p.jobs.Save(saveCtx, repository.NoTX, job)
	cancel()
	if serr != nil {
		log.Error().Err(serr).Str("status", string(job.Status)).Msg("failed to persist final job state")
		return
	}
	metrics.IncConversionJob(string(job.Status))
	log.Info().Str("status", string(job.Status)).Dur("took", time.Since(start)).Msg("job finished")

	if job.Status == model.JobStatusCompleted {
		appendCtx, cancel := p.finalizeContext(ctx)
		if aerr := p.feeds.Append(appendCtx, job); aerr != nil {
			log.Error().Err(aerr).Msg("feed append failed; job stays completed")
		}
		cancel()
	}
	if p.notifier != nil {
		notifyCtx, cancel := p.finalizeContext(ctx)
		if nerr := p.notifier.JobFinished(notifyCtx, job); nerr != nil {
			log.Warn().Err(nerr).Msg("job notification failed")
		}
		cancel()
	}
}

// finalizeContext keeps ctx values but drops its cancellation, with a deadline
// of its own.
func (p *ConversionProcessor) finalizeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
}

func (p *ConversionProcessor) safePipeline(ctx context.Context, job *model.ConversionJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.With(ctx, p.log).Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("pipeline panic")
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return p.pipeline(ctx, job)
}

func (p *ConversionProcessor) pipeline(ctx context.Context, job *model.ConversionJob) error {
	// extract
	var text, title string
	if err := p.stage(ctx, StageExtract, func() error {
		var err error
		text, title, err = p.extract(ctx, job)
		return err
	}); err != nil {
		return err
	}
	job.Title = title
	if err := p.persist(ctx, job); err != nil {
		return err
	}

	// summarize
	var spoken string
	if err := p.stage(ctx, StageSummarize, func() error {
		sum, err := p.stages.Summarizer.Summarize(ctx, job.Title, text)
		if err != nil {
			return wrapKind(domain.ErrSummarization, err)
		}
		job.Summary = strings.TrimSpace(sum.Synopsis)
		spoken = strings.TrimSpace(sum.SpokenText)
		if spoken == "" {
			spoken = text
		}
		return nil
	}); err != nil {
		return err
	}
	if err := p.persist(ctx, job); err != nil {
		return err
	}

	// segment
	chunks := textproc.Segment(spoken, p.cfg.MaxChunk)
	if len(chunks) == 0 {
		return &domain.StageError{Stage: StageSegment, Err: fmt.Errorf("%w: no speakable text", domain.ErrExtraction)}
	}

	// synthesize, in chunk order
	var audio []byte
	if err := p.stage(ctx, StageSynthesize, func() error {
		for i, chunk := range chunks {
			part, err := p.stages.Synthesizer.Synthesize(ctx, chunk, p.cfg.Voice)
			if err != nil {
				metrics.IncSynthesisChunk("error")
				return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
			metrics.IncSynthesisChunk("ok")
			audio = append(audio, part...)
			if err := p.heartbeat(ctx, job); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}
	if err := p.heartbeat(ctx, job); err != nil {
		return err
	}

	// store
	var audioURL string
	if err := p.stage(ctx, StageStore, func() error {
		var err error
		audioURL, err = p.stages.Store.Put(ctx, storage.ArtifactKey(job.OwnerID, job.ID), audio)
		return err
	}); err != nil {
		return err
	}

	duration := textproc.EstimateDurationSeconds(spoken)
	if duration < 1 {
		duration = 1
	}
	if err := job.Complete(audioURL, int64(len(audio)), duration); err != nil {
		return &domain.StageError{Stage: StagePersist, Err: err}
	}
	return nil
}

func (p *ConversionProcessor) extract(ctx context.Context, job *model.ConversionJob) (text, title string, err error) {
	src := job.Source
	if src.IsURL() {
		article, err := p.stages.Extractor.Extract(ctx, src.URL)
		if err != nil {
			return "", "", wrapKind(domain.ErrExtraction, err)
		}
		text, title = article.CleanText, article.Title
	} else {
		text = textproc.Normalize(src.Text)
	}
	if strings.TrimSpace(text) == "" {
		return "", "", fmt.Errorf("%w: no readable text", domain.ErrExtraction)
	}
	switch {
	case src.Title != "":
		title = src.Title
	case strings.TrimSpace(title) == "":
		title = textproc.FallbackTitle(text, titleMaxRunes)
	}
	return text, strings.TrimSpace(title), nil
}

// stage times fn and tags its error with the stage name.
func (p *ConversionProcessor) stage(ctx context.Context, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.ObserveStage(name, time.Since(start), err == nil)
	logging.With(ctx, p.log).Debug().Str("stage", name).Dur("took", time.Since(start)).Err(err).Msg("stage done")
	if err != nil {
		return &domain.StageError{Stage: name, Err: err}
	}
	return nil
}

func (p *ConversionProcessor) persist(ctx context.Context, job *model.ConversionJob) error {
	job.Touch()
	if err := p.jobs.Save(ctx, repository.NoTX, job); err != nil {
		return &domain.StageError{Stage: StagePersist, Err: err}
	}
	return nil
}

// heartbeat refreshes updated_at once a third of StaleAfter has passed, so a
// long synthesis never looks stale to a sweep on another replica. A job
// already failed by such a sweep stops here.
func (p *ConversionProcessor) heartbeat(ctx context.Context, job *model.ConversionJob) error {
	if p.cfg.StaleAfter <= 0 || time.Since(job.UpdatedAt) < p.cfg.StaleAfter/3 {
		return nil
	}
	return p.persist(ctx, job)
}

// ActiveJobIDs lists the jobs this processor is running right now.
func (p *ConversionProcessor) ActiveJobIDs() []string {
	ids := []string{}
	p.active.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	return ids
}

// RecoverStale fails processing jobs not updated within StaleAfter, except
// the ones this processor is still running.
func (p *ConversionProcessor) RecoverStale(ctx context.Context) (int, error) {
	if p.cfg.StaleAfter <= 0 {
		return 0, nil
	}
	n, err := p.jobs.FailStale(ctx, time.Now().Add(-p.cfg.StaleAfter), model.InterruptedReason, p.ActiveJobIDs())
	if err != nil {
		return 0, err
	}
	metrics.AddStaleJobsFailed(n)
	if n > 0 {
		p.log.Warn().Int("jobs", n).Msg("failed interrupted jobs")
	}
	return n, nil
}

// wrapKind adds the taxonomy sentinel unless err already carries one.
func wrapKind(kind, err error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
