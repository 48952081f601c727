package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"snipr-audio/internal/domain"
	"snipr-audio/internal/domain/model"
	"snipr-audio/internal/domain/ports/adapter"
	"snipr-audio/internal/infra/metrics"
)

var _ adapter.ArtifactStore = (*ArtifactStore)(nil)

var errNotVisible = errors.New("object not visible after upload")

// ArtifactKey is the object key of a job's audio.
func ArtifactKey(ownerID, jobID string) string {
	return fmt.Sprintf("podcasts/%s/%s.mp3", ownerID, jobID)
}

// ArtifactStore uploads audio to a Bucket, confirms the object exists and
// resolves its public URL. Each of the three steps is retried on its own.
type ArtifactStore struct {
	bucket   adapter.Bucket
	attempts int
	base     time.Duration
	sleep    SleepFunc
	log      zerolog.Logger
}

type Option func(*ArtifactStore)

// WithRetry overrides the attempt count and backoff base.
func WithRetry(attempts int, base time.Duration) Option {
	return func(s *ArtifactStore) {
		if attempts > 0 {
			s.attempts = attempts
		}
		if base >= 0 {
			s.base = base
		}
	}
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(s *ArtifactStore) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

func NewArtifactStore(bucket adapter.Bucket, logger *zerolog.Logger, opts ...Option) *ArtifactStore {
	s := &ArtifactStore{
		bucket:   bucket,
		attempts: DefaultAttempts,
		base:     DefaultBackoffBase,
		sleep:    sleepWithContext,
		log:      logger.With().Str("component", "artifact_store").Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Put stores audio at key and returns its public URL. Failures after the
// retry budget are wrapped in domain.ErrStorage.
func (s *ArtifactStore) Put(ctx context.Context, key string, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: refusing to store empty audio", domain.ErrStorage)
	}

	err := s.retry(ctx, "upload", key, func(ctx context.Context) error {
		return s.bucket.Put(ctx, key, audio, model.AudioMIMEType)
	})
	if err != nil {
		return "", fmt.Errorf("%w: upload %s: %w", domain.ErrStorage, key, err)
	}

	err = s.retry(ctx, "confirm", key, func(ctx context.Context) error {
		ok, err := s.bucket.Exists(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return errNotVisible
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: confirm %s: %w", domain.ErrStorage, key, err)
	}

	var url string
	err = s.retry(ctx, "resolve_url", key, func(ctx context.Context) error {
		u, err := s.bucket.PublicURL(ctx, key)
		if err != nil {
			return err
		}
		url = u
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: resolve url %s: %w", domain.ErrStorage, key, err)
	}

	s.log.Info().Str("key", key).Int("bytes", len(audio)).Str("url", url).Msg("artifact stored")
	return url, nil
}

func (s *ArtifactStore) retry(ctx context.Context, op, key string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if err = fn(ctx); err == nil {
			metrics.IncStorageAttempt(op, "ok")
			return nil
		}
		metrics.IncStorageAttempt(op, "error")
		if attempt == s.attempts {
			break
		}
		delay := backoffDelay(s.base, attempt)
		s.log.Warn().Err(err).
			Str("op", op).
			Str("key", key).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("storage attempt failed")
		if serr := s.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return fmt.Errorf("after %d attempts: %w", s.attempts, err)
}
