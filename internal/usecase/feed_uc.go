package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"snipr-audio/internal/domain"
	"snipr-audio/internal/domain/model"
	"snipr-audio/internal/domain/ports/adapter"
	"snipr-audio/internal/domain/ports/repository"
	"snipr-audio/internal/infra/logging"
	"snipr-audio/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FeedRenderer turns a feed into an RSS document. Render must be pure apart
// from now.
type FeedRenderer interface {
	Render(feed *model.UserFeed, selfURL string, now time.Time) []byte
}

var _ FeedUseCase = (*feedUC)(nil)

type FeedUseCase interface {
	EnsureFeed(ctx context.Context, p adapter.Principal) (*model.UserFeed, error)
	// Append publishes a completed job as an episode. Repeated calls for the
	// same job add nothing.
	Append(ctx context.Context, job *model.ConversionJob) error
	AppendEntry(ctx context.Context, p adapter.Principal, entry *model.FeedEntry) (*model.FeedEntry, error)
	ReadFeed(ctx context.Context, ownerID, feedID string) ([]byte, error)
	Rotate(ctx context.Context, p adapter.Principal) (*FeedInfo, error)
	Info(ctx context.Context, p adapter.Principal) (*FeedInfo, error)
}

// FeedInfo is the owner-facing view of a feed.
type FeedInfo struct {
	OwnerID    string    `json:"ownerId"`
	FeedID     string    `json:"feedId"`
	FeedURL    string    `json:"feedUrl"`
	Episodes   int       `json:"episodes"`
	ArtworkURL string    `json:"artworkUrl,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type feedUC struct {
	repo     repository.UserFeedRepository
	cache    adapter.FeedCache
	renderer FeedRenderer
	cacheTTL time.Duration
	baseURL  string
	now      func() time.Time
	log      *zerolog.Logger
}

// NewFeedUseCase wires the feed publisher. cache may be nil.
func NewFeedUseCase(repo repository.UserFeedRepository, cache adapter.FeedCache, renderer FeedRenderer,
	publicBaseURL string, cacheTTL time.Duration, logger *zerolog.Logger) *feedUC {
	l := logger.With().Str("component", "FeedUseCase").Logger()
	return &feedUC{
		repo:     repo,
		cache:    cache,
		renderer: renderer,
		cacheTTL: cacheTTL,
		baseURL:  strings.TrimRight(publicBaseURL, "/"),
		now:      func() time.Time { return time.Now().UTC() },
		log:      &l,
	}
}

// FeedURL is the public capability url of a feed.
func (uc *feedUC) FeedURL(ownerID, feedID string) string {
	return fmt.Sprintf("%s/rss/%s/%s", uc.baseURL, url.PathEscape(ownerID), url.PathEscape(feedID))
}

func (uc *feedUC) EnsureFeed(ctx context.Context, p adapter.Principal) (*model.UserFeed, error) {
	feed, err := uc.repo.FindByOwner(ctx, repository.NoTX, p.ID)
	if err == nil {
		return feed, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	feed, err = model.NewUserFeed(p.ID, p.Name, p.Email, p.Picture)
	if err != nil {
		return nil, err
	}
	switch err := uc.repo.Create(ctx, repository.NoTX, feed); {
	case errors.Is(err, domain.ErrAlreadyExists):
		// lost a creation race; the stored feed wins
		return uc.repo.FindByOwner(ctx, repository.NoTX, p.ID)
	case err != nil:
		return nil, err
	}
	logging.With(ctx, uc.log).Info().Str("owner_id", p.ID).Msg("feed created")
	return feed, nil
}

func (uc *feedUC) Append(ctx context.Context, job *model.ConversionJob) error {
	entry, err := model.NewFeedEntryFromJob(job, uc.now())
	if err != nil {
		return err
	}
	inserted, err := uc.repo.AppendEntry(ctx, repository.NoTX, entry)
	if errors.Is(err, domain.ErrNotFound) {
		if _, err := uc.EnsureFeed(ctx, adapter.Principal{ID: job.OwnerID}); err != nil {
			return err
		}
		inserted, err = uc.repo.AppendEntry(ctx, repository.NoTX, entry)
	}
	if err != nil {
		return err
	}
	if inserted {
		uc.invalidate(ctx, job.OwnerID)
	}
	return nil
}

// AppendEntry adds a caller-supplied episode. Ownership is checked before
// field validation.
func (uc *feedUC) AppendEntry(ctx context.Context, p adapter.Principal, entry *model.FeedEntry) (*model.FeedEntry, error) {
	if entry == nil {
		return nil, domain.Validationf("episode body is required")
	}
	if entry.OwnerID != p.ID {
		return nil, domain.ErrForbidden
	}
	e := *entry
	if strings.TrimSpace(e.GUID) == "" {
		e.GUID = uuid.NewString()
	}
	if e.PublishedAt.IsZero() {
		e.PublishedAt = uc.now()
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if _, err := uc.EnsureFeed(ctx, p); err != nil {
		return nil, err
	}
	inserted, err := uc.repo.AppendEntry(ctx, repository.NoTX, &e)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, domain.ErrAlreadyExists
	}
	uc.invalidate(ctx, p.ID)
	return &e, nil
}

func (uc *feedUC) ReadFeed(ctx context.Context, ownerID, feedID string) ([]byte, error) {
	if uc.cache != nil {
		doc, ok, err := uc.cache.Get(ctx, ownerID, feedID)
		if err != nil {
			uc.log.Warn().Err(err).Msg("feed cache read failed")
		}
		if ok {
			metrics.IncFeedRead("cache_hit")
			return doc, nil
		}
	}

	feed, err := uc.repo.FindByOwner(ctx, repository.NoTX, ownerID)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.IncFeedRead("not_found")
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !feed.MatchesFeedID(feedID) {
		metrics.IncFeedRead("forbidden")
		return nil, domain.ErrForbidden
	}

	doc := uc.renderer.Render(feed, uc.FeedURL(ownerID, feedID), uc.now())
	metrics.IncFeedRead("rendered")
	uc.cacheDoc(ctx, ownerID, feedID, doc)
	return doc, nil
}

// cacheDoc stores doc, then re-reads the feed id and drops the entry if a
// rotation landed in between. A rotation after the re-read runs its own
// invalidate after this Set.
func (uc *feedUC) cacheDoc(ctx context.Context, ownerID, feedID string, doc []byte) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Set(ctx, ownerID, feedID, doc, uc.cacheTTL); err != nil {
		uc.log.Warn().Err(err).Msg("feed cache write failed")
		return
	}
	current, err := uc.repo.FindByOwner(ctx, repository.NoTX, ownerID)
	if err == nil && current.MatchesFeedID(feedID) {
		return
	}
	uc.invalidate(ctx, ownerID)
}

// Rotate replaces the feed id. The previous feed url stops working at once.
func (uc *feedUC) Rotate(ctx context.Context, p adapter.Principal) (*FeedInfo, error) {
	feed, err := uc.EnsureFeed(ctx, p)
	if err != nil {
		return nil, err
	}
	feed.FeedID = model.NewFeedID()
	if err := uc.repo.UpdateFeedID(ctx, repository.NoTX, p.ID, feed.FeedID); err != nil {
		return nil, err
	}
	uc.invalidate(ctx, p.ID)
	feed.UpdatedAt = uc.now()
	return uc.info(feed), nil
}

func (uc *feedUC) Info(ctx context.Context, p adapter.Principal) (*FeedInfo, error) {
	feed, err := uc.EnsureFeed(ctx, p)
	if err != nil {
		return nil, err
	}
	return uc.info(feed), nil
}

func (uc *feedUC) info(feed *model.UserFeed) *FeedInfo {
	return &FeedInfo{
		OwnerID:    feed.OwnerID,
		FeedID:     feed.FeedID,
		FeedURL:    uc.FeedURL(feed.OwnerID, feed.FeedID),
		Episodes:   len(feed.Entries),
		ArtworkURL: feed.ArtworkURL,
		UpdatedAt:  feed.UpdatedAt,
	}
}

func (uc *feedUC) invalidate(ctx context.Context, ownerID string) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Invalidate(ctx, ownerID); err != nil {
		uc.log.Warn().Err(err).Str("owner_id", ownerID).Msg("feed cache invalidation failed")
	}
}
