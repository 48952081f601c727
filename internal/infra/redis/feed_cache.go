package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"snipr-audio/internal/domain/ports/adapter"
	"snipr-audio/internal/infra/metrics"
)

var _ adapter.FeedCache = (*FeedCache)(nil)

// FeedCache stores the rendered RSS document per owner. The stored value is
// prefixed with the feed id it was rendered for so a rotated id never serves
// the old document.
type FeedCache struct {
	client RedisClient
}

func NewFeedCache(client RedisClient) *FeedCache {
	return &FeedCache{client: client}
}

func feedKey(ownerID string) string { return "feed:" + ownerID }

func (c *FeedCache) Get(ctx context.Context, ownerID, feedID string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, feedKey(ownerID))
	if errors.Is(err, Nil) {
		metrics.IncCacheRequest("feed", "miss")
		return nil, false, nil
	}
	if err != nil {
		metrics.IncCacheRequest("feed", "error")
		return nil, false, err
	}
	id, doc, ok := strings.Cut(val, "\n")
	if !ok || id != feedID {
		metrics.IncCacheRequest("feed", "miss")
		return nil, false, nil
	}
	metrics.IncCacheRequest("feed", "hit")
	return []byte(doc), true, nil
}

func (c *FeedCache) Set(ctx context.Context, ownerID, feedID string, doc []byte, ttl time.Duration) error {
	return c.client.Set(ctx, feedKey(ownerID), feedID+"\n"+string(doc), ttl)
}

func (c *FeedCache) Invalidate(ctx context.Context, ownerID string) error {
	return c.client.Del(ctx, feedKey(ownerID))
}
