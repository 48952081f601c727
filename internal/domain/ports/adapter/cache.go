package adapter

import (
	"context"
	"fmt"
	"time"
)

// FeedCache holds rendered feed documents for the public cache lifetime.
type FeedCache interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context, ownerID, feedID string) (doc []byte, ok bool, err error)
	Set(ctx context.Context, ownerID, feedID string, doc []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, ownerID string) error
}

// RateLimiter counts events per key inside a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SubmissionKey is the limiter key for an owner's job submissions.
func SubmissionKey(ownerID string) string {
	return fmt.Sprintf("rate_limit:submit:%s", ownerID)
}
