package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"snipr-audio/internal/domain/model"
	"snipr-audio/internal/domain/ports/adapter"
)

// memFeedCache is an in-memory FeedCache that counts invalidations.
type memFeedCache struct {
	mu          sync.Mutex
	docs        map[string]string
	invalidated int
}

func newMemFeedCache() *memFeedCache { return &memFeedCache{docs: map[string]string{}} }

func (c *memFeedCache) Get(_ context.Context, ownerID, feedID string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.docs[ownerID+"/"+feedID]
	return []byte(d), ok, nil
}

func (c *memFeedCache) Set(_ context.Context, ownerID, feedID string, doc []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[ownerID+"/"+feedID] = string(doc)
	return nil
}

func (c *memFeedCache) Invalidate(_ context.Context, ownerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	for k := range c.docs {
		if len(k) > len(ownerID) && k[:len(ownerID)+1] == ownerID+"/" {
			delete(c.docs, k)
		}
	}
	return nil
}

// countingRenderer renders a tiny document listing entry guids. onRender,
// when set, runs before each render.
type countingRenderer struct {
	mu       sync.Mutex
	calls    int
	onRender func()
}

func (r *countingRenderer) Render(feed *model.UserFeed, selfURL string, _ time.Time) []byte {
	if r.onRender != nil {
		r.onRender()
	}
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	out := fmt.Sprintf("<rss self=%q>", selfURL)
	for _, e := range feed.SortedEntries() {
		out += "<item>" + e.GUID + "</item>"
	}
	return []byte(out + "</rss>")
}

// fakeLimiter allows the first n calls.
type fakeLimiter struct {
	n     int
	calls int
	keys  []string
	err   error
}

func (l *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.calls++
	l.keys = append(l.keys, key)
	if l.err != nil {
		return false, l.err
	}
	return l.calls <= l.n, nil
}

// fakeDocs returns a fixed article or error.
type fakeDocs struct {
	article adapter.Article
	err     error
}

func (d *fakeDocs) Read(context.Context, []byte) (adapter.Article, error) { return d.article, d.err }
