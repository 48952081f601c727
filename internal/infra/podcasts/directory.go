// Package podcasts lists external podcasts from their RSS feeds.
package podcasts

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"snipr-audio/internal/domain/ports/adapter"
)

var _ adapter.PodcastDirectory = (*Directory)(nil)

const (
	latestEpisodes   = 5
	defaultImage     = "/placeholder.jpg"
	defaultCategory  = "Uncategorized"
	defaultCacheTTL  = 10 * time.Minute
	maxFeedBodyBytes = 5 << 20
)

// Directory fetches the configured feeds concurrently. Feeds that fail to
// fetch or parse are skipped. Results are cached for ttl.
type Directory struct {
	feeds  []string
	client *http.Client
	parser *gofeed.Parser
	ttl    time.Duration
	log    zerolog.Logger

	mu       sync.Mutex
	cached   []adapter.Podcast
	cachedAt time.Time
	now      func() time.Time
}

func NewDirectory(feeds []string, client *http.Client, ttl time.Duration, logger *zerolog.Logger) *Directory {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Directory{
		feeds:  feeds,
		client: client,
		parser: gofeed.NewParser(),
		ttl:    ttl,
		log:    logger.With().Str("component", "podcast_directory").Logger(),
		now:    time.Now,
	}
}

func (d *Directory) List(ctx context.Context) ([]adapter.Podcast, error) {
	d.mu.Lock()
	if d.cached != nil && d.now().Sub(d.cachedAt) < d.ttl {
		out := d.cached
		d.mu.Unlock()
		return out, nil
	}
	d.mu.Unlock()

	results := make([]*adapter.Podcast, len(d.feeds))
	var wg sync.WaitGroup
	for i, url := range d.feeds {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			p, err := d.fetch(ctx, url)
			if err != nil {
				d.log.Warn().Err(err).Str("feed", url).Msg("skipping podcast feed")
				return
			}
			results[i] = p
		}(i, url)
	}
	wg.Wait()

	out := make([]adapter.Podcast, 0, len(results))
	for _, p := range results {
		if p != nil {
			out = append(out, *p)
		}
	}

	d.mu.Lock()
	d.cached, d.cachedAt = out, d.now()
	d.mu.Unlock()
	return out, nil
}

func (d *Directory) fetch(ctx context.Context, url string) (*adapter.Podcast, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml, */*")
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch feed: http %d", resp.StatusCode)
	}

	feed, err := d.parser.Parse(io.LimitReader(resp.Body, maxFeedBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return toPodcast(url, feed), nil
}

func toPodcast(url string, feed *gofeed.Feed) *adapter.Podcast {
	p := &adapter.Podcast{
		Title:       cmp.Or(feed.Title, "Untitled Podcast"),
		Description: feed.Description,
		Category:    defaultCategory,
		ImageURL:    defaultImage,
		FeedURL:     url,
	}
	if len(feed.Categories) > 0 && feed.Categories[0] != "" {
		p.Category = feed.Categories[0]
	}
	if feed.Image != nil && feed.Image.URL != "" {
		p.ImageURL = feed.Image.URL
	} else if feed.ITunesExt != nil && feed.ITunesExt.Image != "" {
		p.ImageURL = feed.ITunesExt.Image
	}

	n := min(len(feed.Items), latestEpisodes)
	p.Episodes = make([]adapter.PodcastEpisode, 0, n)
	for _, item := range feed.Items[:n] {
		ep := adapter.PodcastEpisode{
			Title:       item.Title,
			Description: item.Description,
			PublishedAt: item.Published,
		}
		if len(item.Enclosures) > 0 {
			ep.AudioURL = item.Enclosures[0].URL
		}
		if item.ITunesExt != nil {
			ep.Duration = item.ITunesExt.Duration
		}
		p.Episodes = append(p.Episodes, ep)
	}
	return p
}
