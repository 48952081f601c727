// Package extractor fetches web articles and reduces them to speakable text.
package extractor

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"

	"snipr-audio/internal/domain"
	"snipr-audio/internal/domain/ports/adapter"
	"snipr-audio/internal/textproc"
)

var _ adapter.ContentExtractor = (*Extractor)(nil)

const (
	defaultMaxBytes  = 10 << 20
	defaultUserAgent = "Mozilla/5.0 (compatible; SniprAudio/1.0; +https://snipr.app)"
)

type Extractor struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
	stripTags *bluemonday.Policy
	log       zerolog.Logger
}

// New builds an extractor. A nil client gets a 30s timeout.
func New(client *http.Client, logger *zerolog.Logger) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Extractor{
		client:    client,
		maxBytes:  defaultMaxBytes,
		userAgent: defaultUserAgent,
		stripTags: bluemonday.StrictPolicy(),
		log:       logger.With().Str("component", "extractor").Logger(),
	}
}

// Extract fetches rawURL and returns its readable content. CleanText is
// already normalized for speech.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (adapter.Article, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return adapter.Article{}, fmt.Errorf("%w: invalid url: %v", domain.ErrExtraction, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return adapter.Article{}, fmt.Errorf("%w: %v", domain.ErrExtraction, err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return adapter.Article{}, fmt.Errorf("%w: fetch: %w", domain.ErrExtraction, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return adapter.Article{}, fmt.Errorf("%w: fetch returned http %d", domain.ErrExtraction, resp.StatusCode)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, e.maxBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return adapter.Article{}, fmt.Errorf("%w: decode charset: %v", domain.ErrExtraction, err)
	}

	article, err := readability.FromReader(body, pageURL)
	if err != nil {
		return adapter.Article{}, fmt.Errorf("%w: parse document: %v", domain.ErrExtraction, err)
	}

	text := article.TextContent
	if strings.TrimSpace(text) == "" && article.Content != "" {
		text = e.plain(article.Content)
	}
	clean := textproc.Normalize(text)
	if clean == "" {
		return adapter.Article{}, fmt.Errorf("%w: no readable content", domain.ErrExtraction)
	}

	out := adapter.Article{
		Title:     e.plain(article.Title),
		CleanText: clean,
		Excerpt:   e.plain(article.Excerpt),
		Byline:    e.plain(article.Byline),
		SiteName:  e.plain(article.SiteName),
	}
	e.log.Debug().
		Str("url", rawURL).
		Str("title", out.Title).
		Int("words", textproc.WordCount(clean)).
		Msg("article extracted")
	return out, nil
}

// plain strips markup and decodes entities.
func (e *Extractor) plain(s string) string {
	return strings.TrimSpace(html.UnescapeString(e.stripTags.Sanitize(s)))
}
