package adapter

import "context"

// Article is the readable part of a fetched document.
type Article struct {
	Title     string
	CleanText string
	Excerpt   string
	Byline    string
	SiteName  string
}

// ContentExtractor fetches a URL and reduces it to speakable text.
type ContentExtractor interface {
	Extract(ctx context.Context, url string) (Article, error)
}

// Summary is what the summarizer derives from an article.
type Summary struct {
	// Synopsis is the short description shown in the feed.
	Synopsis string
	// SpokenText is the full body that gets synthesized.
	SpokenText string
}

// Summarizer derives a synopsis and the spoken body from extracted text.
type Summarizer interface {
	Summarize(ctx context.Context, title, text string) (Summary, error)
}

// DocumentReader turns an uploaded book file into speakable text. Title,
// Byline and Excerpt come from the book metadata.
type DocumentReader interface {
	Read(ctx context.Context, data []byte) (Article, error)
}
