package ai

import (
	"context"
	"strings"
	"unicode/utf8"

	"snipr-audio/internal/domain/ports/adapter"
	"snipr-audio/internal/textproc"
)

var _ adapter.Summarizer = (*NoopSummarizer)(nil)

const noopSynopsisRunes = 300

// NoopSummarizer is used in dev mode: the synopsis is the opening sentences
// of the text.
type NoopSummarizer struct{}

func NewNoopSummarizer() *NoopSummarizer { return &NoopSummarizer{} }

func (NoopSummarizer) Summarize(ctx context.Context, title, text string) (adapter.Summary, error) {
	if err := ctx.Err(); err != nil {
		return adapter.Summary{}, err
	}
	var b strings.Builder
	for _, s := range textproc.Sentences(text) {
		if b.Len() > 0 && utf8.RuneCountInString(b.String())+1+utf8.RuneCountInString(s) > noopSynopsisRunes {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
	synopsis := b.String()
	if synopsis == "" {
		synopsis = title
	}
	return adapter.Summary{Synopsis: synopsis, SpokenText: text}, nil
}
