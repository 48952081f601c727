package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"snipr-audio/internal/domain"
	"snipr-audio/internal/domain/ports/adapter"
)

var _ adapter.Summarizer = (*Summarizer)(nil)

const summaryPrompt = "Write an engaging, conversational summary of this article in 1 paragraph, " +
	"using natural language that flows well when spoken:\nTitle: %s\n\nContent: %s"

// Summarizer asks a language model for a spoken-style synopsis. The spoken
// body is the article text itself.
type Summarizer struct {
	llm    Completer
	budget *TokenBudget
	log    zerolog.Logger
}

func NewSummarizer(llm Completer, budget *TokenBudget, logger *zerolog.Logger) *Summarizer {
	return &Summarizer{
		llm:    llm,
		budget: budget,
		log:    logger.With().Str("component", "summarizer").Logger(),
	}
}

func (s *Summarizer) Summarize(ctx context.Context, title, text string) (adapter.Summary, error) {
	if strings.TrimSpace(text) == "" {
		return adapter.Summary{}, fmt.Errorf("%w: empty text", domain.ErrSummarization)
	}
	prompt := fmt.Sprintf(summaryPrompt, title, s.budget.Truncate(text))

	reply, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		return adapter.Summary{}, fmt.Errorf("%w: %s: %w", domain.ErrSummarization, s.llm.Name(), err)
	}
	synopsis := strings.TrimSpace(reply)
	if synopsis == "" {
		return adapter.Summary{}, fmt.Errorf("%w: empty reply from %s", domain.ErrSummarization, s.llm.Name())
	}
	s.log.Debug().Str("provider", s.llm.Name()).Int("chars", len(synopsis)).Msg("summary generated")
	return adapter.Summary{Synopsis: synopsis, SpokenText: text}, nil
}
