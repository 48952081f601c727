package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"snipr-audio/internal/domain/model"
	"snipr-audio/internal/domain/ports/adapter"
)

var _ adapter.JobNotifier = (*Notifier)(nil)

// sender is the part of *tgbotapi.BotAPI the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier posts terminal job states to operator chats.
type Notifier struct {
	bot         sender
	chatIDs     []int64
	onlyFailure bool
	log         zerolog.Logger
}

func NewNotifier(token string, chatIDs []int64, onlyFailure bool, logger *zerolog.Logger) (*Notifier, error) {
	if token == "" {
		return nil, errors.New("telegram token empty")
	}
	if len(chatIDs) == 0 {
		return nil, errors.New("telegram chat ids empty")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return newNotifier(bot, chatIDs, onlyFailure, logger), nil
}

func newNotifier(bot sender, chatIDs []int64, onlyFailure bool, logger *zerolog.Logger) *Notifier {
	return &Notifier{
		bot:         bot,
		chatIDs:     chatIDs,
		onlyFailure: onlyFailure,
		log:         logger.With().Str("component", "telegram_notifier").Logger(),
	}
}

func (n *Notifier) JobFinished(ctx context.Context, job *model.ConversionJob) error {
	if job == nil || !job.Status.Terminal() {
		return nil
	}
	if n.onlyFailure && job.Status != model.JobStatusFailed {
		return nil
	}
	text := FormatJobMessage(job)

	var errs []error
	for _, id := range n.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := n.bot.Send(tgbotapi.NewMessage(id, text)); err != nil {
			n.log.Warn().Err(err).Int64("chat_id", id).Str("job_id", job.ID).Msg("telegram send failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FormatJobMessage renders the plain-text notification for a job.
func FormatJobMessage(job *model.ConversionJob) string {
	var b strings.Builder
	switch job.Status {
	case model.JobStatusCompleted:
		fmt.Fprintf(&b, "✅ Episode ready: %s\n", orUntitled(job.Title))
		fmt.Fprintf(&b, "Duration: %s\n", model.FormatDuration(job.DurationSeconds))
		fmt.Fprintf(&b, "Audio: %s\n", job.AudioURL)
	default:
		fmt.Fprintf(&b, "❌ Conversion failed: %s\n", orUntitled(job.Title))
		fmt.Fprintf(&b, "Error: %s\n", job.Error)
	}
	if job.Source.URL != "" {
		fmt.Fprintf(&b, "Source: %s\n", job.Source.URL)
	}
	fmt.Fprintf(&b, "Job: %s (owner %s)", job.ID, job.OwnerID)
	return b.String()
}

func orUntitled(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(untitled)"
	}
	return s
}
