package speech

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"snipr-audio/internal/domain"
	"snipr-audio/internal/domain/ports/adapter"
)

// DefaultTimeout is the hard ceiling for a single synthesis call.
const DefaultTimeout = 5 * time.Minute

var _ adapter.SpeechSynthesizer = (*Synthesizer)(nil)

// Synthesizer renders one chunk per call through a SpeechEngine. It never
// retries; a failed chunk fails the caller.
type Synthesizer struct {
	engine   adapter.SpeechEngine
	defaults adapter.Voice
	timeout  time.Duration
	log      zerolog.Logger
}

func NewSynthesizer(engine adapter.SpeechEngine, defaults adapter.Voice, timeout time.Duration, logger *zerolog.Logger) *Synthesizer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Synthesizer{
		engine:   engine,
		defaults: defaults.WithDefaults(),
		timeout:  timeout,
		log:      logger.With().Str("component", "speech").Logger(),
	}
}

type engineOutcome struct {
	res adapter.SynthesisResult
	err error
}

// Synthesize returns the audio for chunk. The engine call runs under a hard
// deadline; when it passes, the call is abandoned and ErrSynthesisTimeout is
// returned even if the engine ignores cancellation.
func (s *Synthesizer) Synthesize(ctx context.Context, chunk string, voice adapter.Voice) ([]byte, error) {
	voice = s.merge(voice)
	doc := BuildSSML(chunk, voice)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan engineOutcome, 1)
	go func() {
		res, err := s.engine.SpeakSSML(callCtx, doc)
		done <- engineOutcome{res: res, err: err}
	}()

	start := time.Now()
	var out engineOutcome
	select {
	case <-callCtx.Done():
		return nil, s.ctxError(ctx, callCtx)
	case out = <-done:
	}

	if out.err != nil {
		if callCtx.Err() != nil {
			return nil, s.ctxError(ctx, callCtx)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrSynthesis, out.err)
	}
	if out.res.Reason != adapter.SynthesisCompleted {
		details := out.res.ErrorDetails
		if details == "" {
			details = "engine reported " + string(out.res.Reason)
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrSynthesis, details)
	}
	if len(out.res.Audio) == 0 {
		return nil, fmt.Errorf("%w: engine returned empty audio", domain.ErrSynthesis)
	}

	s.log.Debug().
		Int("chars", len(chunk)).
		Int("bytes", len(out.res.Audio)).
		Dur("took", time.Since(start)).
		Str("voice", voice.VoiceID).
		Msg("chunk synthesized")
	return out.res.Audio, nil
}

// ctxError distinguishes our own deadline from cancellation by the caller.
func (s *Synthesizer) ctxError(parent, callCtx context.Context) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", domain.ErrSynthesisTimeout, s.timeout)
	}
	return callCtx.Err()
}

func (s *Synthesizer) merge(v adapter.Voice) adapter.Voice {
	if v.VoiceID == "" {
		v.VoiceID = s.defaults.VoiceID
	}
	if v.Language == "" {
		v.Language = s.defaults.Language
	}
	if v.Pitch == "" {
		v.Pitch = s.defaults.Pitch
	}
	if v.Rate == "" {
		v.Rate = s.defaults.Rate
	}
	return v
}
