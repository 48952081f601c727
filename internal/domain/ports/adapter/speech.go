package adapter

import "context"

// Voice carries the speech parameters placed in the SSML envelope.
type Voice struct {
	VoiceID  string
	Language string
	Pitch    string
	Rate     string
}

const (
	DefaultVoiceID  = "en-US-BrandonMultilingualNeural"
	DefaultLanguage = "en-US"
	DefaultPitch    = "+0Hz"
	DefaultRate     = "+0%"
)

// WithDefaults fills empty fields with the default voice settings.
func (v Voice) WithDefaults() Voice {
	if v.VoiceID == "" {
		v.VoiceID = DefaultVoiceID
	}
	if v.Language == "" {
		v.Language = DefaultLanguage
	}
	if v.Pitch == "" {
		v.Pitch = DefaultPitch
	}
	if v.Rate == "" {
		v.Rate = DefaultRate
	}
	return v
}

// SynthesisReason is the completion reason reported by a speech engine.
type SynthesisReason string

const (
	SynthesisCompleted SynthesisReason = "SynthesizingAudioCompleted"
	SynthesisCanceled  SynthesisReason = "Canceled"
)

// SynthesisResult is the raw outcome of one engine call.
type SynthesisResult struct {
	Reason       SynthesisReason
	Audio        []byte
	ErrorDetails string
}

// SpeechEngine renders an SSML document. Engines report failures through
// the result reason when they can; a returned error means the call itself
// did not complete.
type SpeechEngine interface {
	SpeakSSML(ctx context.Context, ssml string) (SynthesisResult, error)
}

// SpeechSynthesizer turns one text chunk into audio bytes.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, chunk string, voice Voice) ([]byte, error)
}
