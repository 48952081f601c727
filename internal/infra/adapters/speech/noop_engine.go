package speech

import (
	"bytes"
	"context"

	"snipr-audio/internal/domain/ports/adapter"
)

var _ adapter.SpeechEngine = (*NoopEngine)(nil)

// silentFrame is one MPEG-1 Layer III frame header followed by padding.
var silentFrame = append([]byte{0xFF, 0xFB, 0x90, 0x64}, make([]byte, 413)...)

// NoopEngine returns silent audio sized by the input for local runs.
type NoopEngine struct{}

func NewNoopEngine() *NoopEngine { return &NoopEngine{} }

func (NoopEngine) SpeakSSML(ctx context.Context, ssml string) (adapter.SynthesisResult, error) {
	if err := ctx.Err(); err != nil {
		return adapter.SynthesisResult{}, err
	}
	frames := len(ssml)/200 + 1
	return adapter.SynthesisResult{
		Reason: adapter.SynthesisCompleted,
		Audio:  bytes.Repeat(silentFrame, frames),
	}, nil
}
