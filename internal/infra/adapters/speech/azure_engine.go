package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"snipr-audio/internal/domain/ports/adapter"
)

var _ adapter.SpeechEngine = (*AzureEngine)(nil)

const (
	azureOutputFormat = "audio-16khz-32kbitrate-mono-mp3"
	maxErrorBody      = 512
)

// AzureEngine calls the Azure Cognitive Services text-to-speech REST API.
// Every response is a self-contained MP3 stream in the same format, so chunk
// outputs can be concatenated byte-wise.
type AzureEngine struct {
	key      string
	endpoint string
	client   *http.Client
}

// NewAzureEngine builds an engine for region. endpoint overrides the regional
// URL when non-empty.
func NewAzureEngine(key, region, endpoint string, client *http.Client) (*AzureEngine, error) {
	if key == "" {
		return nil, errors.New("azure speech key empty")
	}
	if endpoint == "" {
		if region == "" {
			return nil, errors.New("azure speech region empty")
		}
		endpoint = fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", region)
	}
	if client == nil {
		// The per-call deadline is enforced by the Synthesizer.
		client = &http.Client{}
	}
	return &AzureEngine{key: key, endpoint: endpoint, client: client}, nil
}

func (e *AzureEngine) SpeakSSML(ctx context.Context, ssml string) (adapter.SynthesisResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, strings.NewReader(ssml))
	if err != nil {
		return adapter.SynthesisResult{}, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", e.key)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", azureOutputFormat)
	req.Header.Set("User-Agent", "snipr-audio")

	resp, err := e.client.Do(req)
	if err != nil {
		return adapter.SynthesisResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return adapter.SynthesisResult{
			Reason:       adapter.SynthesisCanceled,
			ErrorDetails: fmt.Sprintf("azure tts http %d: %s", resp.StatusCode, bytes.TrimSpace(body)),
		}, nil
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return adapter.SynthesisResult{}, err
	}
	return adapter.SynthesisResult{Reason: adapter.SynthesisCompleted, Audio: audio}, nil
}
