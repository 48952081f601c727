package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

var _ Completer = (*OpenAIAdapter)(nil)

// OpenAIConfig covers OpenAI and OpenAI-compatible gateways. With AzureEndpoint
// set, requests go to the Azure OpenAI deployment instead.
type OpenAIConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxTokens     int
	AzureEndpoint string
	AzureAPIVer   string
	Timeout       time.Duration
}

// OpenAIAdapter completes prompts with the Chat Completions API.
type OpenAIAdapter struct {
	client    openai.Client
	model     string
	maxTokens int
}

func NewOpenAIAdapter(cfg OpenAIConfig) (*OpenAIAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		option.WithMaxRetries(2),
	}
	switch {
	case cfg.AzureEndpoint != "":
		apiVer := cfg.AzureAPIVer
		if apiVer == "" {
			apiVer = "2024-02-15-preview"
		}
		base := strings.TrimRight(cfg.AzureEndpoint, "/") + "/openai/deployments/" + cfg.Model + "/"
		opts = append(opts,
			option.WithBaseURL(base),
			option.WithHeader("api-key", cfg.APIKey),
			option.WithQuery("api-version", apiVer),
		)
	case cfg.BaseURL != "":
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}

	return &OpenAIAdapter{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

func (o *OpenAIAdapter) Name() string { return "openai" }

func (o *OpenAIAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if o.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(o.maxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, nil
		}
	}
	return "", errors.New("no choice content")
}
