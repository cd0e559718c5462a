package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint (vLLM, Ollama, OpenAI).
type OpenAIProvider struct {
	client     openai.Client
	model      string
	maxRetries int
	logger     *zap.Logger
}

var _ Provider = (*OpenAIProvider)(nil)

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	Timeout    time.Duration
}

func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		// local servers ignore the key but the client requires one
		apiKey = "EMPTY"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	return &OpenAIProvider{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	o := Apply(opts...)
	model := p.model
	if o.Model != "" {
		model = o.Model
	}
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Model:    openai.ChatModel(model),
	}
	if o.Temperature != nil {
		params.Temperature = openai.Float(*o.Temperature)
	}
	if o.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(o.MaxTokens))
	}

	var text string
	err := withRetry(ctx, p.logger, "chat.completions", p.maxRetries, func() error {
		resp, err := p.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return ErrEmptyResponse
		}
		text = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("openai generate (%s): %w", model, err)
	}
	return text, nil
}

func (p *OpenAIProvider) GenerateStructured(ctx context.Context, prompt string, out any, opts ...Option) error {
	raw, err := p.Generate(ctx, prompt, opts...)
	if err != nil {
		return err
	}
	return DecodeJSON(raw, out)
}
