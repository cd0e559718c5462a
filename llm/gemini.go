package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiProvider calls the Gemini generateContent REST API. It also serves grounded
// generation through the built-in google_search tool.
type GeminiProvider struct {
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
	client     *http.Client
	logger     *zap.Logger
}

var (
	_ Provider          = (*GeminiProvider)(nil)
	_ GroundedGenerator = (*GeminiProvider)(nil)
)

type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	Timeout    time.Duration
}

func NewGeminiProvider(cfg GeminiConfig, logger *zap.Logger) *GeminiProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = defaultGeminiBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &GeminiProvider{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	Tools            []map[string]any       `json:"tools,omitempty"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

func (p *GeminiProvider) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	o := Apply(opts...)
	body, err := p.call(ctx, prompt, o, nil, "")
	if err != nil {
		return "", err
	}
	return responseText(body)
}

func (p *GeminiProvider) GenerateStructured(ctx context.Context, prompt string, out any, opts ...Option) error {
	o := Apply(opts...)
	body, err := p.call(ctx, prompt, o, nil, "application/json")
	if err != nil {
		return err
	}
	text, err := responseText(body)
	if err != nil {
		return err
	}
	return DecodeJSON(text, out)
}

func (p *GeminiProvider) GenerateGrounded(ctx context.Context, prompt string, opts ...Option) (GroundedResponse, error) {
	o := Apply(opts...)
	tools := []map[string]any{{"google_search": map[string]any{}}}
	body, err := p.call(ctx, prompt, o, tools, "")
	if err != nil {
		return GroundedResponse{}, err
	}
	text, err := responseText(body)
	if err != nil {
		return GroundedResponse{}, err
	}
	return GroundedResponse{
		Text:     text,
		Chunks:   groundingChunks(body),
		Supports: groundingSupports(body),
	}, nil
}

func (p *GeminiProvider) call(ctx context.Context, prompt string, o Options, tools []map[string]any, mime string) ([]byte, error) {
	model := p.model
	if o.Model != "" {
		model = o.Model
	}
	reqBody := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		Tools:    tools,
		GenerationConfig: geminiGenerationConfig{
			Temperature:      o.Temperature,
			MaxOutputTokens:  o.MaxTokens,
			ResponseMimeType: mime,
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, model)

	var body []byte
	err = withRetry(ctx, p.logger, "gemini.generateContent", p.maxRetries, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("x-goog-api-key", p.apiKey)
		req.Header.Set("Content-Type", "application/json")

		res, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()

		b, err := io.ReadAll(res.Body)
		if err != nil {
			return err
		}
		if res.StatusCode != http.StatusOK {
			return &StatusError{Provider: "gemini", StatusCode: res.StatusCode, Body: string(b)}
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate (%s): %w", model, err)
	}
	return body, nil
}

func responseText(body []byte) (string, error) {
	if reason := gjson.GetBytes(body, "promptFeedback.blockReason"); reason.Exists() {
		return "", fmt.Errorf("gemini: prompt blocked: %s", reason.String())
	}
	var b strings.Builder
	for _, part := range gjson.GetBytes(body, "candidates.0.content.parts").Array() {
		b.WriteString(part.Get("text").String())
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

func groundingChunks(body []byte) []GroundingChunk {
	var chunks []GroundingChunk
	gjson.GetBytes(body, "candidates.0.groundingMetadata.groundingChunks").ForEach(func(_, c gjson.Result) bool {
		chunks = append(chunks, GroundingChunk{
			URI:   c.Get("web.uri").String(),
			Title: c.Get("web.title").String(),
		})
		return true
	})
	return chunks
}

func groundingSupports(body []byte) []GroundingSupport {
	var supports []GroundingSupport
	gjson.GetBytes(body, "candidates.0.groundingMetadata.groundingSupports").ForEach(func(_, s gjson.Result) bool {
		sup := GroundingSupport{
			StartIndex: int(s.Get("segment.startIndex").Int()),
			EndIndex:   int(s.Get("segment.endIndex").Int()),
		}
		for _, idx := range s.Get("groundingChunkIndices").Array() {
			sup.ChunkIndices = append(sup.ChunkIndices, int(idx.Int()))
		}
		supports = append(supports, sup)
		return true
	})
	return supports
}
