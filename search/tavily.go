package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// Tavily calls the Tavily search API.
type Tavily struct {
	APIKey string
	// Depth controls Tavily's search_depth parameter (basic or advanced).
	Depth    string
	Endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewTavily constructs a Tavily search provider.
func NewTavily(apiKey, depth string, timeout time.Duration, logger *zap.Logger) *Tavily {
	if depth == "" {
		depth = "basic"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tavily{
		APIKey:   apiKey,
		Depth:    depth,
		Endpoint: tavilyEndpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

func (t *Tavily) Name() string { return "tavily" }

// Search posts a query to Tavily.
func (t *Tavily) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if strings.TrimSpace(t.APIKey) == "" {
		return nil, fmt.Errorf("tavily: %w", ErrMissingAPIKey)
	}
	limit := capResults(maxResults)

	payload, err := json.Marshal(map[string]any{
		"query":        query,
		"api_key":      t.APIKey,
		"search_depth": t.Depth,
		"max_results":  limit,
	})
	if err != nil {
		return nil, err
	}

	resp, err := doThrottled(ctx, t.client, t.logger, "tavily", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+t.APIKey)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("tavily: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{Provider: "tavily", StatusCode: resp.StatusCode}
	}

	var response struct {
		Results []struct {
			Title   string  `json:"title"`
			URL     string  `json:"url"`
			Content string  `json:"content"`
			Score   float64 `json:"score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("tavily: decode response: %w", err)
	}

	results := make([]Result, 0, len(response.Results))
	for _, r := range response.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, Result{Title: r.Title, URL: r.URL, Content: r.Content, Score: r.Score})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}
