package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// Brave uses the Brave Search API. An API key is required via X-Subscription-Token.
// Brave allows one request per second on the free plan; wrap it with NewRateLimited.
type Brave struct {
	APIKey   string
	Endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewBrave constructs a Brave search provider.
func NewBrave(apiKey string, timeout time.Duration, logger *zap.Logger) *Brave {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Brave{APIKey: apiKey, Endpoint: braveEndpoint, client: &http.Client{Timeout: timeout}, logger: logger}
}

func (b *Brave) Name() string { return "brave" }

// Search executes a Brave query.
func (b *Brave) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if strings.TrimSpace(b.APIKey) == "" {
		return nil, fmt.Errorf("brave: %w", ErrMissingAPIKey)
	}
	limit := capResults(maxResults)

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(limit))
	endpoint := b.Endpoint + "?" + params.Encode()

	resp, err := doThrottled(ctx, b.client, b.logger, "brave", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Subscription-Token", b.APIKey)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("brave: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{Provider: "brave", StatusCode: resp.StatusCode}
	}

	var payload struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("brave: decode response: %w", err)
	}

	results := make([]Result, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, Result{Title: r.Title, URL: r.URL, Content: r.Description})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}
