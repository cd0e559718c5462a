// Package search provides keyword web search backends for the research loop.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultMaxResults is the result cap used when callers pass a non-positive maximum.
const DefaultMaxResults = 5

// ErrMissingAPIKey is returned by providers constructed without credentials.
var ErrMissingAPIKey = errors.New("search: API key is missing")

// Result is one web search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// Provider executes a keyword search.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
	Name() string
}

// HTTPError is a non-2xx answer from a search API.
type HTTPError struct {
	Provider   string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s http %d", e.Provider, e.StatusCode)
}

// RateLimited paces calls to an underlying provider.
type RateLimited struct {
	Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps p so that at most rps searches start per second. rps <= 0 disables pacing.
func NewRateLimited(p Provider, rps float64) Provider {
	if rps <= 0 {
		return p
	}
	return &RateLimited{Provider: p, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

func (r *RateLimited) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Provider.Search(ctx, query, maxResults)
}

// throttleRetries bounds how many 429 answers a single search absorbs.
const throttleRetries = 3

var throttleBase = time.Second

// doThrottled issues the request built by newReq, backing off while the API answers 429.
// The caller owns the returned response body.
func doThrottled(ctx context.Context, client *http.Client, log *zap.Logger, provider string, newReq func() (*http.Request, error)) (*http.Response, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = throttleBase
	eb.MaxInterval = 30 * time.Second
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, throttleRetries), ctx)

	var resp *http.Response
	err := backoff.RetryNotify(func() error {
		req, err := newReq()
		if err != nil {
			return backoff.Permanent(err)
		}
		r, err := client.Do(req)
		if err != nil {
			return backoff.Permanent(err)
		}
		if r.StatusCode == http.StatusTooManyRequests {
			r.Body.Close()
			return &HTTPError{Provider: provider, StatusCode: r.StatusCode}
		}
		resp = r
		return nil
	}, policy, func(err error, wait time.Duration) {
		log.Warn("Search throttled, backing off", zap.String("provider", provider), zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func capResults(maxResults int) int {
	if maxResults <= 0 {
		return DefaultMaxResults
	}
	return maxResults
}
