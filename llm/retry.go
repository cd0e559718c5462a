package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"go.uber.org/zap"
)

// StatusError is a non-2xx answer from a provider's HTTP API.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, preview(e.Body))
}

// retryable reports whether err is worth another attempt.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrMalformedJSON) {
		return false
	}
	code := 0
	var se *StatusError
	var oe *openai.Error
	switch {
	case errors.As(err, &se):
		code = se.StatusCode
	case errors.As(err, &oe):
		code = oe.StatusCode
	}
	if code == 0 {
		// transport failure
		return true
	}
	return code == http.StatusTooManyRequests || code >= 500
}

// retryBase is the first backoff interval; tests shrink it.
var retryBase = 500 * time.Millisecond

// withRetry runs op up to maxRetries+1 times with exponential backoff.
func withRetry(ctx context.Context, log *zap.Logger, what string, maxRetries int, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = retryBase
	eb.MaxInterval = 20 * retryBase
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(maxRetries)), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		log.Warn("Retrying model call",
			zap.String("call", what),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
}
