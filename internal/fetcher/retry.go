// Package fetcher provides decorators over the low-level page fetchers.
package fetcher

import (
	"context"

	"go.uber.org/zap"

	"github.com/artiklix/kirjasto-harvester/internal/harvest"
)

// Retrying wraps a Fetcher with the exponential backoff policy. Transient
// failures are retried up to the policy's attempt budget; permanent ones
// surface immediately.
type Retrying struct {
	inner  harvest.Fetcher
	policy *harvest.ExponentialRetryPolicy
	logger *zap.Logger
}

// NewRetrying builds the decorator. A nil logger falls back to a no-op one.
func NewRetrying(inner harvest.Fetcher, policy *harvest.ExponentialRetryPolicy, logger *zap.Logger) *Retrying {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{inner: inner, policy: policy, logger: logger}
}

// Fetch retries the wrapped fetcher per the policy, sleeping the policy's
// backoff between attempts. Context cancellation aborts the loop.
func (r *Retrying) Fetch(ctx context.Context, url string) (harvest.FetchResponse, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		resp, err := r.inner.Fetch(ctx, url)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !r.policy.ShouldRetry(err, attempt) {
			return harvest.FetchResponse{}, lastErr
		}
		delay := r.policy.Backoff(attempt)
		r.logger.Warn("retrying fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := harvest.Pause(ctx, delay); err != nil {
			return harvest.FetchResponse{}, lastErr
		}
	}
}
