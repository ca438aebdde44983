package services

import (
	"context"
	"errors"
	"time"

	"github.com/custodia-labs/ragctx/internal/core/domain"
	"github.com/custodia-labs/ragctx/internal/logger"
)

// retryPolicy is a bounded exponential backoff.
type retryPolicy struct {
	attempts int
	base     time.Duration
	factor   float64
}

// newRetryPolicy builds a policy from indexer settings, filling gaps with defaults.
func newRetryPolicy(cfg domain.IndexerSettings) retryPolicy {
	defaults := domain.DefaultAppSettings().Indexer
	p := retryPolicy{attempts: cfg.MaxAttempts, base: cfg.BaseBackoff, factor: 2}
	if p.attempts <= 0 {
		p.attempts = defaults.MaxAttempts
	}
	if p.base <= 0 {
		p.base = defaults.BaseBackoff
	}
	return p
}

// delay returns the wait before retry n (1-based).
func (p retryPolicy) delay(n int) time.Duration {
	d := float64(p.base)
	for i := 1; i < n; i++ {
		d *= p.factor
	}
	return time.Duration(d)
}

// do runs fn until it succeeds, fails permanently or attempts run out.
// Only domain.ErrEmbeddingService is retried.
func (p retryPolicy) do(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, domain.ErrEmbeddingService) {
			return err
		}
		if attempt == p.attempts {
			break
		}

		wait := p.delay(attempt)
		logger.Debug("%s: attempt %d/%d failed, retrying in %s: %v", op, attempt, p.attempts, wait, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
