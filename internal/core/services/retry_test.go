package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragctx/internal/core/domain"
)

func fastPolicy() retryPolicy {
	return retryPolicy{attempts: 3, base: time.Millisecond, factor: 2}
}

func TestRetryPolicy_Defaults(t *testing.T) {
	p := newRetryPolicy(domain.IndexerSettings{})
	assert.Equal(t, 3, p.attempts)
	assert.Equal(t, 200*time.Millisecond, p.base)

	assert.Equal(t, 200*time.Millisecond, p.delay(1))
	assert.Equal(t, 400*time.Millisecond, p.delay(2))
	assert.Equal(t, 800*time.Millisecond, p.delay(3))
}

func TestRetryPolicy_RetriesTransient(t *testing.T) {
	calls := 0
	err := fastPolicy().do(context.Background(), "embed", func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("%w: 503", domain.ErrEmbeddingService)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_GivesUp(t *testing.T) {
	calls := 0
	err := fastPolicy().do(context.Background(), "embed", func(context.Context) error {
		calls++
		return fmt.Errorf("%w: 429", domain.ErrEmbeddingService)
	})

	assert.ErrorIs(t, err, domain.ErrEmbeddingService)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_PermanentNotRetried(t *testing.T) {
	calls := 0
	permanent := errors.New("status 400: bad input")
	err := fastPolicy().do(context.Background(), "embed", func(context.Context) error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := retryPolicy{attempts: 5, base: time.Hour, factor: 2}

	calls := 0
	err := p.do(ctx, "embed", func(context.Context) error {
		calls++
		cancel()
		return domain.ErrEmbeddingService
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
