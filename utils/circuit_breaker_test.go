package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerStaysClosedOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		err := cb.Execute(ctx, func(ctx context.Context) error { return nil })
		require.NoError(t, err)
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	assert.Equal(t, StateClosed, cb.state)
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()
	boom := errors.New("boom")

	// Drive the failure ratio past the trip threshold.
	for i := 0; i < 20; i++ {
		_ = cb.Execute(ctx, func(ctx context.Context) error { return boom })
	}

	err := cb.Execute(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerPassesThroughError(t *testing.T) {
	cb := NewCircuitBreaker("test")
	boom := errors.New("boom")

	err := cb.Execute(context.Background(), func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}
