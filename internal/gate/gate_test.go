package gate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/coachpo/zebpay/internal/gate"
)

func TestAcquireWithinBudgetDoesNotBlock(t *testing.T) {
	g := gate.New(4, rate.Every(time.Second/4))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, g.Acquire(ctx, 2))
	require.NoError(t, g.Acquire(ctx, 2))
}

func TestAcquireRespectsCancellation(t *testing.T) {
	g := gate.New(1, rate.Every(time.Hour))

	ctx := context.Background()
	require.NoError(t, g.Acquire(ctx, 1))

	// Bucket now empty for an hour; a cancelled context must return promptly.
	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := g.Acquire(cancelCtx, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquireOversizedWeight(t *testing.T) {
	g := gate.New(2, rate.Every(time.Second))
	err := g.Acquire(context.Background(), 3)
	require.Error(t, err)
}

func TestAcquireDefaultsZeroWeight(t *testing.T) {
	g := gate.New(2, rate.Every(time.Millisecond))
	require.NoError(t, g.Acquire(context.Background(), 0))
}
