package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateLimited(t *testing.T) {
	g := NewGate(2)

	assert.True(t, g.TryAcquire())
	assert.True(t, g.TryAcquire())
	assert.False(t, g.TryAcquire(), "third acquire must fail")

	g.Release()
	assert.True(t, g.TryAcquire())
}

func TestGateUnlimited(t *testing.T) {
	for _, n := range []int{0, -1} {
		g := NewGate(n)
		for i := 0; i < 100; i++ {
			assert.True(t, g.TryAcquire())
		}
		g.Release() // no-op on an unlimited gate
	}
}

func TestGateAcquireContext(t *testing.T) {
	g := NewGate(1)
	require.True(t, g.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Acquire(ctx), context.DeadlineExceeded)

	g.Release()
	assert.NoError(t, g.Acquire(context.Background()))
}
