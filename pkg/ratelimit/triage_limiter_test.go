package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterBlocksAtCapacity(t *testing.T) {
	l := NewLimiter(1)

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, l.InUse())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	assert.Equal(t, 0, l.InUse())

	release2, err := l.Acquire(context.Background())
	require.NoError(t, err)
	release2()
}

func TestLimiterUnlimited(t *testing.T) {
	var nilLimiter *Limiter
	for _, l := range []*Limiter{NewLimiter(0), nilLimiter} {
		for i := 0; i < 10; i++ {
			release, err := l.Acquire(context.Background())
			require.NoError(t, err)
			defer release()
		}
		assert.Equal(t, 0, l.InUse())
	}
}
