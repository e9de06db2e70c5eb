package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestMemory_FixedWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewMemory(clock, time.Minute, 2)
	ctx := context.Background()

	for range 2 {
		ok, _, err := l.Allow(ctx, 1)
		require.NoError(t, err)
		require.True(t, ok)
	}

	clock.Advance(20 * time.Second)
	ok, retry, err := l.Allow(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 40*time.Second, retry)

	ok, _, _ = l.Allow(ctx, 2)
	require.True(t, ok, "budgets are per participant")

	clock.Advance(time.Minute)
	ok, _, _ = l.Allow(ctx, 1)
	require.True(t, ok, "new window resets the counter")
}
