package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	_, found, err := c.GetBool(ctx, "campaign:7:paused")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.SetBool(ctx, "campaign:7:paused", true, 50*time.Millisecond))
	value, found, err := c.GetBool(ctx, "campaign:7:paused")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, value)

	time.Sleep(60 * time.Millisecond)
	_, found, _ = c.GetBool(ctx, "campaign:7:paused")
	assert.False(t, found)
}

func TestMemoryLockExclusivity(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLock()

	token, ok, err := l.Acquire(ctx, "task:42", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, "task:42", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire for the same task must be rejected")

	// A stale token must not release a lock it no longer owns.
	require.NoError(t, l.Release(ctx, "task:42", "not-the-token"))
	_, ok, _ = l.Acquire(ctx, "task:42", time.Minute)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "task:42", token))
	_, ok, _ = l.Acquire(ctx, "task:42", time.Minute)
	assert.True(t, ok)
}

func TestMemoryBreakerTripsAndRecovers(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBreaker(2, 50*time.Millisecond)

	ok, _ := b.Allow(ctx, "campaign")
	assert.True(t, ok)

	require.NoError(t, b.RecordFailure(ctx, "campaign"))
	require.NoError(t, b.RecordFailure(ctx, "campaign"))

	ok, _ = b.Allow(ctx, "campaign")
	assert.False(t, ok, "breaker must trip at the threshold")

	// Other classes are unaffected.
	ok, _ = b.Allow(ctx, "webhook")
	assert.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	ok, _ = b.Allow(ctx, "campaign")
	assert.True(t, ok, "breaker must reset after the window")
}
