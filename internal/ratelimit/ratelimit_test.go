package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab/backend/internal/testutil"
)

func TestSlideRejectsEleventhRequest(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var stamps []time.Time
	var d Decision
	for i := 0; i < 10; i++ {
		stamps, d = slide(stamps, now.Add(time.Duration(i)*time.Second), 10, time.Minute)
		require.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 10-(i+1), d.Remaining)
	}

	stamps, d = slide(stamps, now.Add(10*time.Second), 10, time.Minute)
	assert.False(t, d.Allowed)
	assert.Equal(t, 50*time.Second, d.RetryAfter)
	assert.Equal(t, 50, d.RetryAfterSeconds())
	assert.Len(t, stamps, 10)
}

func TestSlideExpiresOldStamps(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var stamps []time.Time
	for i := 0; i < 10; i++ {
		stamps, _ = slide(stamps, now, 10, time.Minute)
	}

	stamps, d := slide(stamps, now.Add(time.Minute+time.Millisecond), 10, time.Minute)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
	assert.Len(t, stamps, 1)
}

func TestMemoryStoreKeysAreIndependent(t *testing.T) {
	store := NewMemoryStore(0, time.Minute, nil)
	defer store.Stop()
	l := New(store, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	d, err = l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMemoryStoreSweep(t *testing.T) {
	store := NewMemoryStore(0, time.Minute, nil)
	defer store.Stop()
	now := time.Now()

	_, _ = store.Allow(context.Background(), "a", now.Add(-2*time.Minute), 10, time.Minute)
	_, _ = store.Allow(context.Background(), "b", now, 10, time.Minute)
	require.Equal(t, 2, store.Len())

	store.Sweep(now)
	assert.Equal(t, 1, store.Len())
}

func TestLimiterUsesInjectedClock(t *testing.T) {
	store := NewMemoryStore(0, time.Minute, nil)
	defer store.Stop()
	l := New(store, 0, 0)
	assert.Equal(t, DefaultMax, l.Max())
	assert.Equal(t, DefaultWindow, l.Window())

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }
	for i := 0; i < DefaultMax; i++ {
		d, _ := l.Allow(context.Background(), "ip")
		require.True(t, d.Allowed)
	}
	d, _ := l.Allow(context.Background(), "ip")
	require.False(t, d.Allowed)

	l.now = func() time.Time { return base.Add(DefaultWindow + time.Second) }
	d, _ = l.Allow(context.Background(), "ip")
	assert.True(t, d.Allowed)
}

func TestFirestoreStore(t *testing.T) {
	fs := testutil.Firestore(t)
	store := NewFirestoreStore(fs)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		d, err := store.Allow(ctx, "203.0.113.9", now.Add(time.Duration(i)*time.Millisecond), 3, time.Minute)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := store.Allow(ctx, "203.0.113.9", now.Add(time.Second), 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}
