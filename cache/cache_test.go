package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xayone/riskd/session"
)

func TestResultKey(t *testing.T) {
	a := ResultKey("alice@example.com", "203.0.113.10", "Mozilla/5.0")
	b := ResultKey("alice@example.com", "203.0.113.10", "Mozilla/5.0")
	require.Equal(t, a, b, "identical inputs derive identical keys")

	c := ResultKey("bob@example.com", "203.0.113.10", "Mozilla/5.0")
	require.NotEqual(t, a, c)

	// the agent contributes only its first 50 bytes
	long := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 extra"
	require.Equal(t,
		ResultKey("alice@example.com", "203.0.113.10", long),
		ResultKey("alice@example.com", "203.0.113.10", long+" trailing garbage"),
	)
}

func TestMemoryStoreResults(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	defer store.Close()

	key := ResultKey("alice@example.com", "203.0.113.10", "Mozilla/5.0")

	_, err := store.GetResult(ctx, key)
	require.ErrorIs(t, err, ErrMiss)

	entry := &Entry{
		Scores:        session.Scores{IP: 20, Datetime: 30, UserAgent: 10, Geolocation: 40, Overall: 25},
		ModelsVersion: "v1.0.0",
		CreatedAt:     time.Now().UnixMilli(),
	}
	require.NoError(t, store.SetResult(ctx, key, entry, time.Minute))

	got, err := store.GetResult(ctx, key)
	require.NoError(t, err)
	require.Equal(t, *entry, *got)
}

func TestMemoryStoreRateWindow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	defer store.Close()

	clock := time.Unix(1700000000, 0)
	store.now = func() time.Time { return clock }

	for want := int64(1); want <= 3; want++ {
		count, err := store.IncrementRate(ctx, "alice@example.com", time.Minute)
		require.NoError(t, err)
		require.Equal(t, want, count)
	}

	// a different principal gets an independent counter
	count, err := store.IncrementRate(ctx, "bob@example.com", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	// the window resets once its duration elapses
	clock = clock.Add(61 * time.Second)
	count, err = store.IncrementRate(ctx, "alice@example.com", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}
