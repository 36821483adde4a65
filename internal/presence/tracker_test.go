package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func trackerFixture(t *testing.T) (*Tracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTracker(client, 90*time.Second), mr
}

func TestHeartbeatAndListing(t *testing.T) {
	tracker, _ := trackerFixture(t)
	ctx := context.Background()

	require.NoError(t, tracker.Heartbeat(ctx, 3))
	require.NoError(t, tracker.Heartbeat(ctx, 1))
	require.NoError(t, tracker.Heartbeat(ctx, 2))
	// A repeat heartbeat does not duplicate the entry.
	require.NoError(t, tracker.Heartbeat(ctx, 1))

	ids, err := tracker.Online(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, ids)

	count, err := tracker.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	online, err := tracker.IsOnline(ctx, 2)
	require.NoError(t, err)
	require.True(t, online)
}

func TestPresenceLapsesWithTTL(t *testing.T) {
	tracker, mr := trackerFixture(t)
	ctx := context.Background()

	require.NoError(t, tracker.Heartbeat(ctx, 5))
	mr.FastForward(91 * time.Second)

	ids, err := tracker.Online(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)

	online, err := tracker.IsOnline(ctx, 5)
	require.NoError(t, err)
	require.False(t, online)
}

func TestOfflineRemovesImmediately(t *testing.T) {
	tracker, _ := trackerFixture(t)
	ctx := context.Background()

	require.NoError(t, tracker.Heartbeat(ctx, 9))
	require.NoError(t, tracker.Offline(ctx, 9))

	count, err := tracker.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}
