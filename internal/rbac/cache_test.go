package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// countingLookup records how many times the underlying store is consulted.
type countingLookup struct {
	perms map[int64][]string
	roles map[int64][]string
	calls int
}

func (l *countingLookup) UserEffectivePermissions(_ context.Context, userID int64) ([]string, error) {
	l.calls++
	return l.perms[userID], nil
}

func (l *countingLookup) RoleCodesForUser(_ context.Context, userID int64) ([]string, error) {
	l.calls++
	return l.roles[userID], nil
}

func cacheFixture(t *testing.T) (*Cache, *countingLookup, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lookup := &countingLookup{
		perms: map[int64][]string{7: {"ticket.view", "ticket.create"}},
		roles: map[int64][]string{7: {"AGENT"}},
	}
	return NewCache(lookup, client, time.Minute), lookup, mr
}

func TestCacheServesSecondReadWithoutStore(t *testing.T) {
	cache, lookup, _ := cacheFixture(t)
	ctx := context.Background()

	first, err := cache.UserEffectivePermissions(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, []string{"ticket.view", "ticket.create"}, first)
	require.Equal(t, 1, lookup.calls)

	second, err := cache.UserEffectivePermissions(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, lookup.calls)
}

func TestCacheBumpInvalidates(t *testing.T) {
	cache, lookup, _ := cacheFixture(t)
	ctx := context.Background()

	_, err := cache.UserEffectivePermissions(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 1, lookup.calls)

	// Simulate an administrative grant change.
	lookup.perms[7] = []string{"ticket.view"}
	require.NoError(t, cache.Bump(ctx))

	got, err := cache.UserEffectivePermissions(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, []string{"ticket.view"}, got)
	require.Equal(t, 2, lookup.calls)
}

func TestCacheRoleCodesKeyedSeparately(t *testing.T) {
	cache, lookup, _ := cacheFixture(t)
	ctx := context.Background()

	perms, err := cache.UserEffectivePermissions(ctx, 7)
	require.NoError(t, err)
	roles, err := cache.RoleCodesForUser(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, []string{"ticket.view", "ticket.create"}, perms)
	require.Equal(t, []string{"AGENT"}, roles)
	require.Equal(t, 2, lookup.calls)
}

func TestCacheFallsThroughWhenRedisDown(t *testing.T) {
	cache, lookup, mr := cacheFixture(t)
	ctx := context.Background()
	mr.Close()

	// Cache trouble must not block authorization reads.
	got, err := cache.UserEffectivePermissions(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, []string{"ticket.view", "ticket.create"}, got)
	require.Equal(t, 1, lookup.calls)
}
