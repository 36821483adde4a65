package rbac

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "rbac:version"
	bumpChannel     = "rbac.bump"
)

// Cache is a cache-aside wrapper around a PermissionLookup. Invalidation is
// a global version bump after any administrative write; entries written under
// an older version are simply never read again and expire on their own.
type Cache struct {
	next   PermissionLookup
	client *redis.Client
	ttl    time.Duration
}

// NewCache wraps a lookup with Redis-backed caching.
func NewCache(next PermissionLookup, client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{next: next, client: client, ttl: ttl}
}

// UserEffectivePermissions serves the user's permission codes from cache,
// falling through to the underlying store on miss.
func (c *Cache) UserEffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return c.fetch(ctx, "perms", userID, func(ctx context.Context) ([]string, error) {
		return c.next.UserEffectivePermissions(ctx, userID)
	})
}

// RoleCodesForUser serves the user's role codes from cache, falling through
// to the underlying store on miss.
func (c *Cache) RoleCodesForUser(ctx context.Context, userID int64) ([]string, error) {
	return c.fetch(ctx, "roles", userID, func(ctx context.Context) ([]string, error) {
		return c.next.RoleCodesForUser(ctx, userID)
	})
}

// Bump invalidates every cached lookup by incrementing the global version
// and publishing the new value for other instances.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

func (c *Cache) fetch(ctx context.Context, kind string, userID int64, loader func(context.Context) ([]string, error)) ([]string, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.buildKey(ctx, kind, userID)
	if err != nil {
		// Cache trouble must not block authorization reads.
		return loader(ctx)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var codes []string
		if err := json.Unmarshal(payload, &codes); err == nil {
			return codes, nil
		}
	} else if err != redis.Nil {
		return loader(ctx)
	}
	codes, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(codes); err == nil {
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	return codes, nil
}

func (c *Cache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *Cache) buildKey(ctx context.Context, kind string, userID int64) (string, error) {
	ver, err := c.version(ctx)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{
		"rbac", kind, strconv.FormatInt(userID, 10), strconv.FormatInt(ver, 10),
	}, ":"), nil
}

var (
	_ PermissionLookup = (*Cache)(nil)
	_ Invalidator      = (*Cache)(nil)
)
