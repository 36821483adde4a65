package presence

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "presence:user:"

// Tracker records which users are online. Each heartbeat refreshes a Redis
// key with a TTL; a user drops off the listing once the key lapses. Redis
// owns all shared state, so concurrent heartbeats need no coordination here.
type Tracker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTracker constructs a tracker. The ttl should comfortably exceed the
// client heartbeat interval.
func NewTracker(client *redis.Client, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &Tracker{client: client, ttl: ttl}
}

// Heartbeat marks the user online for another TTL window.
func (t *Tracker) Heartbeat(ctx context.Context, userID int64) error {
	key := keyPrefix + strconv.FormatInt(userID, 10)
	return t.client.Set(ctx, key, time.Now().Unix(), t.ttl).Err()
}

// Offline removes the user immediately, typically on logout.
func (t *Tracker) Offline(ctx context.Context, userID int64) error {
	return t.client.Del(ctx, keyPrefix+strconv.FormatInt(userID, 10)).Err()
}

// Online lists the ids of users with a live heartbeat, ascending.
func (t *Tracker) Online(ctx context.Context) ([]int64, error) {
	var ids []int64
	iter := t.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw := strings.TrimPrefix(iter.Val(), keyPrefix)
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Count returns how many users are online.
func (t *Tracker) Count(ctx context.Context) (int, error) {
	ids, err := t.Online(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// IsOnline reports whether one user has a live heartbeat.
func (t *Tracker) IsOnline(ctx context.Context, userID int64) (bool, error) {
	n, err := t.client.Exists(ctx, keyPrefix+strconv.FormatInt(userID, 10)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
