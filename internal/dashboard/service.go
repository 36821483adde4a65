package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	cacheVersionKey = "dashboard:version"
	cacheKeyPrefix  = "dashboard:summary:"
)

// PresenceCounter reports how many users are online right now.
type PresenceCounter interface {
	Count(ctx context.Context) (int, error)
}

// Service assembles the helpdesk overview. The aggregate queries fan out
// concurrently; the assembled summary is cached in Redis behind a version
// key and concurrent cold-cache requests collapse to a single build.
type Service struct {
	repo     RepositoryPort
	presence PresenceCounter
	client   *redis.Client
	ttl      time.Duration
	logger   *slog.Logger
	group    singleflight.Group
}

// NewService builds Service instance. The Redis client may be nil, which
// disables caching but keeps the fan-out.
func NewService(repo RepositoryPort, presence PresenceCounter, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{repo: repo, presence: presence, client: client, ttl: ttl, logger: logger}
}

// Summary returns the overview, served from cache when fresh.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	key := s.cacheKey(ctx)
	if key != "" {
		if cached, ok := s.fromCache(ctx, key); ok {
			return cached, nil
		}
	}
	result, err, _ := s.group.Do(key, func() (any, error) {
		summary, err := s.build(ctx)
		if err != nil {
			return Summary{}, err
		}
		if key != "" {
			s.store(ctx, key, summary)
		}
		return summary, nil
	})
	if err != nil {
		return Summary{}, err
	}
	return result.(Summary), nil
}

// Bump invalidates the cached summary after a ticket write.
func (s *Service) Bump(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Incr(ctx, cacheVersionKey).Err()
}

func (s *Service) build(ctx context.Context) (Summary, error) {
	var summary Summary
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.repo.CountByStatus(ctx)
		summary.ByStatus = rows
		return err
	})
	g.Go(func() error {
		rows, err := s.repo.CountByPriority(ctx)
		summary.ByPriority = rows
		return err
	})
	g.Go(func() error {
		rows, err := s.repo.CountByDepartment(ctx)
		summary.ByDepartment = rows
		return err
	})
	g.Go(func() error {
		rows, err := s.repo.OpenAgeBuckets(ctx)
		summary.OpenAge = rows
		return err
	})
	if s.presence != nil {
		g.Go(func() error {
			count, err := s.presence.Count(ctx)
			summary.OnlineUsers = count
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

// cacheKey folds the invalidation version into the key; an empty return
// disables caching for this call.
func (s *Service) cacheKey(ctx context.Context) string {
	if s.client == nil {
		return ""
	}
	ver, err := s.client.Get(ctx, cacheVersionKey).Int64()
	if err != nil && err != redis.Nil {
		return ""
	}
	return cacheKeyPrefix + strconv.FormatInt(ver, 10)
}

func (s *Service) fromCache(ctx context.Context, key string) (Summary, bool) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return Summary{}, false
	}
	var summary Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return Summary{}, false
	}
	return summary, true
}

func (s *Service) store(ctx context.Context, key string, summary Summary) {
	raw, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil && s.logger != nil {
		s.logger.Warn("dashboard cache store", slog.Any("error", err))
	}
}
