package timetable

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Cache holds the current timetable per branch/semester.
type Cache interface {
	Get(ctx context.Context, branchID string, semester int) (*Timetable, error)
	Set(ctx context.Context, tt Timetable) error
	Invalidate(ctx context.Context, branchID string, semester int) error
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string, int) (*Timetable, error) { return nil, nil }
func (NopCache) Set(context.Context, Timetable) error                 { return nil }
func (NopCache) Invalidate(context.Context, string, int) error        { return nil }

// RedisCache stores JSON-encoded timetables with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a cache on client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func cacheKey(branchID string, semester int) string {
	return fmt.Sprintf("timetable:current:%s:%d", branchID, semester)
}

// Get returns nil without error on a miss.
func (c *RedisCache) Get(ctx context.Context, branchID string, semester int) (*Timetable, error) {
	raw, err := c.client.Get(ctx, cacheKey(branchID, semester)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "cache get")
	}
	var tt Timetable
	if err := json.Unmarshal(raw, &tt); err != nil {
		return nil, errors.Wrap(err, "cache decode")
	}
	return &tt, nil
}

func (c *RedisCache) Set(ctx context.Context, tt Timetable) error {
	raw, err := json.Marshal(tt)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(tt.BranchID, tt.Semester), raw, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, branchID string, semester int) error {
	return c.client.Del(ctx, cacheKey(branchID, semester)).Err()
}
