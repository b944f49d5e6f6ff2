package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"tamaco/internal/domain/model"

	"github.com/redis/go-redis/v9"
)

// StatsStore caches the task statistics. Misses and failures fall through to the database.
type StatsStore interface {
	Get(ctx context.Context) (*model.TaskStats, bool)
	Set(ctx context.Context, stats *model.TaskStats)
	Invalidate(ctx context.Context)
}

type RedisStatsCache struct {
	rdb    *redis.Client
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisStatsCache(rdb *redis.Client, key string, ttl time.Duration, logger *slog.Logger) *RedisStatsCache {
	return &RedisStatsCache{rdb: rdb, key: key, ttl: ttl, logger: logger}
}

func (c *RedisStatsCache) Get(ctx context.Context) (*model.TaskStats, bool) {
	raw, err := c.rdb.Get(ctx, c.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn("stats cache read failed", err)
		}
		return nil, false
	}
	var stats model.TaskStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		c.warn("stats cache entry is corrupt", err)
		return nil, false
	}
	return &stats, true
}

func (c *RedisStatsCache) Set(ctx context.Context, stats *model.TaskStats) {
	raw, err := json.Marshal(stats)
	if err != nil {
		c.warn("stats cache encode failed", err)
		return
	}
	if err := c.rdb.Set(ctx, c.key, raw, c.ttl).Err(); err != nil {
		c.warn("stats cache write failed", err)
	}
}

func (c *RedisStatsCache) Invalidate(ctx context.Context) {
	if err := c.rdb.Del(context.WithoutCancel(ctx), c.key).Err(); err != nil {
		c.warn("stats cache invalidation failed", err)
	}
}

func (c *RedisStatsCache) warn(msg string, err error) {
	if c.logger != nil {
		c.logger.Warn(msg, slog.String("key", c.key), slog.String("error", err.Error()))
	}
}
