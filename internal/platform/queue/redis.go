package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tamaco/internal/platform/config"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis returns a client that answered PING.
func ConnectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := rdb.Ping(pingCtx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	slog.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))
	return rdb, nil
}

func CloseRedis(rdb *redis.Client) {
	if rdb == nil {
		return
	}
	if err := rdb.Close(); err != nil {
		slog.Error("close redis", slog.String("error", err.Error()))
		return
	}
	slog.Info("redis connection closed")
}
