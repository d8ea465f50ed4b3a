package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tubeinsight/dashboard/internal/config"
)

// NewRedisClient connects the client shared by the profile cache and the
// session event stream. The stream reader holds one connection for its
// blocking reads, so the pool never drops below two.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   cfg.ClientName,
		PoolSize:     max(cfg.PoolSize, 2),
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.ReadTimeout,
	})

	if err := PingRedis(ctx, client, cfg.DialTimeout); err != nil {
		_ = client.Close()
		return nil, err
	}

	log.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Str("client_name", cfg.ClientName).
		Msg("redis connected")
	return client, nil
}

// PingRedis checks the connection, bounded by timeout when one is set.
func PingRedis(ctx context.Context, client *redis.Client, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
