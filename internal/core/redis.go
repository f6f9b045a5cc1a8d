package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/duynhne/session-service/config"
)

// ConnectRedis creates a Redis client whose network deadlines follow the
// caller's context, so store timeouts cut off a hung server.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, opTimeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:                  cfg.Addr,
		Password:              cfg.Password,
		DB:                    cfg.DB,
		ContextTimeoutEnabled: true,
		DialTimeout:           opTimeout * 4,
		ReadTimeout:           opTimeout,
		WriteTimeout:          opTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opTimeout*4)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}
