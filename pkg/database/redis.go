package database

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/yourusername/auth-api/internal/config"
)

// NewUniversalRedisClient creates a Redis client from the unified config.
// Supports single and sentinel modes.
func NewUniversalRedisClient(cfg config.RedisConfig) (redis.UniversalClient, error) {
	addresses := cfg.Addrs
	if len(addresses) == 0 {
		if cfg.Addr == "" {
			return nil, fmt.Errorf("redis configuration error: Addrs or Addr must be provided")
		}
		addresses = []string{cfg.Addr}
	}

	options := &redis.UniversalOptions{
		Addrs:    addresses,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	switch cfg.Mode {
	case "sentinel":
		if cfg.MasterName == "" {
			return nil, fmt.Errorf("redis sentinel mode requires MasterName")
		}
		options.MasterName = cfg.MasterName
	case "", "single":
	default:
		return nil, fmt.Errorf("unsupported redis mode: %s", cfg.Mode)
	}

	client := redis.NewUniversalClient(options)
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis (addrs: %v): %w", addresses, err)
	}

	return client, nil
}
