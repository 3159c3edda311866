// Package redisclient provides Redis connection infrastructure.
// This is part of the platform layer and contains no business logic.
package redisclient

import (
	"context"
	"crypto/tls"

	"leadgen_backend/platform/config"

	"github.com/redis/go-redis/v9"
)

// New creates a Redis client from the configured URL and verifies
// connectivity with a ping.
func New(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}

	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if cfg.GetRedisTLSInsecure() {
			clone.InsecureSkipVerify = true
		}
		opt.TLSConfig = clone
	} else if cfg.GetRedisTLSInsecure() {
		opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}
