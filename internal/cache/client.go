// Package cache wraps the Redis-backed revocation and permission-snapshot
// store (C2): token-revocation timestamps and cached API-token permission
// data.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/patr-cloud/patr-api/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client wraps the Redis client used by the revocation cache and the
// API-token permission snapshot cache.
type Client struct {
	raw    *redis.Client
	logger *zap.Logger
}

// NewClient dials Redis and verifies connectivity before returning.
func NewClient(cfg config.RedisConfig, logger *zap.Logger) (*Client, error) {
	raw := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("connected to redis", zap.String("host", cfg.Host), zap.String("port", cfg.Port), zap.Int("db", cfg.DB))
	return &Client{raw: raw, logger: logger}, nil
}

func (c *Client) Close() error { return c.raw.Close() }

// Raw exposes the underlying client for pipelining (multi-key revocation
// reads in one round trip, per spec section 5's ordering guarantees).
func (c *Client) Raw() *redis.Client { return c.raw }
