package cache

import (
	"context"
	"fmt"
	"time"

	appbilling "github.com/kost/backend/internal/application/billing"
	"github.com/kost/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PassLockFactory creates the distributed pass lock based on configuration
type PassLockFactory struct {
	redisConfig        config.RedisConfig
	ttl                time.Duration
	logger             *zap.Logger
	allowLocalFallback bool
}

// PassLockFactoryOption is a functional option for configuring the factory
type PassLockFactoryOption func(*PassLockFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) PassLockFactoryOption {
	return func(f *PassLockFactory) {
		f.logger = logger
	}
}

// WithLocalFallback controls whether to run with the in-process lock only when Redis is unavailable.
// Default is true (allow fallback)
func WithLocalFallback(allow bool) PassLockFactoryOption {
	return func(f *PassLockFactory) {
		f.allowLocalFallback = allow
	}
}

// NewPassLockFactory creates a new factory
func NewPassLockFactory(cfg config.RedisConfig, ttl time.Duration, opts ...PassLockFactoryOption) *PassLockFactory {
	f := &PassLockFactory{
		redisConfig:        cfg,
		ttl:                ttl,
		logger:             zap.NewNop(),
		allowLocalFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// CreateLock returns a Redis pass lock and the client backing it. When Redis
// is unreachable and fallback is allowed it returns a nil lock, leaving the
// orchestrator with its in-process lock only.
func (f *PassLockFactory) CreateLock() (appbilling.DistributedLock, *redis.Client, error) {
	client, err := NewRedisClient(f.redisConfig)
	if err == nil {
		f.logger.Info("using Redis billing pass lock", zap.String("addr", f.redisConfig.Addr()))
		return NewRedisPassLock(client, DefaultPassLockKey, f.ttl), client, nil
	}

	if !f.allowLocalFallback {
		return nil, nil, fmt.Errorf("Redis required for the billing pass lock but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, billing passes are only serialized within this process. "+
		"Running several instances may bill concurrently.",
		zap.Error(err),
	)
	return nil, nil, nil
}
