package domain

import (
	"context"
	"time"
)

// Cache stores scored results and windowed counters.
// Memory LRU for the community tier, Redis (optionally behind a local L1)
// for pro. All methods are tenant scoped.
type Cache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, tenantID string, key string) error

	// GetResult returns the cached verdict for a record fingerprint, nil on a miss.
	GetResult(ctx context.Context, tenantID string, fingerprint string) (*FairnessResult, error)
	SetResult(ctx context.Context, tenantID string, fingerprint string, result *FairnessResult, ttl time.Duration) error

	// IncrementCounter atomically increments a counter that resets after
	// window and returns the new value.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	LocalMaxSize int
	LocalTTL     time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// EnableTwoPhase fronts Redis with the local LRU.
	EnableTwoPhase bool

	// ResultTTL bounds how long a scored fingerprint is reused.
	ResultTTL time.Duration
}
