// Package cache stores computed PnL results in Redis.
//
// Entries live under versioned keys (pnl:v{n}:{kind}:{args}). Any write to
// trades or prices bumps the version, which orphans every older entry
// without a scan; orphans expire through their TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const versionKey = "pnl:version"

// Cache is the result cache used by the service layer
type Cache interface {
	// Get decodes the cached value into dest and reports whether it was
	// found. It also returns the version it looked under; pass it to Set
	// so a result computed before an Invalidate is never stored under the
	// newer version.
	Get(ctx context.Context, kind, key string, dest any) (version int64, found bool, err error)
	Set(ctx context.Context, version int64, kind, key string, value any) error
	// Invalidate makes every existing entry unreachable
	Invalidate(ctx context.Context) error
}

// Redis is a Cache backed by go-redis
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection
func NewRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

// NewRedisFromClient wraps an existing client
func NewRedisFromClient(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) version(ctx context.Context) (int64, error) {
	v, err := r.client.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache version: %w", err)
	}
	return v, nil
}

func entryKey(version int64, kind, key string) string {
	return fmt.Sprintf("pnl:v%d:%s:%s", version, kind, key)
}

func (r *Redis) Get(ctx context.Context, kind, key string, dest any) (int64, bool, error) {
	v, err := r.version(ctx)
	if err != nil {
		return 0, false, err
	}
	k := entryKey(v, kind, key)

	data, err := r.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("failed to get %s: %w", k, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return v, false, fmt.Errorf("failed to decode %s: %w", k, err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, version int64, kind, key string, value any) error {
	k := entryKey(version, kind, key)

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", k, err)
	}
	if err := r.client.Set(ctx, k, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", k, err)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context) error {
	if err := r.client.Incr(ctx, versionKey).Err(); err != nil {
		return fmt.Errorf("failed to bump cache version: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (r *Redis) Close() error {
	return r.client.Close()
}

// Nop is a Cache that never stores anything
type Nop struct{}

func (Nop) Get(context.Context, string, string, any) (int64, bool, error) { return 0, false, nil }
func (Nop) Set(context.Context, int64, string, string, any) error        { return nil }
func (Nop) Invalidate(context.Context) error                             { return nil }
