// Package cache holds Redis-backed helpers shared across API instances.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultMaxFailures = 5
	DefaultWindow      = 30 * time.Minute

	keyPrefix = "login:fail:"
)

// LoginThrottle counts failed logins per email in Redis. The counter window
// starts at the first failure and is not extended by later ones.
type LoginThrottle struct {
	rdb         *redis.Client
	maxFailures int64
	window      time.Duration
}

func NewLoginThrottle(rdb *redis.Client, maxFailures int, window time.Duration) *LoginThrottle {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &LoginThrottle{rdb: rdb, maxFailures: int64(maxFailures), window: window}
}

// Connect opens a client for addr and pings the server.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// Blocked reports whether key has reached the failure limit.
func (t *LoginThrottle) Blocked(ctx context.Context, key string) (bool, error) {
	n, err := t.rdb.Get(ctx, keyPrefix+key).Int64()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read login failures: %w", err)
	}
	return n >= t.maxFailures, nil
}

// RecordFailure increments the counter for key.
func (t *LoginThrottle) RecordFailure(ctx context.Context, key string) error {
	k := keyPrefix + key
	n, err := t.rdb.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("failed to record login failure: %w", err)
	}
	if n == 1 {
		if err := t.rdb.Expire(ctx, k, t.window).Err(); err != nil {
			return fmt.Errorf("failed to set login failure window: %w", err)
		}
	}
	return nil
}

// Reset clears the counter after a successful login.
func (t *LoginThrottle) Reset(ctx context.Context, key string) error {
	if err := t.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to reset login failures: %w", err)
	}
	return nil
}
