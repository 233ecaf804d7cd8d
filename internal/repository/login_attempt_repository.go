package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const loginAttemptPrefix = "login_attempts:"

// LoginAttemptRepository counts failed logins per handle in Redis.
// A nil client disables counting.
type LoginAttemptRepository struct {
	client *redis.Client
}

// NewLoginAttemptRepository constructs a LoginAttemptRepository.
func NewLoginAttemptRepository(client *redis.Client) *LoginAttemptRepository {
	return &LoginAttemptRepository{client: client}
}

// loginAttemptKey keys on the trimmed handle as given, matching the
// case-sensitive account lookup.
func loginAttemptKey(handle string) string {
	return loginAttemptPrefix + strings.TrimSpace(handle)
}

// Failures returns the number of failed attempts recorded for handle.
func (r *LoginAttemptRepository) Failures(ctx context.Context, handle string) (int64, error) {
	if r.client == nil {
		return 0, nil
	}
	count, err := r.client.Get(ctx, loginAttemptKey(handle)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get login attempts: %w", err)
	}
	return count, nil
}

// RecordFailure increments the failure counter; the window starts at the first failure.
func (r *LoginAttemptRepository) RecordFailure(ctx context.Context, handle string, window time.Duration) (int64, error) {
	if r.client == nil {
		return 0, nil
	}
	key := loginAttemptKey(handle)
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis record login failure: %w", err)
	}
	return incr.Val(), nil
}

// Reset clears the failure counter for handle.
func (r *LoginAttemptRepository) Reset(ctx context.Context, handle string) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, loginAttemptKey(handle)).Err(); err != nil {
		return fmt.Errorf("redis reset login attempts: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection if present.
func (r *LoginAttemptRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
