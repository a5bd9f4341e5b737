package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps store connectivity failures so callers can
	// tell them apart from a limit being hit.
	ErrRedisUnavailable = errors.New("rate limiter redis unavailable")
)

// Window is a fixed-window budget: at most Max increments per Period.
type Window struct {
	Max    int
	Period time.Duration
}

// Status is the outcome of one limiter check. Blocked means the current
// attempt exceeded the budget; ResetTime is when the window's counter
// expires and attempts are forgiven.
type Status struct {
	Attempts    int
	MaxAttempts int
	Blocked     bool
	ResetTime   time.Time
}

// Limiter enforces fixed-window budgets for (scope, identifier) pairs.
type Limiter struct {
	redis redis.UniversalClient
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient) *Limiter {
	return &Limiter{redis: redisClient}
}

// Key returns the counter key for a (scope, identifier) pair.
func Key(scope, identifier string) string {
	return "rate_limit:" + scope + ":" + identifier
}

// Hit atomically counts one attempt against the window and returns the
// resulting status. The counter's TTL is set only on the first hit of a
// window, so the key created at T always dies at T+Period.
func (l *Limiter) Hit(ctx context.Context, scope, identifier string, w Window) (*Status, error) {
	key := Key(scope, identifier)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := time.Now()
	status := &Status{
		Attempts:    int(count),
		MaxAttempts: w.Max,
		Blocked:     count > int64(w.Max),
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, w.Period).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		status.ResetTime = now.Add(w.Period)
		return status, nil
	}

	ttl, err := l.redis.PTTL(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl > 0 {
		status.ResetTime = now.Add(ttl)
	} else {
		// Counter exists without expiry: a prior Expire call failed midway.
		// Re-arm the window rather than letting the key live forever.
		if err := l.redis.Expire(ctx, key, w.Period).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		status.ResetTime = now.Add(w.Period)
	}

	return status, nil
}

// Peek reports the current status without consuming an attempt.
func (l *Limiter) Peek(ctx context.Context, scope, identifier string, w Window) (*Status, error) {
	key := Key(scope, identifier)

	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &Status{MaxAttempts: w.Max}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	status := &Status{
		Attempts:    int(count),
		MaxAttempts: w.Max,
		Blocked:     count > int64(w.Max),
	}

	ttl, err := l.redis.PTTL(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl > 0 {
		status.ResetTime = time.Now().Add(ttl)
	}

	return status, nil
}

// Reset clears the counter outright, forgiving all attempts in the
// current window. Used after a successful login.
func (l *Limiter) Reset(ctx context.Context, scope, identifier string) error {
	if err := l.redis.Del(ctx, Key(scope, identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
