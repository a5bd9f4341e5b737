package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBlacklistUnavailable wraps store connectivity failures during
// revocation checks so the engine can decide fail-open vs fail-closed.
var ErrBlacklistUnavailable = errors.New("blacklist redis unavailable")

// BlacklistKey returns the revocation marker key for a token ID.
func BlacklistKey(tokenID string) string {
	return "blacklist:" + tokenID
}

// Blacklist records revoked token IDs until their original expiry elapses.
// Entries are TTL-bound to the revoked token's remaining lifetime, so the
// marker and the token's natural death coincide and the set never grows
// without bound.
type Blacklist struct {
	redis redis.UniversalClient
}

// NewBlacklist creates a Blacklist backed by the given Redis client.
func NewBlacklist(redisClient redis.UniversalClient) *Blacklist {
	return &Blacklist{redis: redisClient}
}

// Add records a revocation marker. A non-positive ttl means the token has
// already expired and no marker is needed.
func (b *Blacklist) Add(ctx context.Context, tokenID, reason string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := b.redis.Set(ctx, BlacklistKey(tokenID), reason, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBlacklistUnavailable, err)
	}
	return nil
}

// Contains reports whether the token ID is currently revoked.
func (b *Blacklist) Contains(ctx context.Context, tokenID string) (bool, error) {
	n, err := b.redis.Exists(ctx, BlacklistKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBlacklistUnavailable, err)
	}
	return n > 0, nil
}
