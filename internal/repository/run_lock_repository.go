package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLockRepository is a Redis mutex keyed per semester so that only one instance writes
// allocations for a semester at a time.
type RunLockRepository struct {
	client redis.UniversalClient
}

// NewRunLockRepository constructs the lock store.
func NewRunLockRepository(client redis.UniversalClient) *RunLockRepository {
	return &RunLockRepository{client: client}
}

// Acquire sets key to token when absent and reports whether the lock was taken.
func (r *RunLockRepository) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return ok, nil
}

// Release deletes key only while it still holds token.
func (r *RunLockRepository) Release(ctx context.Context, key, token string) error {
	if err := releaseLockScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}
