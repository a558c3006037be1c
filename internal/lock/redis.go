// Package lock provides a Redis backed mutual exclusion lock with owner tokens.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds the caller's token,
// so an expired lock re-acquired by someone else is left alone.
var releaseScript = redis.NewScript(`
    -- KEYS[1] = lock key
    -- ARGV[1] = owner token

    if redis.call("GET", KEYS[1]) == ARGV[1] then
        return redis.call("DEL", KEYS[1])
    end

    return 0
`)

type RedisLocker struct {
	client redis.UniversalClient
}

func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{
		client: client,
	}
}

// TryLock sets key to a fresh owner token if it is absent. It never waits.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("lock %s: %w", key, err)
	}

	if !acquired {
		return "", false, nil
	}

	return token, true, nil
}

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	err := releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	if err != nil {
		return fmt.Errorf("unlock %s: %w", key, err)
	}

	return nil
}
