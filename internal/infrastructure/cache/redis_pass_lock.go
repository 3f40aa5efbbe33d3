package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultPassLockKey is the key shared by every instance billing the same database
const DefaultPassLockKey = "kost:billing:pass-lock"

// ErrLockNotHeld is returned when releasing a lock whose token no longer matches,
// usually because the TTL expired and another instance took it
var ErrLockNotHeld = errors.New("billing pass lock is not held")

// releaseScript deletes the key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisPassLock is a single-holder lock for billing passes across instances.
// It uses SET NX PX with a random token; release is token checked.
type RedisPassLock struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisPassLock creates a pass lock on an existing client
func NewRedisPassLock(client redis.UniversalClient, key string, ttl time.Duration) *RedisPassLock {
	if key == "" {
		key = DefaultPassLockKey
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisPassLock{client: client, key: key, ttl: ttl}
}

// TryLock attempts to take the lock without waiting. When acquired is false
// another holder has it and unlock is nil.
func (l *RedisPassLock) TryLock(ctx context.Context) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire pass lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func(ctx context.Context) error {
		deleted, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int64()
		if err != nil {
			return fmt.Errorf("failed to release pass lock: %w", err)
		}
		if deleted == 0 {
			return ErrLockNotHeld
		}
		return nil
	}
	return unlock, true, nil
}
