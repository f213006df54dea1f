package exam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld means another live session already owns the candidate.
var ErrLockHeld = errors.New("candidate already has a live exam")

// Locker guards the one-live-session-per-candidate rule across instances.
type Locker interface {
	Lock(ctx context.Context, candidateID string, ttl time.Duration) (unlock func(context.Context) error, err error)
}

// unlockScript deletes the key only while it still carries our token.
var unlockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// lockClient is the subset of *redis.Client the locker needs.
type lockClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisLocker implements Locker with SET NX and a token-checked delete.
type RedisLocker struct {
	redis lockClient
}

func NewRedisLocker(client lockClient) *RedisLocker {
	return &RedisLocker{redis: client}
}

func (l *RedisLocker) Lock(ctx context.Context, candidateID string, ttl time.Duration) (func(context.Context) error, error) {
	key := fmt.Sprintf("exam:lock:%s", candidateID)
	token := uuid.NewString()

	acquired, err := l.redis.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire candidate lock: %w", err)
	}
	if !acquired {
		return nil, ErrLockHeld
	}

	unlock := func(ctx context.Context) error {
		return unlockScript.Run(ctx, l.redis, []string{key}, token).Err()
	}
	return unlock, nil
}
