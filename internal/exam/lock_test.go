package exam

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redisError marks an error as a server reply so go-redis treats NOSCRIPT
// like the real server does.
type redisError string

func (e redisError) Error() string { return string(e) }
func (redisError) RedisError()     {}

// fakeLockRedis implements SET NX plus the unlock script. The script is
// unknown until the first EVAL, so Run exercises its EVALSHA fallback.
type fakeLockRedis struct {
	redis.Scripter

	mu       sync.Mutex
	err      error
	loaded   bool
	values   map[string]string
	ttls     map[string]time.Duration
	evalShas int
}

func newFakeLockRedis() *fakeLockRedis {
	return &fakeLockRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeLockRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewBoolCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	if _, ok := f.values[key]; ok {
		cmd.SetVal(false)
		return cmd
	}
	f.values[key] = value.(string)
	f.ttls[key] = expiration
	cmd.SetVal(true)
	return cmd
}

func (f *fakeLockRedis) EvalSha(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evalShas++
	if !f.loaded {
		cmd := redis.NewCmd(ctx)
		cmd.SetErr(redisError("NOSCRIPT No matching script. Please use EVAL."))
		return cmd
	}
	return f.compareAndDelete(ctx, keys, args)
}

func (f *fakeLockRedis) Eval(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = true
	return f.compareAndDelete(ctx, keys, args)
}

func (f *fakeLockRedis) compareAndDelete(ctx context.Context, keys []string, args []interface{}) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	if f.values[keys[0]] == args[0].(string) {
		delete(f.values, keys[0])
		cmd.SetVal(int64(1))
		return cmd
	}
	cmd.SetVal(int64(0))
	return cmd
}

func (f *fakeLockRedis) holder(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *fakeLockRedis) expire(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
}

func TestRedisLockerHoldsOneSessionPerCandidate(t *testing.T) {
	rdb := newFakeLockRedis()
	locker := NewRedisLocker(rdb)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "cand-1", time.Hour)
	require.NoError(t, err)
	token, ok := rdb.holder("exam:lock:cand-1")
	require.True(t, ok)
	assert.NotEmpty(t, token)
	assert.Equal(t, time.Hour, rdb.ttls["exam:lock:cand-1"])

	_, err = locker.Lock(ctx, "cand-1", time.Hour)
	assert.ErrorIs(t, err, ErrLockHeld)

	// Other candidates are independent.
	_, err = locker.Lock(ctx, "cand-2", time.Hour)
	require.NoError(t, err)

	require.NoError(t, unlock(ctx))
	_, ok = rdb.holder("exam:lock:cand-1")
	assert.False(t, ok)

	_, err = locker.Lock(ctx, "cand-1", time.Hour)
	assert.NoError(t, err)
}

func TestRedisLockerUnlockChecksToken(t *testing.T) {
	rdb := newFakeLockRedis()
	locker := NewRedisLocker(rdb)
	ctx := context.Background()

	staleUnlock, err := locker.Lock(ctx, "cand-1", time.Minute)
	require.NoError(t, err)

	// The first lock expires and another instance takes the candidate.
	rdb.expire("exam:lock:cand-1")
	_, err = locker.Lock(ctx, "cand-1", time.Minute)
	require.NoError(t, err)
	current, _ := rdb.holder("exam:lock:cand-1")

	require.NoError(t, staleUnlock(ctx))
	got, ok := rdb.holder("exam:lock:cand-1")
	require.True(t, ok)
	assert.Equal(t, current, got)
	assert.Equal(t, 1, rdb.evalShas)

	_, err = locker.Lock(ctx, "cand-1", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)
}

func TestRedisLockerWrapsRedisErrors(t *testing.T) {
	rdb := newFakeLockRedis()
	rdb.err = errors.New("connection refused")
	locker := NewRedisLocker(rdb)

	_, err := locker.Lock(context.Background(), "cand-1", time.Minute)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockHeld)
	assert.Contains(t, err.Error(), "acquire candidate lock")
}
