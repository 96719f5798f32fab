package redis

import (
	"context"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// Only the owner token may release
	releaseLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	extendLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// DistributedLock is a single-owner lease on a Redis key. Worker jobs take it
// so that only one instance runs a given job at a time.
type DistributedLock struct {
	client   redis.Cmdable
	key      string
	value    string
	ttl      time.Duration
	acquired bool
}

func NewDistributedLock(client redis.Cmdable, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    fmt.Sprintf("lock:%s", key),
		value:  uuid.New().String(),
		ttl:    ttl,
	}
}

// Acquire tries once. It returns false when another owner holds the lease.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	l.acquired = ok
	return ok, nil
}

// Extend pushes the lease expiry forward while a long job is running.
func (l *DistributedLock) Extend(ctx context.Context, ttl time.Duration) error {
	if !l.acquired {
		return domainErrors.ErrLockNotHeld
	}

	n, err := extendLockScript.Run(ctx, l.client, []string{l.key}, l.value, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to extend lock %s: %w", l.key, err)
	}
	if n == 0 {
		l.acquired = false
		return domainErrors.ErrLockNotHeld
	}
	return nil
}

func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}

	n, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	l.acquired = false
	if n == 0 {
		return domainErrors.ErrLockNotHeld
	}
	return nil
}

func (l *DistributedLock) IsAcquired() bool {
	return l.acquired
}

// Locker hands out job leases.
type Locker struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewLocker(client redis.Cmdable, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

// Run executes fn only if the lease for name was acquired. It reports whether fn ran.
func (lk *Locker) Run(ctx context.Context, name string, fn func(ctx context.Context) error) (bool, error) {
	lock := NewDistributedLock(lk.client, name, lk.ttl)
	ok, err := lock.Acquire(ctx)
	if err != nil || !ok {
		return false, err
	}
	defer lock.Release(context.WithoutCancel(ctx)) //nolint:errcheck

	return true, fn(ctx)
}
