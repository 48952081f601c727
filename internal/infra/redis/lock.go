package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLockHeld is returned when another instance owns the lock.
var ErrLockHeld = errors.New("lock held by another instance")

type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

var _ Locker = (*RedisLocker)(nil)

type RedisLocker struct {
	client  RedisClient
	retries int
	wait    time.Duration
}

func NewLocker(c RedisClient) *RedisLocker {
	return &RedisLocker{client: c, retries: 5, wait: 50 * time.Millisecond}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	var lastErr error
	for i := 0; i < l.retries; i++ {
		ok, err := l.client.SetNX(ctx, key, token, ttl)
		if err != nil {
			lastErr = err
		} else if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.wait):
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", ErrLockHeld
}

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := l.client.DelIfEquals(ctx, key, token)
	return err
}

// StaleRecoveryKey guards the startup sweep of interrupted jobs so only one
// instance runs it.
const StaleRecoveryKey = "lock:jobs:recover-stale"
