package application

import (
	"context"

	redisinfra "github.com/sanosuguru/go-court-reservation/internal/infrastructure/redis"
)

// RedisLockManager は Redis 実装を LockManager インターフェースに適合させる
type RedisLockManager struct {
	inner *redisinfra.LockManager
}

func NewRedisLockManager(inner *redisinfra.LockManager) *RedisLockManager {
	return &RedisLockManager{inner: inner}
}

func (m *RedisLockManager) AcquireResourceLock(ctx context.Context, courtID string) (Lock, error) {
	lock, err := m.inner.AcquireResourceLock(ctx, courtID)
	if err != nil {
		// nil の具象ポインタを非 nil インターフェースとして返さないよう明示する
		return nil, err
	}
	return lock, nil
}

var _ LockManager = (*RedisLockManager)(nil)
