// Package lock 提供基于 Redis 的互斥锁（SET NX PX + 比较删除）。
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired 表示锁已被其他持有者占用。
var ErrNotAcquired = errors.New("lock not acquired")

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// Locker 在 Redis 中创建命名锁。
type Locker struct {
	rdb *redis.Client
}

// NewLocker 创建 Locker。
func NewLocker(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb}
}

// Lock 是一次成功获取的锁。
type Lock struct {
	rdb   *redis.Client
	key   string
	token string
}

// Acquire 尝试获取 key 上的锁，ttl 到期后锁自动失效。
//
// 锁被占用时返回 ErrNotAcquired，不等待。
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock setnx: %w", err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &Lock{rdb: l.rdb, key: key, token: token}, nil
}

// Release 仅在锁仍由自己持有时删除它。返回是否真正删除。
func (lk *Lock) Release(ctx context.Context) (bool, error) {
	res, err := releaseScript.Run(ctx, lk.rdb, []string{lk.key}, lk.token).Int64()
	if err != nil {
		return false, fmt.Errorf("lock release: %w", err)
	}
	return res == 1, nil
}

// Extend 在锁仍由自己持有时把剩余有效期重置为 ttl。返回 false 表示锁已丢失。
func (lk *Lock) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	res, err := extendScript.Run(ctx, lk.rdb, []string{lk.key}, lk.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("lock extend: %w", err)
	}
	return res == 1, nil
}
