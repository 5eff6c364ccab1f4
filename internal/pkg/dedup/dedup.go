// Package dedup 基于 Redis SETNX 实现带过期时间的一次性认领。
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "trackmyteam:dedup:"

// Deduplicator 在 TTL 内对同一个 key 只允许一次认领。
type Deduplicator struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewDeduplicator 创建去重器，prefix 为空时使用默认前缀。
func NewDeduplicator(rdb *redis.Client, prefix string, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Deduplicator{
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Claim 尝试认领 key。第一次认领返回 true，TTL 内重复认领返回 false。
// 未配置 Redis 时总是返回 true。
func (d *Deduplicator) Claim(ctx context.Context, key string) (bool, error) {
	if d == nil || d.rdb == nil || key == "" {
		return true, nil
	}
	ok, err := d.rdb.SetNX(ctx, d.prefix+key, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return ok, nil
}
