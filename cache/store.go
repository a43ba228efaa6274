package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss 缓存未命中错误
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Store 是缓存后端的统一抽象。
type Store interface {
	// Get 获取缓存值，未命中返回 ErrCacheMiss
	Get(ctx context.Context, key string) (string, error)

	// Set 设置缓存值，ttl 为 0 时使用后端默认过期时间
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Delete 删除指定键
	Delete(ctx context.Context, keys ...string) error

	// DeleteByPattern 删除匹配 glob 模式的所有键
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)

	// Ping 检查后端连通性
	Ping(ctx context.Context) error

	// Close 关闭后端连接
	Close() error
}
