package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 Redis 缓存后端
// =============================================================================

// RedisStore 基于 Redis 的缓存后端
type RedisStore struct {
	client     *redis.Client
	defaultTTL time.Duration
	logger     *zap.Logger
	mu         sync.RWMutex
	closed     bool
}

// RedisOptions Redis 连接配置
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DefaultTTL   time.Duration
}

// NewRedisStore 创建 Redis 缓存后端并测试连接
func NewRedisStore(opts RedisOptions, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := opts.DefaultTTL
	if ttl == 0 {
		ttl = 10 * time.Minute
	}

	s := &RedisStore{
		client:     client,
		defaultTTL: ttl,
		logger:     logger.With(zap.String("component", "cache_redis")),
	}

	s.logger.Info("redis cache store initialized",
		zap.String("addr", opts.Addr),
		zap.Duration("default_ttl", ttl),
	)

	return s, nil
}

// NewRedisStoreFromClient 复用已有 Redis 客户端，用于测试
func NewRedisStoreFromClient(client *redis.Client, defaultTTL time.Duration, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultTTL == 0 {
		defaultTTL = 10 * time.Minute
	}
	return &RedisStore{
		client:     client,
		defaultTTL: defaultTTL,
		logger:     logger.With(zap.String("component", "cache_redis")),
	}
}

// Get 获取缓存值
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", fmt.Errorf("cache store is closed")
	}

	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrCacheMiss
	}
	if err != nil {
		s.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("cache get failed: %w", err)
	}

	return val, nil
}

// Set 设置缓存值
func (s *RedisStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("cache store is closed")
	}

	if ttl == 0 {
		ttl = s.defaultTTL
	}

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		s.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set failed: %w", err)
	}

	return nil
}

// Delete 删除缓存值
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("cache store is closed")
	}

	if len(keys) == 0 {
		return nil
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.logger.Error("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
		return fmt.Errorf("cache delete failed: %w", err)
	}

	return nil
}

// DeleteByPattern 用 SCAN 遍历匹配键并批量删除，避免 KEYS 阻塞
func (s *RedisStore) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("cache store is closed")
	}

	var deleted int64
	var cursor uint64

	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("cache scan failed: %w", err)
		}

		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("cache delete failed: %w", err)
			}
			deleted += n
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return deleted, nil
}

// Ping 检查 Redis 连接
func (s *RedisStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("cache store is closed")
	}

	return s.client.Ping(ctx).Err()
}

// Close 关闭缓存后端
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.logger.Info("closing redis cache store")

	return s.client.Close()
}
