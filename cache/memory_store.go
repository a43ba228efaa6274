package cache

import (
	"context"
	"path"
	"sync"
	"time"
)

// MemoryStore 进程内缓存后端，用于无 Redis 的部署和测试。
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	defaultTTL time.Duration
	closed     bool

	// 测试钩子，默认 time.Now
	now func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryStore 创建进程内缓存后端
func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	if defaultTTL == 0 {
		defaultTTL = 10 * time.Minute
	}
	return &MemoryStore{
		entries:    make(map[string]memoryEntry),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get 获取缓存值，惰性清理过期条目
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrCacheMiss
	}

	entry, ok := s.entries[key]
	if !ok {
		return "", ErrCacheMiss
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		return "", ErrCacheMiss
	}

	return entry.value, nil
}

// Set 设置缓存值
func (s *MemoryStore) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	if ttl == 0 {
		ttl = s.defaultTTL
	}

	s.entries[key] = memoryEntry{
		value:     value,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Delete 删除指定键
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}

// DeleteByPattern 按 glob 模式删除键
func (s *MemoryStore) DeleteByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key := range s.entries {
		matched, err := path.Match(pattern, key)
		if err != nil {
			return deleted, err
		}
		if matched {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

// Ping 进程内后端恒为可用
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// Close 清空条目
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.entries = nil
	return nil
}

// Len 返回当前条目数，测试用
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
