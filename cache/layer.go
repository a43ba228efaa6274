package cache

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/contextlab/ragpipe/types"
)

// =============================================================================
// 📦 读穿缓存层
// =============================================================================

// InvalidationReason 缓存失效原因
type InvalidationReason string

const (
	ReasonDocumentUpdated InvalidationReason = "document_updated"
	ReasonDocumentDeleted InvalidationReason = "document_deleted"
	ReasonIndexRebuilt    InvalidationReason = "index_rebuilt"
	ReasonManual          InvalidationReason = "manual"
)

// InvalidationTrigger 一次缓存失效事件
type InvalidationTrigger struct {
	Reason       InvalidationReason `json:"reason"`
	DocumentID   string             `json:"document_id,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
	VersionAfter int64              `json:"version_after"`
}

// LayerStats 缓存层统计
type LayerStats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Version int64   `json:"version"`
}

// Layer 包装后端存储，提供版本化读穿缓存。
// 所有后端故障都降级为未命中或静默丢弃，不阻断检索主流程。
type Layer struct {
	store     Store
	versioner *Versioner
	prefix    string
	ttl       time.Duration
	logger    *zap.Logger

	hits   atomic.Uint64
	misses atomic.Uint64

	histMu      sync.Mutex
	history     []InvalidationTrigger
	historySize int
}

// NewLayer 创建缓存层
func NewLayer(store Store, prefix string, ttl time.Duration, historySize int, logger *zap.Logger) *Layer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "ragpipe:ctx"
	}
	if historySize <= 0 {
		historySize = 256
	}
	return &Layer{
		store:       store,
		versioner:   NewVersioner(),
		prefix:      prefix,
		ttl:         ttl,
		logger:      logger.With(zap.String("component", "cache_layer")),
		historySize: historySize,
	}
}

// Get 查询缓存的上下文窗口。后端故障按未命中处理。
func (l *Layer) Get(ctx context.Context, query string, filters types.QueryFilters) (*types.ContextWindow, bool) {
	key := BuildKey(l.prefix, query, filters, l.versioner.Current())

	raw, err := l.store.Get(ctx, key)
	if err != nil {
		if !IsCacheMiss(err) {
			l.logger.Warn("cache read failed, treating as miss", zap.Error(err))
		}
		l.misses.Add(1)
		return nil, false
	}

	var window types.ContextWindow
	if err := json.Unmarshal([]byte(raw), &window); err != nil {
		l.logger.Warn("cache entry corrupted, treating as miss",
			zap.String("key", key), zap.Error(err))
		l.misses.Add(1)
		// 损坏条目直接清掉
		_ = l.store.Delete(ctx, key)
		return nil, false
	}

	l.hits.Add(1)
	window.CacheHit = true
	return &window, true
}

// Put 缓存上下文窗口。写入失败只记录日志。
func (l *Layer) Put(ctx context.Context, query string, filters types.QueryFilters, window *types.ContextWindow) {
	if window == nil {
		return
	}

	data, err := json.Marshal(window)
	if err != nil {
		l.logger.Warn("cache marshal failed", zap.Error(err))
		return
	}

	key := BuildKey(l.prefix, query, filters, l.versioner.Current())
	if err := l.store.Set(ctx, key, string(data), l.ttl); err != nil {
		l.logger.Warn("cache write failed", zap.Error(err))
	}
}

// Invalidate 处理失效事件：递增全局版本号并记录历史。
// 旧条目不再被任何键命中，由 TTL 自然回收。
func (l *Layer) Invalidate(_ context.Context, reason InvalidationReason, documentID string) InvalidationTrigger {
	version := l.versioner.Bump()

	trigger := InvalidationTrigger{
		Reason:       reason,
		DocumentID:   documentID,
		Timestamp:    time.Now(),
		VersionAfter: version,
	}

	l.histMu.Lock()
	l.history = append(l.history, trigger)
	if len(l.history) > l.historySize {
		l.history = l.history[len(l.history)-l.historySize:]
	}
	l.histMu.Unlock()

	l.logger.Info("cache invalidated",
		zap.String("reason", string(reason)),
		zap.String("document_id", documentID),
		zap.Int64("version", version),
	)

	return trigger
}

// PurgeAll 立即删除本前缀下的全部条目
func (l *Layer) PurgeAll(ctx context.Context) (int64, error) {
	return l.store.DeleteByPattern(ctx, l.prefix+":*")
}

// Stats 返回命中统计与当前版本
func (l *Layer) Stats() LayerStats {
	hits := l.hits.Load()
	misses := l.misses.Load()

	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}

	return LayerStats{
		Hits:    hits,
		Misses:  misses,
		HitRate: rate,
		Version: l.versioner.Current(),
	}
}

// History 返回失效事件历史的副本，最新的在末尾
func (l *Layer) History() []InvalidationTrigger {
	l.histMu.Lock()
	defer l.histMu.Unlock()

	out := make([]InvalidationTrigger, len(l.history))
	copy(out, l.history)
	return out
}

// Version 返回当前缓存版本号
func (l *Layer) Version() int64 {
	return l.versioner.Current()
}

// Close 关闭底层存储
func (l *Layer) Close() error {
	return l.store.Close()
}
