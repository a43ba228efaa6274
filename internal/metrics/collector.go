// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 检索管线指标收集器
type Collector struct {
	// 检索指标
	retrievalsTotal   *prometheus.CounterVec
	retrievalDuration *prometheus.HistogramVec
	chunksReturned    prometheus.Histogram
	contextTokens     prometheus.Histogram

	// 外部调用指标
	providerCallsTotal   *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 恢复指标
	recoveryAttemptsTotal *prometheus.CounterVec
	breakerState          *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器。
// registerer 为 nil 时使用全局默认注册表。
func NewCollector(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *Collector {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(registerer)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 检索指标
	c.retrievalsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Total number of retrieval requests",
		},
		[]string{"status"}, // status: ok, degraded, cached, failed
	)

	c.retrievalDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Retrieval stage duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"stage"}, // stage: analyze, expand, retrieve, rerank, assemble
	)

	c.chunksReturned = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunks_returned",
			Help:      "Number of chunks in assembled context",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		},
	)

	c.contextTokens = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_tokens",
			Help:      "Token count of assembled context",
			Buckets:   prometheus.ExponentialBuckets(128, 2, 8),
		},
	)

	// 外部调用指标
	c.providerCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Total number of external provider calls",
		},
		[]string{"provider", "status"},
	)

	c.providerCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "External provider call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	// 缓存指标
	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 恢复指标
	c.recoveryAttemptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_attempts_total",
			Help:      "Total number of error recovery attempts",
		},
		[]string{"service", "strategy", "success"},
	)

	c.breakerState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"service"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 检索指标记录
// =============================================================================

// RecordRetrieval 记录一次检索请求
func (c *Collector) RecordRetrieval(status string, chunks int, tokens int) {
	c.retrievalsTotal.WithLabelValues(status).Inc()
	c.chunksReturned.Observe(float64(chunks))
	c.contextTokens.Observe(float64(tokens))
}

// RecordStage 记录管线阶段耗时
func (c *Collector) RecordStage(stage string, duration time.Duration) {
	c.retrievalDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordProviderCall 记录外部服务调用
func (c *Collector) RecordProviderCall(provider, status string, duration time.Duration) {
	c.providerCallsTotal.WithLabelValues(provider, status).Inc()
	c.providerCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🛟 恢复指标记录
// =============================================================================

// RecordRecoveryAttempt 记录一次恢复尝试
func (c *Collector) RecordRecoveryAttempt(service, strategy string, success bool) {
	c.recoveryAttemptsTotal.WithLabelValues(service, strategy, boolLabel(success)).Inc()
}

// SetBreakerState 更新熔断器状态
func (c *Collector) SetBreakerState(service string, state int) {
	c.breakerState.WithLabelValues(service).Set(float64(state))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
