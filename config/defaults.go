// =============================================================================
// 📦 ragpipe 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Pipeline:  DefaultPipelineConfig(),
		Providers: DefaultProvidersConfig(),
		Redis:     DefaultRedisConfig(),
		Cache:     DefaultCacheConfig(),
		Recovery:  DefaultRecoveryConfig(),
		Pool:      DefaultPoolConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// DefaultPipelineConfig 返回默认管线配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		DefaultChunks:       6,
		MinChunks:           3,
		MaxChunks:           13,
		TokenBudget:         4000,
		MinTruncateRatio:    0.2,
		TokenizerModel:      "gpt-4o-mini",
		VectorWeight:        0.6,
		LexicalWeight:       0.4,
		RerankTopK:          50,
		RerankStrategy:      "provider",
		RerankBatch:         16,
		DiversityLambda:     0.7,
		DedupThreshold:      0.92,
		ExpansionEnabled:    true,
		MaxExpansions:       3,
		ExpansionConfidence: 0.5,
		ExpansionCacheTTL:   30 * time.Minute,
		SearchTimeout:       10 * time.Second,
		MaxWebResults:       5,
	}
}

// DefaultProvidersConfig 返回默认提供者配置
func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		Embedding: EndpointConfig{
			BaseURL: "https://api.openai.com",
			Model:   "text-embedding-3-small",
			Timeout: 30 * time.Second,
		},
		Vector: EndpointConfig{
			BaseURL: "http://localhost:6333",
			Timeout: 30 * time.Second,
		},
		Rerank: EndpointConfig{
			BaseURL: "https://api.cohere.ai",
			Model:   "rerank-v3.5",
			Timeout: 30 * time.Second,
		},
		WebSearch: EndpointConfig{
			Timeout: 15 * time.Second,
		},
		LLM: EndpointConfig{
			BaseURL: "https://api.openai.com",
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultCacheConfig 返回默认缓存层配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:             true,
		Backend:             "memory",
		KeyPrefix:           "ragpipe:ctx",
		DefaultTTL:          10 * time.Minute,
		InvalidationHistory: 256,
	}
}

// DefaultRecoveryConfig 返回默认错误恢复配置
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		MaxRetries:          3,
		InitialDelay:        500 * time.Millisecond,
		MaxDelay:            10 * time.Second,
		RateLimitDelay:      5 * time.Second,
		MaxElapsed:          30 * time.Second,
		BreakerThreshold:    5,
		BreakerResetTimeout: 60 * time.Second,
		HistorySize:         10000,
	}
}

// DefaultPoolConfig 返回默认工作池配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:       5,
		QueueSize:     100,
		RatePerSecond: 10,
		RateBurst:     20,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		EnableCaller: false,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "ragpipe",
	}
}
