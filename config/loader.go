// =============================================================================
// 📦 ragpipe 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("RAGPIPE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是 ragpipe 的完整配置结构
type Config struct {
	// Pipeline 检索管线配置
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`

	// Providers 外部提供者配置
	Providers ProvidersConfig `yaml:"providers" env:"PROVIDERS"`

	// Redis 缓存存储配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Cache 缓存层配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Recovery 错误恢复配置
	Recovery RecoveryConfig `yaml:"recovery" env:"RECOVERY"`

	// Pool 工作池配置
	Pool PoolConfig `yaml:"pool" env:"POOL"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Metrics 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// PipelineConfig 检索管线配置
type PipelineConfig struct {
	// 自适应 chunk 数量边界
	DefaultChunks int `yaml:"default_chunks" env:"DEFAULT_CHUNKS"`
	MinChunks     int `yaml:"min_chunks" env:"MIN_CHUNKS"`
	MaxChunks     int `yaml:"max_chunks" env:"MAX_CHUNKS"`

	// Token 预算与截断策略
	TokenBudget      int     `yaml:"token_budget" env:"TOKEN_BUDGET"`
	MinTruncateRatio float64 `yaml:"min_truncate_ratio" env:"MIN_TRUNCATE_RATIO"`
	TokenizerModel   string  `yaml:"tokenizer_model" env:"TOKENIZER_MODEL"`

	// 混合检索融合权重（线性加权，min-max 归一化后相加）
	VectorWeight  float64 `yaml:"vector_weight" env:"VECTOR_WEIGHT"`
	LexicalWeight float64 `yaml:"lexical_weight" env:"LEXICAL_WEIGHT"`

	// 重排
	RerankTopK     int    `yaml:"rerank_top_k" env:"RERANK_TOP_K"`
	RerankStrategy string `yaml:"rerank_strategy" env:"RERANK_STRATEGY"` // provider, rrf
	RerankBatch    int    `yaml:"rerank_batch" env:"RERANK_BATCH"`

	// 多样性与去重
	DiversityLambda float64 `yaml:"diversity_lambda" env:"DIVERSITY_LAMBDA"`
	DedupThreshold  float64 `yaml:"dedup_threshold" env:"DEDUP_THRESHOLD"`

	// 查询扩展
	ExpansionEnabled    bool          `yaml:"expansion_enabled" env:"EXPANSION_ENABLED"`
	MaxExpansions       int           `yaml:"max_expansions" env:"MAX_EXPANSIONS"`
	ExpansionConfidence float64       `yaml:"expansion_confidence" env:"EXPANSION_CONFIDENCE"`
	ExpansionCacheTTL   time.Duration `yaml:"expansion_cache_ttl" env:"EXPANSION_CACHE_TTL"`

	// 每次外部调用的超时
	SearchTimeout time.Duration `yaml:"search_timeout" env:"SEARCH_TIMEOUT"`

	// 网络搜索
	MaxWebResults int `yaml:"max_web_results" env:"MAX_WEB_RESULTS"`
}

// ProvidersConfig 外部提供者配置
type ProvidersConfig struct {
	Embedding EndpointConfig `yaml:"embedding" env:"EMBEDDING"`
	Vector    EndpointConfig `yaml:"vector" env:"VECTOR"`
	Rerank    EndpointConfig `yaml:"rerank" env:"RERANK"`
	WebSearch EndpointConfig `yaml:"web_search" env:"WEB_SEARCH"`
	LLM       EndpointConfig `yaml:"llm" env:"LLM"`
}

// EndpointConfig 单个 HTTP 提供者的连接配置
type EndpointConfig struct {
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型名（可选）
	Model string `yaml:"model" env:"MODEL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// CacheConfig 缓存层配置
type CacheConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 存储后端: redis, memory
	Backend string `yaml:"backend" env:"BACKEND"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 默认过期时间
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
	// 失效历史长度
	InvalidationHistory int `yaml:"invalidation_history" env:"INVALIDATION_HISTORY"`
}

// RecoveryConfig 错误恢复配置
type RecoveryConfig struct {
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 初始退避延迟
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	// 最大退避延迟
	MaxDelay time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	// 限流等待延迟（WAIT 策略）
	RateLimitDelay time.Duration `yaml:"rate_limit_delay" env:"RATE_LIMIT_DELAY"`
	// 单次请求允许的总重试时间
	MaxElapsed time.Duration `yaml:"max_elapsed" env:"MAX_ELAPSED"`
	// 熔断阈值（连续失败次数）
	BreakerThreshold int `yaml:"breaker_threshold" env:"BREAKER_THRESHOLD"`
	// 熔断恢复等待时间
	BreakerResetTimeout time.Duration `yaml:"breaker_reset_timeout" env:"BREAKER_RESET_TIMEOUT"`
	// 恢复历史环形缓冲区容量
	HistorySize int `yaml:"history_size" env:"HISTORY_SIZE"`
}

// PoolConfig 工作池配置
type PoolConfig struct {
	// 工作协程数
	Workers int `yaml:"workers" env:"WORKERS"`
	// 队列长度
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
	// 每秒最大任务数
	RatePerSecond float64 `yaml:"rate_per_second" env:"RATE_PER_SECOND"`
	// 突发容量
	RateBurst int `yaml:"rate_burst" env:"RATE_BURST"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Prometheus namespace
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "RAGPIPE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Pipeline.MinChunks <= 0 {
		errs = append(errs, "pipeline.min_chunks must be positive")
	}
	if c.Pipeline.MaxChunks < c.Pipeline.MinChunks {
		errs = append(errs, "pipeline.max_chunks must be >= min_chunks")
	}
	if c.Pipeline.TokenBudget <= 0 {
		errs = append(errs, "pipeline.token_budget must be positive")
	}
	if c.Pipeline.DiversityLambda < 0 || c.Pipeline.DiversityLambda > 1 {
		errs = append(errs, "pipeline.diversity_lambda must be in [0,1]")
	}
	if c.Pipeline.DedupThreshold <= 0 || c.Pipeline.DedupThreshold > 1 {
		errs = append(errs, "pipeline.dedup_threshold must be in (0,1]")
	}
	if c.Pipeline.MinTruncateRatio < 0 || c.Pipeline.MinTruncateRatio > 1 {
		errs = append(errs, "pipeline.min_truncate_ratio must be in [0,1]")
	}
	if w := c.Pipeline.VectorWeight + c.Pipeline.LexicalWeight; w <= 0 {
		errs = append(errs, "fusion weights must sum to a positive value")
	}
	if c.Cache.Enabled && c.Cache.Backend != "redis" && c.Cache.Backend != "memory" {
		errs = append(errs, "cache.backend must be redis or memory")
	}
	if c.Recovery.MaxRetries < 0 {
		errs = append(errs, "recovery.max_retries must be >= 0")
	}
	if c.Pool.Workers <= 0 {
		errs = append(errs, "pool.workers must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
