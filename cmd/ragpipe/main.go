// =============================================================================
// ragpipe 主入口
// =============================================================================
// 检索管线命令行程序
//
// 使用方法:
//
//	ragpipe query "What is AI?"             # 执行一次检索
//	ragpipe query --config config.yaml ...  # 指定配置文件
//	ragpipe invalidate --reason manual      # 失效全部缓存
//	ragpipe version                         # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/contextlab/ragpipe/cache"
	"github.com/contextlab/ragpipe/config"
	"github.com/contextlab/ragpipe/internal/metrics"
	"github.com/contextlab/ragpipe/pipeline"
	"github.com/contextlab/ragpipe/providers"
	"github.com/contextlab/ragpipe/types"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "query":
		runQuery(os.Args[2:])
	case "invalidate":
		runInvalidate(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🔍 query 命令
// =============================================================================

func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	webSearch := fs.Bool("web", false, "Enable web search")
	maxChunks := fs.Int("max-chunks", 0, "Fixed chunk count (disables adaptive selection)")
	tokenBudget := fs.Int("budget", 0, "Token budget override")
	timeout := fs.Duration("timeout", 30*time.Second, "Overall request timeout")
	fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "query: missing query text")
		os.Exit(1)
	}
	queryText := strings.Join(fs.Args(), " ")

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	p, layer := buildPipeline(cfg, logger)
	defer p.Close()
	if layer != nil {
		defer layer.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	opts := types.RetrieveOptions{
		EnableDocumentSearch:        true,
		EnableWebSearch:             *webSearch,
		UseAdaptiveContextSelection: *maxChunks <= 0,
		MaxChunks:                   *maxChunks,
		TokenBudget:                 *tokenBudget,
	}

	window, err := p.RetrieveContext(ctx, types.Query{Text: queryText}, opts)
	if err != nil {
		logger.Error("retrieval failed", zap.Error(err))
		os.Exit(1)
	}

	out, err := json.MarshalIndent(window, "", "  ")
	if err != nil {
		logger.Error("marshal failed", zap.Error(err))
		os.Exit(1)
	}
	fmt.Println(string(out))

	if window.Degraded {
		stats := p.RecoveryStats()
		logger.Warn("result is degraded",
			zap.String("reason", window.DegradedReason),
			zap.Int("recovery_attempts", stats.TotalAttempts),
		)
	}
}

// =============================================================================
// 🗑️ invalidate 命令
// =============================================================================

func runInvalidate(args []string) {
	fs := flag.NewFlagSet("invalidate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	reason := fs.String("reason", "manual", "Invalidation reason: document_updated, document_deleted, index_rebuilt, manual")
	documentID := fs.String("document", "", "Affected document ID")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	layer := buildCacheLayer(cfg, logger)
	if layer == nil {
		fmt.Fprintln(os.Stderr, "invalidate: cache is disabled in config")
		os.Exit(1)
	}
	defer layer.Close()

	layer.Invalidate(context.Background(), cache.InvalidationReason(*reason), *documentID)
	fmt.Printf("cache invalidated, version is now %d\n", layer.Version())
}

// =============================================================================
// 🔧 装配
// =============================================================================

func loadConfig(path string) *config.Config {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// buildPipeline 按配置装配提供者。所有外部端点都可缺省，
// 缺省时对应能力关闭或回退到进程内实现。
func buildPipeline(cfg *config.Config, logger *zap.Logger) (*pipeline.Pipeline, *cache.Layer) {
	deps := pipeline.Deps{
		// 进程内 BM25 索引兜底，保证向量端点不可达时仍能检索
		Lexical: providers.NewMemoryLexicalIndex(logger),
	}

	pc := cfg.Providers
	if pc.Embedding.APIKey != "" {
		deps.Embedding = providers.NewOpenAIEmbedding(providers.OpenAIConfig{
			APIKey:  pc.Embedding.APIKey,
			BaseURL: pc.Embedding.BaseURL,
			Model:   pc.Embedding.Model,
			Timeout: pc.Embedding.Timeout,
		})
	}
	if pc.Vector.BaseURL != "" {
		deps.Vector = providers.NewQdrantStore(providers.QdrantConfig{
			BaseURL: pc.Vector.BaseURL,
			APIKey:  pc.Vector.APIKey,
			Timeout: pc.Vector.Timeout,
		}, logger)
	}
	if pc.Rerank.APIKey != "" {
		deps.Rerank = providers.NewCohereRerank(providers.CohereConfig{
			APIKey:  pc.Rerank.APIKey,
			BaseURL: pc.Rerank.BaseURL,
			Model:   pc.Rerank.Model,
			Timeout: pc.Rerank.Timeout,
		})
	}
	if pc.WebSearch.APIKey != "" {
		deps.WebSearch = providers.NewHTTPWebSearch(providers.WebSearchConfig{
			APIKey:  pc.WebSearch.APIKey,
			BaseURL: pc.WebSearch.BaseURL,
			Timeout: pc.WebSearch.Timeout,
		})
	}
	if pc.LLM.APIKey != "" {
		deps.LLM = providers.NewOpenAICompletion(providers.OpenAIConfig{
			APIKey:  pc.LLM.APIKey,
			BaseURL: pc.LLM.BaseURL,
			Model:   pc.LLM.Model,
			Timeout: pc.LLM.Timeout,
		})
	}

	layer := buildCacheLayer(cfg, logger)
	deps.Cache = layer

	if cfg.Metrics.Enabled {
		deps.Metrics = metrics.NewCollector(cfg.Metrics.Namespace, prometheus.DefaultRegisterer, logger)
	}

	p, err := pipeline.New(cfg, deps, logger)
	if err != nil {
		logger.Fatal("failed to build pipeline", zap.Error(err))
	}
	return p, layer
}

// buildCacheLayer 按配置选择缓存后端。Redis 不可达时回退到进程内缓存。
func buildCacheLayer(cfg *config.Config, logger *zap.Logger) *cache.Layer {
	if !cfg.Cache.Enabled {
		return nil
	}

	var store cache.Store
	if cfg.Cache.Backend == "redis" {
		redisStore, err := cache.NewRedisStore(cache.RedisOptions{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DefaultTTL:   cfg.Cache.DefaultTTL,
		}, logger)
		if err != nil {
			logger.Warn("redis unavailable, falling back to in-process cache", zap.Error(err))
		} else {
			store = redisStore
		}
	}
	if store == nil {
		store = cache.NewMemoryStore(cfg.Cache.DefaultTTL)
	}

	return cache.NewLayer(store, cfg.Cache.KeyPrefix, cfg.Cache.DefaultTTL, cfg.Cache.InvalidationHistory, logger)
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("ragpipe %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`ragpipe - retrieval pipeline CLI

Usage:
  ragpipe <command> [options]

Commands:
  query       Run a retrieval and print the assembled context window
  invalidate  Bump the cache version to invalidate cached results
  version     Show version information
  help        Show this help message

Options for 'query':
  --config <path>     Path to configuration file (YAML)
  --web               Enable web search blending
  --max-chunks <n>    Fixed chunk count (disables adaptive selection)
  --budget <n>        Token budget override
  --timeout <d>       Overall request timeout (default 30s)

Options for 'invalidate':
  --config <path>     Path to configuration file (YAML)
  --reason <r>        document_updated, document_deleted, index_rebuilt, manual
  --document <id>     Affected document ID

Examples:
  ragpipe query "What is AI?"
  ragpipe query --config /etc/ragpipe/config.yaml --web "latest llm benchmarks"
  ragpipe invalidate --reason document_updated --document doc-42
  ragpipe version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)

	opts := []zap.Option{}
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	return zap.New(core, opts...)
}
