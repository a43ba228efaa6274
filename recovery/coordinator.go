package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/contextlab/ragpipe/types"
)

// Config 恢复协调器配置
type Config struct {
	// 最大重试次数
	MaxRetries int
	// 退避策略
	Backoff BackoffPolicy
	// 限流冷却时间
	RateLimitDelay time.Duration
	// 单次操作的总时间上限（含全部重试）
	MaxElapsed time.Duration
	// 熔断器配置
	Breaker BreakerConfig
	// 历史容量
	HistorySize int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		Backoff:        DefaultBackoffPolicy(),
		RateLimitDelay: 5 * time.Second,
		MaxElapsed:     30 * time.Second,
		Breaker: BreakerConfig{
			Threshold:        5,
			ResetTimeout:     60 * time.Second,
			HalfOpenMaxCalls: 3,
		},
		HistorySize: 10000,
	}
}

// Outcome 一次恢复执行的结果
type Outcome struct {
	// 最终是否成功（含备用路径成功）
	Success bool
	// 是否走了备用路径
	UsedFallback bool
	// 是否以降级结果返回
	Degraded bool
	// 最后应用的策略
	FinalStrategy Strategy
	// 实际执行的尝试次数
	Attempts int
}

// Recorder 接收恢复侧指标的最小接口，由 internal/metrics.Collector 实现。
// 为 nil 时不上报。
type Recorder interface {
	RecordProviderCall(provider, status string, duration time.Duration)
	RecordRecoveryAttempt(service, strategy string, success bool)
	SetBreakerState(service string, state int)
}

// Coordinator 统一的错误恢复协调器。
// 每个外部服务维护独立熔断器，所有恢复尝试进入共享历史。
type Coordinator struct {
	config   Config
	logger   *zap.Logger
	recorder Recorder

	history *History

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewCoordinator 创建恢复协调器
func NewCoordinator(config Config, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RateLimitDelay <= 0 {
		config.RateLimitDelay = 5 * time.Second
	}
	if config.MaxElapsed <= 0 {
		config.MaxElapsed = 30 * time.Second
	}

	return &Coordinator{
		config:   config,
		logger:   logger.With(zap.String("component", "recovery")),
		history:  NewHistory(config.HistorySize),
		breakers: make(map[string]*Breaker),
	}
}

// SetRecorder 绑定指标上报端点
func (c *Coordinator) SetRecorder(r Recorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorder = r
}

// breakerFor 获取或创建服务对应的熔断器
func (c *Coordinator) breakerFor(service string) *Breaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.breakers[service]
	if !ok {
		b = NewBreaker(c.config.Breaker, c.logger.With(zap.String("service", service)))
		c.breakers[service] = b
	}
	return b
}

// Execute 执行操作并按策略恢复。
// fallback 可为 nil；返回的 error 为 nil 时 Outcome.Success 为真。
func (c *Coordinator) Execute(ctx context.Context, service string, op func(ctx context.Context) error, fallback func(ctx context.Context) error) (Outcome, error) {
	outcome := Outcome{}
	breaker := c.breakerFor(service)
	hasFallback := fallback != nil
	start := time.Now()

	var lastErr error
	waitUsed := false

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return c.finish(outcome, StrategySkip, fmt.Errorf("recovery aborted: %w", err))
		}

		if err := breaker.Allow(); err != nil {
			// 熔断短路，不执行真实调用
			c.record(service, string(CategoryServerError), string(StrategyCircuitBreak), false, 0)
			outcome.FinalStrategy = StrategyCircuitBreak
			if hasFallback {
				return c.runFallback(ctx, service, outcome, fallback)
			}
			return outcome, err
		}

		attemptStart := time.Now()
		lastErr = op(ctx)
		elapsed := time.Since(attemptStart)
		outcome.Attempts++

		category := Categorize(lastErr)
		breaker.Record(lastErr == nil, isClientError(category))

		if r := c.metricsRecorder(); r != nil {
			status := "ok"
			if lastErr != nil {
				status = "error"
			}
			r.RecordProviderCall(service, status, elapsed)
			r.SetBreakerState(service, int(breaker.State()))
		}

		if lastErr == nil {
			if attempt > 0 {
				c.record(service, string(category), string(StrategyRetry), true, elapsed)
				c.logger.Info("recovered after retry",
					zap.String("service", service),
					zap.Int("attempts", outcome.Attempts))
			}
			outcome.Success = true
			return outcome, nil
		}

		// 限流类错误的 WAIT 只触发一次，之后按重试耗尽处理
		retriesExhausted := attempt >= c.config.MaxRetries ||
			time.Since(start) >= c.config.MaxElapsed ||
			(category == CategoryRateLimit && waitUsed)

		strategy := SelectStrategy(category, breaker.State() == BreakerOpen, retriesExhausted, hasFallback)
		c.record(service, string(category), string(strategy), false, elapsed)

		c.logger.Debug("recovery step",
			zap.String("service", service),
			zap.String("category", string(category)),
			zap.String("strategy", string(strategy)),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)

		switch strategy {
		case StrategyRetry:
			delay := c.config.Backoff.Delay(attempt + 1)
			if err := sleep(ctx, delay); err != nil {
				return c.settleOnExpiry(ctx, service, outcome, category, hasFallback, fallback, lastErr)
			}

		case StrategyWait:
			waitUsed = true
			if err := sleep(ctx, c.config.RateLimitDelay); err != nil {
				return c.settleOnExpiry(ctx, service, outcome, category, hasFallback, fallback, lastErr)
			}

		case StrategyFallback:
			outcome.FinalStrategy = StrategyFallback
			return c.runFallback(ctx, service, outcome, fallback)

		case StrategyDegrade:
			outcome.FinalStrategy = StrategyDegrade
			outcome.Degraded = true
			return outcome, lastErr

		case StrategySkip:
			outcome.FinalStrategy = StrategySkip
			return outcome, lastErr

		case StrategyCircuitBreak:
			outcome.FinalStrategy = StrategyCircuitBreak
			if hasFallback {
				return c.runFallback(ctx, service, outcome, fallback)
			}
			return outcome, lastErr
		}
	}
}

// settleOnExpiry 上下文在退避等待期间到期时不再重试，按重试耗尽选取终态策略并记录
func (c *Coordinator) settleOnExpiry(ctx context.Context, service string, outcome Outcome, category Category, hasFallback bool, fallback func(ctx context.Context) error, lastErr error) (Outcome, error) {
	strategy := SelectStrategy(category, false, true, hasFallback)
	c.record(service, string(category), string(strategy), false, 0)

	switch strategy {
	case StrategyFallback:
		return c.runFallback(ctx, service, outcome, fallback)
	case StrategyDegrade:
		outcome.FinalStrategy = StrategyDegrade
		outcome.Degraded = true
	default:
		outcome.FinalStrategy = strategy
	}
	return outcome, lastErr
}

// runFallback 执行备用路径
func (c *Coordinator) runFallback(ctx context.Context, service string, outcome Outcome, fallback func(ctx context.Context) error) (Outcome, error) {
	outcome.UsedFallback = true
	outcome.FinalStrategy = StrategyFallback

	start := time.Now()
	err := fallback(ctx)
	elapsed := time.Since(start)

	c.record(service+":fallback", string(CategoryUnknown), string(StrategyFallback), err == nil, elapsed)

	if err != nil {
		c.logger.Warn("fallback failed",
			zap.String("service", service),
			zap.Error(err))
		return outcome, err
	}

	outcome.Success = true
	return outcome, nil
}

func (c *Coordinator) finish(outcome Outcome, strategy Strategy, err error) (Outcome, error) {
	outcome.FinalStrategy = strategy
	return outcome, err
}

func (c *Coordinator) metricsRecorder() Recorder {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recorder
}

// record 记录一次恢复尝试
func (c *Coordinator) record(service, category, strategy string, success bool, elapsed time.Duration) {
	if r := c.metricsRecorder(); r != nil {
		r.RecordRecoveryAttempt(service, strategy, success)
	}
	c.history.Record(types.RecoveryAttempt{
		Service:       service,
		ErrorCategory: category,
		Strategy:      strategy,
		Success:       success,
		DurationMs:    elapsed.Milliseconds(),
		Timestamp:     time.Now(),
	})
}

// History 返回恢复历史
func (c *Coordinator) History() *History {
	return c.history
}

// Stats 返回恢复统计汇总
func (c *Coordinator) Stats() Stats {
	return c.history.Summarize()
}

// BreakerState 返回指定服务的熔断器状态
func (c *Coordinator) BreakerState(service string) BreakerState {
	return c.breakerFor(service).State()
}

// ResetBreaker 手动恢复指定服务的熔断器
func (c *Coordinator) ResetBreaker(service string) {
	c.breakerFor(service).Reset()
}
