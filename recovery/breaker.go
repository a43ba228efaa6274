package recovery

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/contextlab/ragpipe/types"
)

// BreakerState 熔断器状态
type BreakerState int

const (
	// BreakerClosed 关闭状态（正常工作）
	BreakerClosed BreakerState = iota
	// BreakerOpen 打开状态（熔断中）
	BreakerOpen
	// BreakerHalfOpen 半开状态（试探性恢复）
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	// 连续失败次数阈值
	Threshold int
	// 打开后进入半开的等待时间
	ResetTimeout time.Duration
	// 半开状态下允许的最大试探请求数
	HalfOpenMaxCalls int
}

// Breaker 按服务隔离的熔断器。
// 状态机：closed -> open（连续失败达到阈值）-> half_open（冷却后试探）
// -> closed（试探成功）或 open（试探失败）。
type Breaker struct {
	config BreakerConfig
	logger *zap.Logger

	mu                sync.Mutex
	state             BreakerState
	failureCount      int
	lastFailureTime   time.Time
	halfOpenCallCount int
}

// NewBreaker 创建熔断器
func NewBreaker(config BreakerConfig, logger *zap.Logger) *Breaker {
	if config.Threshold <= 0 {
		config.Threshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Breaker{
		config: config,
		logger: logger,
		state:  BreakerClosed,
	}
}

// Allow 调用前检查。熔断中返回 CIRCUIT_OPEN 错误。
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil

	case BreakerOpen:
		if time.Since(b.lastFailureTime) > b.config.ResetTimeout {
			b.setState(BreakerHalfOpen)
			b.halfOpenCallCount = 1
			return nil
		}
		return types.NewError(types.ErrCircuitOpen, "circuit breaker is open")

	case BreakerHalfOpen:
		if b.halfOpenCallCount >= b.config.HalfOpenMaxCalls {
			return types.NewError(types.ErrCircuitOpen, "too many probe calls in half-open state")
		}
		b.halfOpenCallCount++
		return nil

	default:
		return types.NewError(types.ErrCircuitOpen, "unknown breaker state")
	}
}

// Record 记录一次调用结果。clientSide 为真的失败不计入熔断。
func (b *Breaker) Record(success bool, clientSide bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success || clientSide {
		b.onSuccess()
		return
	}
	b.onFailure()
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case BreakerClosed:
		b.failureCount = 0
	case BreakerHalfOpen:
		b.logger.Info("circuit breaker recovered",
			zap.Int("probe_calls", b.halfOpenCallCount))
		b.setState(BreakerClosed)
		b.failureCount = 0
		b.halfOpenCallCount = 0
	}
}

func (b *Breaker) onFailure() {
	b.failureCount++
	b.lastFailureTime = time.Now()

	switch b.state {
	case BreakerClosed:
		if b.failureCount >= b.config.Threshold {
			b.logger.Warn("circuit breaker opened",
				zap.Int("failure_count", b.failureCount),
				zap.Int("threshold", b.config.Threshold))
			b.setState(BreakerOpen)
		}
	case BreakerHalfOpen:
		b.logger.Warn("probe call failed, circuit breaker reopened")
		b.setState(BreakerOpen)
		b.halfOpenCallCount = 0
	}
}

func (b *Breaker) setState(newState BreakerState) {
	b.state = newState
}

// State 获取当前状态
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset 手动恢复到关闭状态
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = BreakerClosed
	b.failureCount = 0
	b.halfOpenCallCount = 0
}
