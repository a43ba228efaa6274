package recovery

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy 指数退避策略
type BackoffPolicy struct {
	// 初始延迟时间
	InitialDelay time.Duration
	// 最大延迟时间
	MaxDelay time.Duration
	// 延迟倍增因子
	Multiplier float64
	// 是否添加随机抖动（防止雪崩）
	Jitter bool
}

// DefaultBackoffPolicy 返回默认退避策略
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Delay 计算第 attempt 次重试的延迟时间（attempt 从 1 开始）。
// 指数退避：delay = initial * multiplier^(attempt-1)，带 ±25% 抖动。
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	initial := p.InitialDelay
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	multiplier := p.Multiplier
	if multiplier < 1.0 {
		multiplier = 2.0
	}

	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}

	if p.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
	}

	if delay < 0 {
		delay = float64(initial)
	}

	return time.Duration(delay)
}

// sleep 等待指定时长，同时监听 context 取消
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
