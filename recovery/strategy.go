package recovery

// Strategy 恢复策略
type Strategy string

const (
	// StrategyRetry 指数退避后重试
	StrategyRetry Strategy = "RETRY"
	// StrategyWait 等待固定冷却时间后重试一次
	StrategyWait Strategy = "WAIT"
	// StrategyFallback 切换到备用执行路径
	StrategyFallback Strategy = "FALLBACK"
	// StrategyDegrade 以降级结果继续
	StrategyDegrade Strategy = "DEGRADE"
	// StrategySkip 不重试，直接上抛
	StrategySkip Strategy = "SKIP"
	// StrategyCircuitBreak 熔断器打开，短路调用
	StrategyCircuitBreak Strategy = "CIRCUIT_BREAK"
)

// SelectStrategy 按错误类别选择恢复策略。
//
// 限流等待冷却；网络与超时直接重试；服务端错误在熔断器打开时熔断，
// 否则先重试、重试耗尽后降级；客户端侧错误重试无意义，跳过；
// 未知错误优先走备用路径。
func SelectStrategy(category Category, breakerOpen bool, retriesExhausted bool, hasFallback bool) Strategy {
	switch category {
	case CategoryRateLimit:
		if retriesExhausted {
			return fallbackOrDegrade(hasFallback)
		}
		return StrategyWait

	case CategoryNetwork, CategoryTimeout:
		if retriesExhausted {
			return fallbackOrDegrade(hasFallback)
		}
		return StrategyRetry

	case CategoryServerError:
		if breakerOpen {
			return StrategyCircuitBreak
		}
		if retriesExhausted {
			return StrategyDegrade
		}
		return StrategyRetry

	case CategoryAuth, CategoryValidation, CategoryNotFound:
		return StrategySkip

	default:
		if hasFallback {
			return StrategyFallback
		}
		if retriesExhausted {
			return StrategyDegrade
		}
		return StrategyRetry
	}
}

func fallbackOrDegrade(hasFallback bool) Strategy {
	if hasFallback {
		return StrategyFallback
	}
	return StrategyDegrade
}
