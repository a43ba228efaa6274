// Copyright (c) Ragpipe Authors.
// Licensed under the MIT License.

/*
Package types 提供 ragpipe 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 pipeline、providers、cache、
recovery 等上层模块提供统一的类型契约。所有跨包共享的结构体、枚举和
错误码均定义于此，以避免循环依赖。

# 核心类型

  - Query / QueryFilters     — 一次检索请求的不可变输入（文本、过滤、开关、预算）
  - RetrieveOptions          — 对外入口 RetrieveContext 的配置对象
  - CandidateChunk           — 检索单元，分数字段按阶段追加（append-only）
  - ContextWindow            — 最终上下文窗口（有序 chunk + token 统计 + rationale）
  - QueryAnalysis            — QueryAnalyzer 的输出（复杂度、类型、目标 chunk 数）
  - RecoveryAttempt          — 每次错误恢复尝试的不可变记录
  - Error / ErrorCode        — 结构化错误体系，含 Retryable 与 HTTP 状态码标记

# 主要能力

  - 错误工具链：NewError / WithCause / IsRetryable / GetErrorCode
  - 常用错误构造：NewRateLimitError / NewTimeoutError / NewRetrievalUnavailableError
*/
package types
