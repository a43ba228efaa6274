// Copyright (c) Ragpipe Authors.
// Licensed under the MIT License.

// Package recovery 提供统一的错误恢复协调。
//
// 外部服务调用失败时，先归类错误（网络、限流、服务端等），
// 再按类别选择恢复策略：重试、等待、降级、回退、跳过或熔断。
// 指数退避带 ±25% 随机抖动，熔断器按服务隔离，
// 每次恢复尝试都记入有界历史供观测。
package recovery
