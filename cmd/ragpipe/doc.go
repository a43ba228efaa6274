// Copyright (c) Ragpipe Authors.
// Licensed under the MIT License.

/*
Package main 提供 ragpipe 命令行入口。

# 概述

cmd/ragpipe 把检索管线封装为可执行程序，支持单次查询、缓存失效
与版本查询等子命令。程序加载 YAML 配置（可被环境变量覆盖），
按配置装配提供者、缓存后端与结构化日志（zap）。

# 子命令

  - query       — 执行一次检索并以 JSON 输出上下文窗口
  - invalidate  — 递增缓存版本使既有缓存失效
  - version     — 显示版本信息

外部提供者均为可选：未配置向量存储或打分服务时，管线自动降级到
进程内关键词检索与本地秩融合。
*/
package main
