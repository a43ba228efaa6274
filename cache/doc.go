// Copyright (c) Ragpipe Authors.
// Licensed under the MIT License.

// Package cache 提供检索结果的版本化缓存层。
//
// 缓存键由归一化查询、过滤条件与全局版本号共同派生，
// 版本号递增即可使全部旧缓存失效，无需逐键删除。
// 支持 Redis 与进程内两种后端，缓存故障不阻断检索主流程。
package cache
