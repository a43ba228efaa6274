// Copyright (c) Ragpipe Authors.
// Licensed under the MIT License.

/*
# 概述

Package pipeline 实现从原始查询到上下文窗口的完整检索管线。

管线按固定顺序组合各阶段：查询分析、查询扩展、混合检索、阈值优化、
重排序、多样性过滤、去重和上下文组装，并以缓存层和错误恢复协调器
横向包裹全部外部调用。

# 核心类型

  - Pipeline — 管线编排器，对外唯一入口 RetrieveContext
  - Analyzer — 查询复杂度与意图分类，计算自适应 chunk 目标数
  - Expander — 基于 LLM 的查询扩展，带缓存与规则回退
  - HybridRetriever — 向量 + 关键词并发检索与分数融合
  - Reranker — 外部交叉打分或 RRF 秩融合重排
  - DiversityFilter — MMR 多样性过滤
  - Deduplicator — 内容哈希 + Jaccard 相似度去重
  - Assembler — token 预算内的贪心上下文组装

# 主要能力

  - 自适应上下文规模：按意图复杂度与查询类型伸缩 chunk 数量
  - 优雅降级：单一来源失败时以部分结果继续，仅标记降级
  - 截止时间感知：deadline 到期返回已组装的部分上下文而非报错
  - 可观测性：恢复统计、缓存统计、失效历史均可只读访问
*/
package pipeline
