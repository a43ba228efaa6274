// Copyright (c) Ragpipe Authors.
// Licensed under the MIT License.

/*
Package providers 定义管线消费的外部提供者契约及其具体实现。

# 契约

  - EmbeddingProvider      — 文本向量化（单条 + 批量）
  - VectorStore            — 向量相似度检索与索引维护（Search / Upsert / Delete）
  - LexicalIndex           — 关键词检索（BM25）
  - WebSearchProvider      — 实时网络搜索
  - RerankProvider         — 查询-候选对的交叉打分
  - LanguageModelProvider  — 补全调用（查询扩展使用）

# 实现

  - OpenAIEmbedding / OpenAICompletion — OpenAI 风格 REST API
  - CohereRerank                       — Cohere v2 rerank API
  - QdrantStore                        — Qdrant REST API 向量存储
  - HTTPWebSearch                      — Tavily 风格搜索 API
  - MemoryVectorStore / MemoryLexicalIndex — 进程内实现，
    用于测试和无外部依赖的本地降级运行

所有 HTTP 实现共享 baseClient：ctx 感知请求、status>=400 错误体捕获、
HTTP 状态到 types.ErrorCode 的统一映射。
*/
package providers
