package providers

import (
	"context"

	"github.com/contextlab/ragpipe/types"
)

// EmbeddingProvider 文本向量化接口。
type EmbeddingProvider interface {
	// Embed 为单条文本生成向量。
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch 为多条文本批量生成向量，结果与输入顺序一致。
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Name 返回提供者名称。
	Name() string
}

// VectorHit 是向量检索的单条结果。
type VectorHit struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// VectorDocument 是写入向量存储的单元。
type VectorDocument struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Embedding []float64      `json:"embedding"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// VectorStore 向量相似度检索接口。
// Upsert / Delete 属于索引维护，核心管线只消费 Search。
type VectorStore interface {
	Search(ctx context.Context, vector []float64, filters types.QueryFilters, topK int) ([]VectorHit, error)
	Upsert(ctx context.Context, docs []VectorDocument) error
	Delete(ctx context.Context, ids []string) error
	Name() string
}

// LexicalHit 是关键词检索的单条结果。
type LexicalHit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

// LexicalIndex 关键词检索接口。
type LexicalIndex interface {
	Search(ctx context.Context, query string, filters types.QueryFilters, topK int) ([]LexicalHit, error)
	Name() string
}

// WebSearchOptions 配置一次网络搜索。
type WebSearchOptions struct {
	MaxResults int    `json:"max_results"`
	Language   string `json:"language,omitempty"`
	Region     string `json:"region,omitempty"`
	TimeRange  string `json:"time_range,omitempty"` // day, week, month, year
}

// WebSearchResult 是单条网络搜索结果。
type WebSearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Content string  `json:"content,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// WebSearchResponse 聚合一次网络搜索。
type WebSearchResponse struct {
	Results      []WebSearchResult `json:"results"`
	TotalResults int               `json:"total_results"`
}

// WebSearchProvider 网络搜索接口。
// 实现可以封装 Tavily、SerpAPI、Jina、Google Custom Search 等。
type WebSearchProvider interface {
	Search(ctx context.Context, query string, opts WebSearchOptions) (*WebSearchResponse, error)
	Name() string
}

// RerankScore 是重排打分的单条结果。
type RerankScore struct {
	ID    string  `json:"id"`
	Index int     `json:"index"`
	Score float64 `json:"score"` // 0-1 normalized
}

// RerankProvider 交叉打分接口；缺省时管线退回 RRF 融合。
type RerankProvider interface {
	Score(ctx context.Context, query string, candidates []string) ([]RerankScore, error)
	Name() string
}

// TokenUsage 记录一次补全的 token 用量。
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion 是一次补全调用的结果。
type Completion struct {
	Text  string     `json:"text"`
	Usage TokenUsage `json:"usage"`
}

// CompleteOptions 配置一次补全调用。
type CompleteOptions struct {
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// LanguageModelProvider 补全接口。
type LanguageModelProvider interface {
	Complete(ctx context.Context, prompt string, opts CompleteOptions) (*Completion, error)
	Name() string
}
