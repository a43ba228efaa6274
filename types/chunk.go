package types

// SourceOrigin 标识候选块的来源通道。
type SourceOrigin string

const (
	OriginVector  SourceOrigin = "vector"
	OriginLexical SourceOrigin = "lexical"
	OriginWeb     SourceOrigin = "web"
)

// Source 描述候选块的出处。
type Source struct {
	Origin     SourceOrigin `json:"origin"`
	SourceID   string       `json:"source_id"`
	DocumentID string       `json:"document_id,omitempty"`
}

// CandidateChunk 是检索的原子单元。
// 分数字段由各阶段追加：后续阶段只能新增分数，不得改写更早阶段写入的分数。
type CandidateChunk struct {
	ID     string `json:"id"`
	Source Source `json:"source"`
	Text   string `json:"text"`

	// 各阶段分数（未触及的阶段保持 nil）
	SimilarityScore *float64 `json:"similarity_score,omitempty"`
	LexicalScore    *float64 `json:"lexical_score,omitempty"`
	FusedScore      *float64 `json:"fused_score,omitempty"`
	RerankScore     *float64 `json:"rerank_score,omitempty"`

	TokenCount int            `json:"token_count"`
	Embedding  []float64      `json:"embedding,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// BestScore 返回最新写入的分数，按阶段从后往前取。
func (c *CandidateChunk) BestScore() float64 {
	switch {
	case c.RerankScore != nil:
		return *c.RerankScore
	case c.FusedScore != nil:
		return *c.FusedScore
	case c.SimilarityScore != nil:
		return *c.SimilarityScore
	case c.LexicalScore != nil:
		return *c.LexicalScore
	default:
		return 0
	}
}

// HasScore reports whether at least one stage attached a score.
func (c *CandidateChunk) HasScore() bool {
	return c.SimilarityScore != nil || c.LexicalScore != nil ||
		c.FusedScore != nil || c.RerankScore != nil
}

// Float 返回 float64 指针，用于追加分数字段。
func Float(v float64) *float64 { return &v }

// TokenCounts 分别统计 prompt / context / completion 的 token 数。
type TokenCounts struct {
	Prompt     int `json:"prompt"`
	Context    int `json:"context"`
	Completion int `json:"completion"`
}

// Total returns the sum of all token counts.
func (t TokenCounts) Total() int {
	return t.Prompt + t.Context + t.Completion
}

// ContextWindow 是管线的最终产物：有序候选块加聚合 token 统计。
// 每个请求只构建一次，由下游答案生成阶段消费。
type ContextWindow struct {
	Chunks    []CandidateChunk `json:"chunks"`
	Tokens    TokenCounts      `json:"tokens"`
	Rationale string           `json:"rationale,omitempty"`
	// Degraded 表示至少一个来源失败、结果由剩余来源拼出。
	Degraded       bool     `json:"degraded"`
	DegradedReason string   `json:"degraded_reason,omitempty"`
	Sources        []string `json:"sources,omitempty"`
	// CacheHit 表示本窗口由缓存直接返回。
	CacheHit bool `json:"cache_hit,omitempty"`
}
