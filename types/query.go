package types

import "time"

// Query 是一次检索调用的不可变输入。
// 创建后任何阶段都不得修改其字段。
type Query struct {
	// 原始查询文本
	Text string `json:"text"`
	// 请求级过滤条件
	Filters QueryFilters `json:"filters"`
	// 功能开关
	EnableDocumentSearch bool `json:"enable_document_search"`
	EnableWebSearch      bool `json:"enable_web_search"`
	// 预算提示
	MinChunks   int `json:"min_chunks"`
	MaxChunks   int `json:"max_chunks"`
	TokenBudget int `json:"token_budget"`
}

// QueryFilters 限定检索范围。
type QueryFilters struct {
	TopicIDs    []string   `json:"topic_ids,omitempty"`
	DocumentIDs []string   `json:"document_ids,omitempty"`
	TimeFrom    *time.Time `json:"time_from,omitempty"`
	TimeTo      *time.Time `json:"time_to,omitempty"`
	Geography   string     `json:"geography,omitempty"`
}

// Empty reports whether no filter is set.
func (f QueryFilters) Empty() bool {
	return len(f.TopicIDs) == 0 && len(f.DocumentIDs) == 0 &&
		f.TimeFrom == nil && f.TimeTo == nil && f.Geography == ""
}

// RetrieveOptions 是对外入口 RetrieveContext 的配置对象。
// 零值字段回退到 config 中的默认值。
type RetrieveOptions struct {
	EnableDocumentSearch       bool         `json:"enable_document_search"`
	EnableWebSearch            bool         `json:"enable_web_search"`
	MaxDocumentChunks          int          `json:"max_document_chunks"`
	MaxWebResults              int          `json:"max_web_results"`
	MinChunks                  int          `json:"min_chunks"`
	MaxChunks                  int          `json:"max_chunks"`
	UseAdaptiveContextSelection bool        `json:"use_adaptive_context_selection"`
	TokenBudget                int          `json:"token_budget"`
	Filters                    QueryFilters `json:"filters"`
}

// IntentComplexity 表示查询的意图复杂度。
type IntentComplexity string

const (
	ComplexitySimple   IntentComplexity = "simple"
	ComplexityModerate IntentComplexity = "moderate"
	ComplexityComplex  IntentComplexity = "complex"
)

// QueryType 表示查询的语义类型。
type QueryType string

const (
	QueryFactual     QueryType = "factual"
	QueryConceptual  QueryType = "conceptual"
	QueryProcedural  QueryType = "procedural"
	QueryExploratory QueryType = "exploratory"
	QueryUnknown     QueryType = "unknown"
)

// LengthClass 表示查询长度等级。
type LengthClass string

const (
	LengthShort  LengthClass = "short"
	LengthMedium LengthClass = "medium"
	LengthLong   LengthClass = "long"
)

// QueryAnalysis 是 QueryAnalyzer 的输出。
type QueryAnalysis struct {
	LengthClass      LengthClass      `json:"length_class"`
	KeywordCount     int              `json:"keyword_count"`
	Keywords         []string         `json:"keywords,omitempty"`
	Entities         []string         `json:"entities,omitempty"`
	IntentComplexity IntentComplexity `json:"intent_complexity"`
	QueryType        QueryType        `json:"query_type"`
	ComplexityScore  float64          `json:"complexity_score"` // 0-1
	TargetChunkCount int              `json:"target_chunk_count"`
	Rationale        string           `json:"rationale,omitempty"`
}

// RecoveryAttempt 记录一次错误恢复尝试，写入后不可变。
type RecoveryAttempt struct {
	Service       string    `json:"service"`
	ErrorCategory string    `json:"error_category"`
	Strategy      string    `json:"strategy"`
	Success       bool      `json:"success"`
	DurationMs    int64     `json:"duration_ms"`
	Timestamp     time.Time `json:"timestamp"`
}
