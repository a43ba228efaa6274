package providers

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/contextlab/ragpipe/types"
)

// MemoryVectorStore 是进程内的 VectorStore 实现，
// 用于测试和无外部依赖的本地降级运行。余弦相似度检索。
type MemoryVectorStore struct {
	mu     sync.RWMutex
	docs   map[string]VectorDocument
	logger *zap.Logger
}

// NewMemoryVectorStore 创建进程内向量存储。
func NewMemoryVectorStore(logger *zap.Logger) *MemoryVectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryVectorStore{
		docs:   make(map[string]VectorDocument),
		logger: logger.With(zap.String("component", "memory_vector_store")),
	}
}

func (s *MemoryVectorStore) Name() string { return "memory-vector" }

// Upsert 写入或更新文档。
func (s *MemoryVectorStore) Upsert(_ context.Context, docs []VectorDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		s.docs[doc.ID] = doc
	}
	return nil
}

// Delete 按 ID 删除文档。
func (s *MemoryVectorStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.docs, id)
	}
	return nil
}

// Search 余弦相似度检索，按分数降序、同分按 ID 升序稳定排列。
func (s *MemoryVectorStore) Search(_ context.Context, vector []float64, filters types.QueryFilters, topK int) ([]VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if topK <= 0 {
		topK = 10
	}

	hits := make([]VectorHit, 0, len(s.docs))
	for _, doc := range s.docs {
		if !matchFilters(doc.Metadata, filters) {
			continue
		}
		score := cosineSimilarity(vector, doc.Embedding)
		hits = append(hits, VectorHit{
			ID:       doc.ID,
			Score:    score,
			Text:     doc.Text,
			Metadata: doc.Metadata,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// matchFilters 按元数据匹配过滤条件。
func matchFilters(metadata map[string]any, filters types.QueryFilters) bool {
	if filters.Empty() {
		return true
	}

	if len(filters.DocumentIDs) > 0 {
		if !matchAny(metadata, "document_id", filters.DocumentIDs) {
			return false
		}
	}
	if len(filters.TopicIDs) > 0 {
		if !matchAny(metadata, "topic_id", filters.TopicIDs) {
			return false
		}
	}
	if filters.Geography != "" {
		if v, _ := metadata["geography"].(string); v != filters.Geography {
			return false
		}
	}
	return true
}

func matchAny(metadata map[string]any, key string, allowed []string) bool {
	v, ok := metadata[key].(string)
	if !ok {
		return false
	}
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// cosineSimilarity 计算余弦相似度。
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// MemoryLexicalIndex 是进程内的 BM25 关键词索引。
type MemoryLexicalIndex struct {
	mu     sync.RWMutex
	docs   []lexicalDoc
	logger *zap.Logger

	// BM25 参数
	k1 float64
	b  float64

	// BM25 统计
	avgDocLen float64
	idf       map[string]float64
	stale     bool
}

type lexicalDoc struct {
	id       string
	text     string
	terms    []string
	termFreq map[string]int
	metadata map[string]any
}

// NewMemoryLexicalIndex 创建进程内 BM25 索引。
func NewMemoryLexicalIndex(logger *zap.Logger) *MemoryLexicalIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryLexicalIndex{
		logger: logger.With(zap.String("component", "memory_lexical_index")),
		k1:     1.5,
		b:      0.75,
		idf:    make(map[string]float64),
	}
}

func (idx *MemoryLexicalIndex) Name() string { return "memory-bm25" }

// Index 添加文档到索引。
func (idx *MemoryLexicalIndex) Index(id, text string, metadata map[string]any) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	terms := tokenize(text)
	termFreq := make(map[string]int, len(terms))
	for _, t := range terms {
		termFreq[t]++
	}

	idx.docs = append(idx.docs, lexicalDoc{
		id:       id,
		text:     text,
		terms:    terms,
		termFreq: termFreq,
		metadata: metadata,
	})
	idx.stale = true
}

// recompute 重新计算 IDF 与平均文档长度。调用方必须持有写锁。
func (idx *MemoryLexicalIndex) recompute() {
	totalLen := 0
	termDocCount := make(map[string]int)

	for _, doc := range idx.docs {
		totalLen += len(doc.terms)
		seen := make(map[string]bool, len(doc.termFreq))
		for term := range doc.termFreq {
			if !seen[term] {
				termDocCount[term]++
				seen[term] = true
			}
		}
	}

	if len(idx.docs) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(idx.docs))
	}

	N := float64(len(idx.docs))
	idx.idf = make(map[string]float64, len(termDocCount))
	for term, df := range termDocCount {
		idx.idf[term] = math.Log((N-float64(df)+0.5)/(float64(df)+0.5) + 1.0)
	}
	idx.stale = false
}

// Search BM25 检索，按分数降序、同分按 ID 升序稳定排列。
func (idx *MemoryLexicalIndex) Search(_ context.Context, query string, filters types.QueryFilters, topK int) ([]LexicalHit, error) {
	idx.mu.Lock()
	if idx.stale {
		idx.recompute()
	}
	idx.mu.Unlock()

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if topK <= 0 {
		topK = 10
	}

	queryTerms := tokenize(query)
	hits := make([]LexicalHit, 0, len(idx.docs))

	for _, doc := range idx.docs {
		if !matchFilters(doc.metadata, filters) {
			continue
		}

		score := 0.0
		docLen := float64(len(doc.terms))

		for _, qTerm := range queryTerms {
			tf, ok := doc.termFreq[qTerm]
			if !ok {
				continue
			}
			idf := idx.idf[qTerm]

			// BM25 公式
			numerator := float64(tf) * (idx.k1 + 1.0)
			denominator := float64(tf) + idx.k1*(1.0-idx.b+idx.b*(docLen/idx.avgDocLen))
			score += idf * (numerator / denominator)
		}

		if score > 0 {
			hits = append(hits, LexicalHit{ID: doc.id, Score: score, Text: doc.text})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// tokenize 简化分词：转小写并按空白分割。
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
