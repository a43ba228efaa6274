package pipeline

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/contextlab/ragpipe/providers"
	"github.com/contextlab/ragpipe/recovery"
	"github.com/contextlab/ragpipe/types"
)

// HybridConfig 混合检索配置
type HybridConfig struct {
	// 线性加权融合权重（min-max 归一化后相加）
	VectorWeight  float64
	LexicalWeight float64
	// 每个来源的单次调用超时
	SearchTimeout time.Duration
}

// HybridResult 混合检索输出
type HybridResult struct {
	Chunks         []types.CandidateChunk
	Degraded       bool
	DegradedReason string
}

// HybridRetriever 并发地发起向量检索与关键词检索，归一化后融合分数。
// 单一来源失败时以另一来源继续（降级），两个来源都失败才报错。
type HybridRetriever struct {
	config      HybridConfig
	vectorStore providers.VectorStore
	lexical     providers.LexicalIndex
	coordinator *recovery.Coordinator
	logger      *zap.Logger
}

// NewHybridRetriever 创建混合检索器
func NewHybridRetriever(
	config HybridConfig,
	vectorStore providers.VectorStore,
	lexical providers.LexicalIndex,
	coordinator *recovery.Coordinator,
	logger *zap.Logger,
) *HybridRetriever {
	if config.VectorWeight <= 0 && config.LexicalWeight <= 0 {
		config.VectorWeight = 0.6
		config.LexicalWeight = 0.4
	}
	if config.SearchTimeout <= 0 {
		config.SearchTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HybridRetriever{
		config:      config,
		vectorStore: vectorStore,
		lexical:     lexical,
		coordinator: coordinator,
		logger:      logger.With(zap.String("component", "hybrid_retriever")),
	}
}

// Retrieve 执行混合检索。
// embedding 为空时跳过向量检索，仅用关键词检索；
// 降级标记只反映实际观测到的来源故障，未配置的来源不算降级。
func (r *HybridRetriever) Retrieve(ctx context.Context, queryText string, embedding []float64, filters types.QueryFilters, th Thresholds) (HybridResult, error) {
	var (
		vectorHits []providers.VectorHit
		lexHits    []providers.LexicalHit
		vectorErr  error
		lexErr     error
	)

	vectorEnabled := r.vectorStore != nil && len(embedding) > 0

	// 两个来源并发执行，各自带超时；一个迟到或失败不取消另一个
	var g errgroup.Group

	if vectorEnabled {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, r.config.SearchTimeout)
			defer cancel()

			_, vectorErr = r.coordinator.Execute(callCtx, "vector_search", func(ctx context.Context) error {
				hits, err := r.vectorStore.Search(ctx, embedding, filters, th.TopK)
				if err != nil {
					return err
				}
				vectorHits = hits
				return nil
			}, nil)
			return nil
		})
	}

	if r.lexical != nil {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, r.config.SearchTimeout)
			defer cancel()

			_, lexErr = r.coordinator.Execute(callCtx, "lexical_search", func(ctx context.Context) error {
				hits, err := r.lexical.Search(ctx, queryText, filters, th.TopK)
				if err != nil {
					return err
				}
				lexHits = hits
				return nil
			}, nil)
			return nil
		})
	}

	_ = g.Wait()

	vectorOK := vectorEnabled && vectorErr == nil
	lexOK := r.lexical != nil && lexErr == nil

	if !vectorOK && !lexOK {
		cause := vectorErr
		if cause == nil {
			cause = lexErr
		}
		return HybridResult{}, types.NewRetrievalUnavailableError(cause)
	}

	result := HybridResult{}
	switch {
	case !vectorOK && vectorEnabled:
		result.Degraded = true
		result.DegradedReason = "vector search unavailable, lexical results only"
		r.logger.Warn("vector search failed, degrading to lexical only", zap.Error(vectorErr))
	case !lexOK && r.lexical != nil:
		result.Degraded = true
		result.DegradedReason = "lexical search unavailable, vector results only"
		r.logger.Warn("lexical search failed, degrading to vector only", zap.Error(lexErr))
	}

	result.Chunks = r.fuse(vectorHits, lexHits, th.SimilarityThreshold)
	return result, nil
}

// candidate 融合期间的内部表示，保留原始排名做稳定 tie-break
type candidate struct {
	chunk       types.CandidateChunk
	fused       float64
	vectorRank  int // 0 表示未出现在该来源
	lexicalRank int
}

// fuse 归一化各来源分数后做线性加权融合，丢弃低于阈值的候选。
// 排序：融合分降序；同分按原始排名，向量来源优先。
func (r *HybridRetriever) fuse(vectorHits []providers.VectorHit, lexHits []providers.LexicalHit, threshold float64) []types.CandidateChunk {
	vectorNorm := normalizeVectorScores(vectorHits)
	lexNorm := normalizeLexicalScores(lexHits)

	// 单一来源时权重归一到 1，避免降级结果整体落到阈值以下
	vw, lw := r.config.VectorWeight, r.config.LexicalWeight
	if len(vectorHits) == 0 {
		vw = 0
	}
	if len(lexHits) == 0 {
		lw = 0
	}
	if sum := vw + lw; sum > 0 {
		vw /= sum
		lw /= sum
	}

	byID := make(map[string]*candidate)

	for rank, hit := range vectorHits {
		c := &candidate{
			chunk: types.CandidateChunk{
				ID: hit.ID,
				Source: types.Source{
					Origin:     types.OriginVector,
					SourceID:   hit.ID,
					DocumentID: documentIDFromMetadata(hit.Metadata),
				},
				Text:            hit.Text,
				SimilarityScore: types.Float(hit.Score),
				Metadata:        hit.Metadata,
			},
			vectorRank: rank + 1,
		}
		c.fused = vw * vectorNorm[hit.ID]
		byID[hit.ID] = c
	}

	for rank, hit := range lexHits {
		if existing, ok := byID[hit.ID]; ok {
			existing.chunk.LexicalScore = types.Float(hit.Score)
			existing.lexicalRank = rank + 1
			existing.fused += lw * lexNorm[hit.ID]
			continue
		}
		c := &candidate{
			chunk: types.CandidateChunk{
				ID: hit.ID,
				Source: types.Source{
					Origin:   types.OriginLexical,
					SourceID: hit.ID,
				},
				Text:         hit.Text,
				LexicalScore: types.Float(hit.Score),
			},
			lexicalRank: rank + 1,
		}
		c.fused = lw * lexNorm[hit.ID]
		byID[hit.ID] = c
	}

	candidates := make([]*candidate, 0, len(byID))
	for _, c := range byID {
		if c.fused < threshold {
			continue
		}
		c.chunk.FusedScore = types.Float(c.fused)
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.fused != b.fused {
			return a.fused > b.fused
		}
		// 同分：先比原始排名，向量来源优先
		ra, rb := bestRank(a), bestRank(b)
		if ra != rb {
			return ra < rb
		}
		return a.vectorRank > 0 && b.vectorRank == 0
	})

	chunks := make([]types.CandidateChunk, 0, len(candidates))
	for _, c := range candidates {
		chunks = append(chunks, c.chunk)
	}
	return chunks
}

func bestRank(c *candidate) int {
	switch {
	case c.vectorRank > 0 && c.lexicalRank > 0:
		if c.vectorRank < c.lexicalRank {
			return c.vectorRank
		}
		return c.lexicalRank
	case c.vectorRank > 0:
		return c.vectorRank
	default:
		return c.lexicalRank
	}
}

// normalizeVectorScores min-max 归一化到 [0,1]
func normalizeVectorScores(hits []providers.VectorHit) map[string]float64 {
	scores := make(map[string]float64, len(hits))
	for _, h := range hits {
		scores[h.ID] = h.Score
	}
	return minMaxNormalize(scores)
}

func normalizeLexicalScores(hits []providers.LexicalHit) map[string]float64 {
	scores := make(map[string]float64, len(hits))
	for _, h := range hits {
		scores[h.ID] = h.Score
	}
	return minMaxNormalize(scores)
}

func minMaxNormalize(scores map[string]float64) map[string]float64 {
	if len(scores) == 0 {
		return scores
	}

	minScore, maxScore := 0.0, 0.0
	first := true
	for _, s := range scores {
		if first {
			minScore, maxScore = s, s
			first = false
			continue
		}
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}

	normalized := make(map[string]float64, len(scores))
	spread := maxScore - minScore
	for id, s := range scores {
		if spread == 0 {
			// 单一分值时全部归一为 1，避免除零
			normalized[id] = 1.0
			continue
		}
		normalized[id] = (s - minScore) / spread
	}
	return normalized
}

func documentIDFromMetadata(metadata map[string]any) string {
	if metadata == nil {
		return ""
	}
	if v, ok := metadata["document_id"].(string); ok {
		return v
	}
	if v, ok := metadata["doc_id"].(string); ok {
		return v
	}
	return ""
}
