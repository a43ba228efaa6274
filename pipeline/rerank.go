package pipeline

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/contextlab/ragpipe/providers"
	"github.com/contextlab/ragpipe/recovery"
	"github.com/contextlab/ragpipe/types"
)

// RRF 秩融合常数，沿用常见默认值
const rrfK = 60.0

// RerankStrategy 重排策略
type RerankStrategy string

const (
	// RerankProvider 外部交叉打分
	RerankProvider RerankStrategy = "provider"
	// RerankRRF 本地 reciprocal-rank fusion，无外部调用
	RerankRRF RerankStrategy = "rrf"
)

// RerankerConfig 重排配置
type RerankerConfig struct {
	Strategy RerankStrategy
	// 参与重排的候选上限
	TopK int
	// 外部打分的批大小
	BatchSize int
}

// Reranker 对融合候选集重排。
// 外部打分经恢复协调器执行，失败时回退到 RRF，重排本身绝不让整个请求失败。
type Reranker struct {
	config      RerankerConfig
	provider    providers.RerankProvider
	coordinator *recovery.Coordinator
	logger      *zap.Logger
}

// NewReranker 创建重排器。provider 可为 nil，此时固定使用 RRF；
// coordinator 可为 nil，此时外部打分不走恢复策略。
func NewReranker(config RerankerConfig, provider providers.RerankProvider, coordinator *recovery.Coordinator, logger *zap.Logger) *Reranker {
	if config.TopK <= 0 {
		config.TopK = 50
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 16
	}
	if config.Strategy == "" {
		config.Strategy = RerankProvider
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reranker{
		config:      config,
		provider:    provider,
		coordinator: coordinator,
		logger:      logger.With(zap.String("component", "reranker")),
	}
}

// Rerank 给候选追加 rerankScore 并按其降序排列。
// 同分时保持融合分顺序。
func (r *Reranker) Rerank(ctx context.Context, query string, chunks []types.CandidateChunk) []types.CandidateChunk {
	if len(chunks) == 0 {
		return chunks
	}

	if len(chunks) > r.config.TopK {
		chunks = chunks[:r.config.TopK]
	}

	if r.config.Strategy == RerankProvider && r.provider != nil {
		var scored []types.CandidateChunk
		op := func(ctx context.Context) error {
			out, err := r.rerankWithProvider(ctx, query, chunks)
			if err != nil {
				return err
			}
			scored = out
			return nil
		}

		if r.coordinator == nil {
			if err := op(ctx); err == nil {
				return scored
			}
			r.logger.Warn("provider rerank failed, falling back to rank fusion")
		} else {
			_, err := r.coordinator.Execute(ctx, "rerank", op, func(context.Context) error {
				scored = r.rerankWithRRF(chunks)
				return nil
			})
			if err == nil {
				return scored
			}
			r.logger.Warn("provider rerank failed, falling back to rank fusion", zap.Error(err))
		}
	}

	return r.rerankWithRRF(chunks)
}

// rerankWithProvider 分批调用外部打分服务
func (r *Reranker) rerankWithProvider(ctx context.Context, query string, chunks []types.CandidateChunk) ([]types.CandidateChunk, error) {
	out := make([]types.CandidateChunk, len(chunks))
	copy(out, chunks)

	for start := 0; start < len(out); start += r.config.BatchSize {
		end := start + r.config.BatchSize
		if end > len(out) {
			end = len(out)
		}

		texts := make([]string, 0, end-start)
		for _, c := range out[start:end] {
			texts = append(texts, c.Text)
		}

		scores, err := r.provider.Score(ctx, query, texts)
		if err != nil {
			return nil, err
		}

		for _, s := range scores {
			idx := start + s.Index
			if idx < start || idx >= end {
				continue
			}
			out[idx].RerankScore = types.Float(s.Score)
		}
	}

	sortByRerank(out)
	return out, nil
}

// rerankWithRRF 按各来源排名做 reciprocal-rank fusion：
// score = Σ 1/(k + rank)，k=60。
func (r *Reranker) rerankWithRRF(chunks []types.CandidateChunk) []types.CandidateChunk {
	out := make([]types.CandidateChunk, len(chunks))
	copy(out, chunks)

	vectorRanks := rankBy(out, func(c *types.CandidateChunk) *float64 { return c.SimilarityScore })
	lexicalRanks := rankBy(out, func(c *types.CandidateChunk) *float64 { return c.LexicalScore })

	for i := range out {
		score := 0.0
		if rank, ok := vectorRanks[out[i].ID]; ok {
			score += 1.0 / (rrfK + float64(rank))
		}
		if rank, ok := lexicalRanks[out[i].ID]; ok {
			score += 1.0 / (rrfK + float64(rank))
		}
		out[i].RerankScore = types.Float(score)
	}

	sortByRerank(out)
	return out
}

// rankBy 按指定分数字段降序计算排名（从 1 开始），缺分的候选不参与
func rankBy(chunks []types.CandidateChunk, score func(*types.CandidateChunk) *float64) map[string]int {
	type scored struct {
		id    string
		value float64
	}

	var list []scored
	for i := range chunks {
		if v := score(&chunks[i]); v != nil {
			list = append(list, scored{id: chunks[i].ID, value: *v})
		}
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].value > list[j].value
	})

	ranks := make(map[string]int, len(list))
	for i, s := range list {
		ranks[s.id] = i + 1
	}
	return ranks
}

// sortByRerank 按 rerankScore 降序稳定排序，同分保持融合顺序
func sortByRerank(chunks []types.CandidateChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		a, b := 0.0, 0.0
		if chunks[i].RerankScore != nil {
			a = *chunks[i].RerankScore
		}
		if chunks[j].RerankScore != nil {
			b = *chunks[j].RerankScore
		}
		return a > b
	})
}
