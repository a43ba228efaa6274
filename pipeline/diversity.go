package pipeline

import (
	"math"

	"go.uber.org/zap"

	"github.com/contextlab/ragpipe/types"
)

// DiversityFilter 用最大边际相关（MMR）筛掉近冗余候选。
// 每轮选取 λ·relevance − (1−λ)·maxSimToSelected 最大的候选，
// 以 chunk embedding 的余弦相似度作为冗余信号。
type DiversityFilter struct {
	// λ ∈ [0,1]，越大越偏向相关性
	lambda float64
	logger *zap.Logger
}

// NewDiversityFilter 创建多样性过滤器
func NewDiversityFilter(lambda float64, logger *zap.Logger) *DiversityFilter {
	if lambda <= 0 || lambda > 1 {
		lambda = 0.7
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiversityFilter{lambda: lambda, logger: logger}
}

// Filter 从候选中选出最多 targetCount 个。
// 候选缺少 embedding 时跳过 MMR，直接取重排分前 N。
// 固定 embedding 下结果确定，同分按原始顺序。
func (f *DiversityFilter) Filter(chunks []types.CandidateChunk, targetCount int) []types.CandidateChunk {
	if targetCount <= 0 || len(chunks) <= targetCount {
		return chunks
	}

	if !allHaveEmbeddings(chunks) {
		f.logger.Debug("embeddings missing, skipping mmr, taking top-n by score")
		return chunks[:targetCount]
	}

	selected := make([]types.CandidateChunk, 0, targetCount)
	remaining := make([]types.CandidateChunk, len(chunks))
	copy(remaining, chunks)

	for len(selected) < targetCount && len(remaining) > 0 {
		bestIdx := 0
		bestScore := math.Inf(-1)

		for i := range remaining {
			relevance := remaining[i].BestScore()

			maxSim := 0.0
			for j := range selected {
				sim := cosine(remaining[i].Embedding, selected[j].Embedding)
				if sim > maxSim {
					maxSim = sim
				}
			}

			mmr := f.lambda*relevance - (1-f.lambda)*maxSim
			// 严格大于：同分保留原始顺序靠前的
			if mmr > bestScore {
				bestScore = mmr
				bestIdx = i
			}
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}

func allHaveEmbeddings(chunks []types.CandidateChunk) bool {
	for i := range chunks {
		if len(chunks[i].Embedding) == 0 {
			return false
		}
	}
	return true
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
