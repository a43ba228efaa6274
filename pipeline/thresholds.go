package pipeline

import (
	"sort"
	"sync"

	"github.com/contextlab/ragpipe/types"
)

// Thresholds 检索截断参数
type Thresholds struct {
	// 融合分数下限，低于该值的候选被丢弃
	SimilarityThreshold float64
	// 每个来源取回的候选数
	TopK int
}

// ThresholdOptimizer 按查询类型给出阈值与 topK。
// 探索类查询放宽阈值换召回，事实类收紧换精确。
// 历史融合分数样本充足时用分位数微调阈值。
type ThresholdOptimizer struct {
	history *scoreHistory
}

// NewThresholdOptimizer 创建阈值优化器
func NewThresholdOptimizer() *ThresholdOptimizer {
	return &ThresholdOptimizer{
		history: newScoreHistory(1000),
	}
}

// Optimize 返回查询类型对应的阈值配置
func (o *ThresholdOptimizer) Optimize(queryType types.QueryType) Thresholds {
	t := baseThresholds(queryType)

	// 样本充足时，将阈值下调到不低于类型下限的 25 分位
	if o.history.len() >= 50 {
		q25 := o.history.quantile(0.25)
		if q25 < t.SimilarityThreshold {
			t.SimilarityThreshold = q25
		}
	}

	return t
}

// Observe 记录一次融合分数，供后续请求的阈值自适应
func (o *ThresholdOptimizer) Observe(score float64) {
	o.history.add(score)
}

func baseThresholds(queryType types.QueryType) Thresholds {
	switch queryType {
	case types.QueryFactual:
		return Thresholds{SimilarityThreshold: 0.45, TopK: 10}
	case types.QueryConceptual:
		return Thresholds{SimilarityThreshold: 0.35, TopK: 15}
	case types.QueryProcedural:
		return Thresholds{SimilarityThreshold: 0.35, TopK: 15}
	case types.QueryExploratory:
		return Thresholds{SimilarityThreshold: 0.25, TopK: 20}
	default:
		return Thresholds{SimilarityThreshold: 0.30, TopK: 15}
	}
}

// scoreHistory 有界的分数样本环
type scoreHistory struct {
	mu       sync.Mutex
	samples  []float64
	head     int
	size     int
	capacity int
}

func newScoreHistory(capacity int) *scoreHistory {
	return &scoreHistory{
		samples:  make([]float64, capacity),
		capacity: capacity,
	}
}

func (h *scoreHistory) add(score float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := (h.head + h.size) % h.capacity
	h.samples[idx] = score
	if h.size < h.capacity {
		h.size++
	} else {
		h.head = (h.head + 1) % h.capacity
	}
}

func (h *scoreHistory) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

func (h *scoreHistory) quantile(q float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size == 0 {
		return 0
	}

	sorted := make([]float64, 0, h.size)
	for i := 0; i < h.size; i++ {
		sorted = append(sorted, h.samples[(h.head+i)%h.capacity])
	}
	sort.Float64s(sorted)

	idx := int(q * float64(h.size-1))
	return sorted[idx]
}
