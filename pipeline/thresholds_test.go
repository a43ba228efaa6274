package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/contextlab/ragpipe/types"
)

func TestOptimizePerQueryType(t *testing.T) {
	o := NewThresholdOptimizer()

	factual := o.Optimize(types.QueryFactual)
	exploratory := o.Optimize(types.QueryExploratory)
	unknown := o.Optimize(types.QueryUnknown)

	// 事实类收紧，探索类放宽
	assert.Greater(t, factual.SimilarityThreshold, exploratory.SimilarityThreshold)
	assert.Less(t, factual.TopK, exploratory.TopK)
	assert.Equal(t, 0.30, unknown.SimilarityThreshold)
}

func TestOptimizeAdaptsToHistory(t *testing.T) {
	o := NewThresholdOptimizer()

	// 样本不足时不调整
	before := o.Optimize(types.QueryFactual)
	assert.Equal(t, 0.45, before.SimilarityThreshold)

	// 记录大量低分样本后阈值向下适应
	for i := 0; i < 100; i++ {
		o.Observe(0.1)
	}
	after := o.Optimize(types.QueryFactual)
	assert.Less(t, after.SimilarityThreshold, before.SimilarityThreshold)
}

func TestScoreHistoryQuantile(t *testing.T) {
	h := newScoreHistory(10)
	for _, s := range []float64{0.1, 0.2, 0.3, 0.4, 0.5} {
		h.add(s)
	}

	assert.Equal(t, 5, h.len())
	assert.InDelta(t, 0.2, h.quantile(0.25), 1e-9)
	assert.InDelta(t, 0.5, h.quantile(1.0), 1e-9)
}
