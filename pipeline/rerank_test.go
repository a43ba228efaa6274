package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextlab/ragpipe/providers"
	"github.com/contextlab/ragpipe/recovery"
	"github.com/contextlab/ragpipe/types"
)

type stubRerankProvider struct {
	scores map[string]float64
	err    error
	calls  int
}

func (s *stubRerankProvider) Score(_ context.Context, _ string, candidates []string) ([]providers.RerankScore, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]providers.RerankScore, 0, len(candidates))
	for i, text := range candidates {
		out = append(out, providers.RerankScore{Index: i, Score: s.scores[text]})
	}
	return out, nil
}

func (s *stubRerankProvider) Name() string { return "stub-rerank" }

func rerankCandidates() []types.CandidateChunk {
	return []types.CandidateChunk{
		{ID: "a", Text: "alpha", SimilarityScore: types.Float(0.9), FusedScore: types.Float(0.6)},
		{ID: "b", Text: "beta", SimilarityScore: types.Float(0.5), LexicalScore: types.Float(3.0), FusedScore: types.Float(0.4)},
		{ID: "c", Text: "gamma", LexicalScore: types.Float(1.0), FusedScore: types.Float(0.1)},
	}
}

func TestRerankWithProvider(t *testing.T) {
	provider := &stubRerankProvider{scores: map[string]float64{
		"alpha": 0.2,
		"beta":  0.9,
		"gamma": 0.5,
	}}
	r := NewReranker(RerankerConfig{Strategy: RerankProvider}, provider, nil, nil)

	out := r.Rerank(context.Background(), "query", rerankCandidates())

	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].ID)
	assert.Equal(t, "c", out[1].ID)
	assert.Equal(t, "a", out[2].ID)
	assert.InDelta(t, 0.9, *out[0].RerankScore, 1e-9)
}

func TestRerankProviderFailureFallsBackToRRF(t *testing.T) {
	provider := &stubRerankProvider{err: errors.New("rerank service down")}
	r := NewReranker(RerankerConfig{Strategy: RerankProvider}, provider, nil, nil)

	out := r.Rerank(context.Background(), "query", rerankCandidates())

	require.Len(t, out, 3)
	assert.Equal(t, 1, provider.calls)
	for _, c := range out {
		assert.NotNil(t, c.RerankScore)
	}
	// b 在向量榜第 2、关键词榜第 1：1/62 + 1/61 最高
	assert.Equal(t, "b", out[0].ID)
}

func TestRerankProviderFailureRecordedAsFallback(t *testing.T) {
	provider := &stubRerankProvider{err: errors.New("scoring backend down")}
	c := fastCoordinator()
	r := NewReranker(RerankerConfig{Strategy: RerankProvider}, provider, c, nil)

	out := r.Rerank(context.Background(), "query", rerankCandidates())

	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].ID)
	assert.Equal(t, 1, provider.calls)

	// 外部打分故障经协调器切到秩融合备用路径并留痕
	attempts := c.History().ByService("rerank")
	assert.NotEmpty(t, attempts)
	assert.Equal(t, string(recovery.StrategyFallback), attempts[len(attempts)-1].Strategy)
}

func TestRerankRRFScores(t *testing.T) {
	r := NewReranker(RerankerConfig{Strategy: RerankRRF}, nil, nil, nil)

	out := r.Rerank(context.Background(), "query", rerankCandidates())

	require.Len(t, out, 3)
	// a: 向量第 1 → 1/61；b: 向量第 2 + 关键词第 1 → 1/62 + 1/61；c: 关键词第 2 → 1/62
	assert.Equal(t, "b", out[0].ID)
	assert.Equal(t, "a", out[1].ID)
	assert.Equal(t, "c", out[2].ID)
	assert.InDelta(t, 1.0/62+1.0/61, *out[0].RerankScore, 1e-9)
	assert.InDelta(t, 1.0/61, *out[1].RerankScore, 1e-9)
}

func TestRerankTiePreservesFusedOrder(t *testing.T) {
	provider := &stubRerankProvider{scores: map[string]float64{
		"alpha": 0.5,
		"beta":  0.5,
		"gamma": 0.5,
	}}
	r := NewReranker(RerankerConfig{Strategy: RerankProvider}, provider, nil, nil)

	out := r.Rerank(context.Background(), "query", rerankCandidates())

	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
	assert.Equal(t, "c", out[2].ID)
}

func TestRerankTruncatesToTopK(t *testing.T) {
	r := NewReranker(RerankerConfig{Strategy: RerankRRF, TopK: 2}, nil, nil, nil)

	out := r.Rerank(context.Background(), "query", rerankCandidates())

	assert.Len(t, out, 2)
}

func TestRerankBatchesProviderCalls(t *testing.T) {
	provider := &stubRerankProvider{scores: map[string]float64{
		"alpha": 0.1, "beta": 0.2, "gamma": 0.3,
	}}
	r := NewReranker(RerankerConfig{Strategy: RerankProvider, BatchSize: 2}, provider, nil, nil)

	out := r.Rerank(context.Background(), "query", rerankCandidates())

	require.Len(t, out, 3)
	assert.Equal(t, 2, provider.calls)
	assert.Equal(t, "c", out[0].ID)
}

func TestRerankEmptyInput(t *testing.T) {
	r := NewReranker(RerankerConfig{}, nil, nil, nil)
	assert.Empty(t, r.Rerank(context.Background(), "query", nil))
}
