package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextlab/ragpipe/providers"
	"github.com/contextlab/ragpipe/recovery"
	"github.com/contextlab/ragpipe/types"
)

type fakeVectorStore struct {
	hits []providers.VectorHit
	err  error
}

func (f *fakeVectorStore) Search(context.Context, []float64, types.QueryFilters, int) ([]providers.VectorHit, error) {
	return f.hits, f.err
}

func (f *fakeVectorStore) Upsert(context.Context, []providers.VectorDocument) error { return nil }
func (f *fakeVectorStore) Delete(context.Context, []string) error                   { return nil }
func (f *fakeVectorStore) Name() string                                             { return "fake-vector" }

type fakeLexicalIndex struct {
	hits []providers.LexicalHit
	err  error
}

func (f *fakeLexicalIndex) Search(context.Context, string, types.QueryFilters, int) ([]providers.LexicalHit, error) {
	return f.hits, f.err
}

func (f *fakeLexicalIndex) Name() string { return "fake-lexical" }

func fastCoordinator() *recovery.Coordinator {
	cfg := recovery.DefaultConfig()
	cfg.Backoff.InitialDelay = time.Millisecond
	cfg.Backoff.MaxDelay = 5 * time.Millisecond
	cfg.RateLimitDelay = time.Millisecond
	cfg.MaxElapsed = time.Second
	return recovery.NewCoordinator(cfg, nil)
}

func testRetriever(vec providers.VectorStore, lex providers.LexicalIndex) *HybridRetriever {
	return NewHybridRetriever(HybridConfig{}, vec, lex, fastCoordinator(), nil)
}

func TestRetrieveFusesBothSources(t *testing.T) {
	vec := &fakeVectorStore{hits: []providers.VectorHit{
		{ID: "a", Score: 0.9, Text: "chunk a", Metadata: map[string]any{"document_id": "doc-1"}},
		{ID: "b", Score: 0.5, Text: "chunk b"},
	}}
	lex := &fakeLexicalIndex{hits: []providers.LexicalHit{
		{ID: "b", Score: 3.0, Text: "chunk b"},
		{ID: "c", Score: 1.0, Text: "chunk c"},
	}}

	r := testRetriever(vec, lex)
	result, err := r.Retrieve(context.Background(), "query", []float64{1, 0}, types.QueryFilters{}, Thresholds{TopK: 10})

	require.NoError(t, err)
	assert.False(t, result.Degraded)
	require.Len(t, result.Chunks, 3)

	// min-max 归一化后：a = 0.6*1.0, b = 0.6*0 + 0.4*1.0, c = 0
	assert.Equal(t, "a", result.Chunks[0].ID)
	assert.Equal(t, "b", result.Chunks[1].ID)
	assert.Equal(t, "c", result.Chunks[2].ID)

	assert.InDelta(t, 0.6, *result.Chunks[0].FusedScore, 1e-9)
	assert.InDelta(t, 0.4, *result.Chunks[1].FusedScore, 1e-9)

	assert.Equal(t, types.OriginVector, result.Chunks[0].Source.Origin)
	assert.Equal(t, "doc-1", result.Chunks[0].Source.DocumentID)
	assert.Equal(t, types.OriginLexical, result.Chunks[2].Source.Origin)

	// b 同时出现在两个来源，保留两种分数
	assert.NotNil(t, result.Chunks[1].SimilarityScore)
	assert.NotNil(t, result.Chunks[1].LexicalScore)
}

func TestRetrieveThresholdFiltersLowScores(t *testing.T) {
	vec := &fakeVectorStore{hits: []providers.VectorHit{
		{ID: "a", Score: 0.9, Text: "chunk a"},
		{ID: "b", Score: 0.5, Text: "chunk b"},
	}}
	lex := &fakeLexicalIndex{}

	r := testRetriever(vec, lex)
	result, err := r.Retrieve(context.Background(), "query", []float64{1, 0}, types.QueryFilters{}, Thresholds{SimilarityThreshold: 0.5, TopK: 10})

	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "a", result.Chunks[0].ID)
}

func TestRetrieveVectorFailureDegradesToLexical(t *testing.T) {
	vec := &fakeVectorStore{err: errors.New("vector backend down")}
	lex := &fakeLexicalIndex{hits: []providers.LexicalHit{
		{ID: "c", Score: 1.0, Text: "chunk c"},
	}}

	r := testRetriever(vec, lex)
	result, err := r.Retrieve(context.Background(), "query", []float64{1, 0}, types.QueryFilters{}, Thresholds{TopK: 10})

	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Contains(t, result.DegradedReason, "vector search unavailable")
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "c", result.Chunks[0].ID)
}

func TestRetrieveWithoutEmbeddingUsesLexicalOnly(t *testing.T) {
	vec := &fakeVectorStore{hits: []providers.VectorHit{{ID: "a", Score: 0.9}}}
	lex := &fakeLexicalIndex{hits: []providers.LexicalHit{{ID: "c", Score: 1.0, Text: "chunk c"}}}

	r := testRetriever(vec, lex)
	result, err := r.Retrieve(context.Background(), "query", nil, types.QueryFilters{}, Thresholds{TopK: 10})

	require.NoError(t, err)
	// 未提供查询向量属于配置侧选择，不是来源故障，不算降级
	assert.False(t, result.Degraded)
	assert.Empty(t, result.DegradedReason)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "c", result.Chunks[0].ID)
}

func TestRetrieveBothSourcesFail(t *testing.T) {
	vec := &fakeVectorStore{err: errors.New("vector backend down")}
	lex := &fakeLexicalIndex{err: errors.New("lexical backend down")}

	r := testRetriever(vec, lex)
	_, err := r.Retrieve(context.Background(), "query", []float64{1, 0}, types.QueryFilters{}, Thresholds{TopK: 10})

	require.Error(t, err)
	var typed *types.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, types.ErrRetrievalUnavailable, typed.Code)
}

func TestFuseRenormalizesWeightsForSingleSource(t *testing.T) {
	vec := &fakeVectorStore{err: errors.New("vector backend down")}
	lex := &fakeLexicalIndex{hits: []providers.LexicalHit{
		{ID: "c", Score: 2.0, Text: "chunk c"},
		{ID: "d", Score: 1.0, Text: "chunk d"},
	}}

	r := testRetriever(vec, lex)
	result, err := r.Retrieve(context.Background(), "query", []float64{1, 0}, types.QueryFilters{}, Thresholds{SimilarityThreshold: 0.45, TopK: 10})

	require.NoError(t, err)
	// 纯关键词结果的权重归一化到 1，最高分不会被整体阈值滤掉
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "c", result.Chunks[0].ID)
	assert.InDelta(t, 1.0, *result.Chunks[0].FusedScore, 1e-9)
}

func TestMinMaxNormalizeUniformScores(t *testing.T) {
	normalized := minMaxNormalize(map[string]float64{"a": 0.5, "b": 0.5})
	assert.Equal(t, 1.0, normalized["a"])
	assert.Equal(t, 1.0, normalized["b"])
}
