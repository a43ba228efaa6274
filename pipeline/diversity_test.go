package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextlab/ragpipe/types"
)

func TestFilterPrefersDiverseCandidates(t *testing.T) {
	chunks := []types.CandidateChunk{
		{ID: "a", RerankScore: types.Float(0.9), Embedding: []float64{1, 0}},
		{ID: "b", RerankScore: types.Float(0.85), Embedding: []float64{1, 0}},
		{ID: "c", RerankScore: types.Float(0.5), Embedding: []float64{0, 1}},
	}

	f := NewDiversityFilter(0.7, nil)
	out := f.Filter(chunks, 2)

	// b 与 a 完全同向，被正交但低分的 c 挤掉
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "c", out[1].ID)
}

func TestFilterWithoutEmbeddingsTakesTopN(t *testing.T) {
	chunks := []types.CandidateChunk{
		{ID: "a", RerankScore: types.Float(0.9)},
		{ID: "b", RerankScore: types.Float(0.8)},
		{ID: "c", RerankScore: types.Float(0.7)},
	}

	f := NewDiversityFilter(0.7, nil)
	out := f.Filter(chunks, 2)

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
}

func TestFilterReturnsAllWhenUnderTarget(t *testing.T) {
	chunks := []types.CandidateChunk{
		{ID: "a", RerankScore: types.Float(0.9), Embedding: []float64{1, 0}},
	}

	f := NewDiversityFilter(0.7, nil)
	out := f.Filter(chunks, 5)

	assert.Len(t, out, 1)
}

func TestFilterDeterministicOnTies(t *testing.T) {
	chunks := []types.CandidateChunk{
		{ID: "a", RerankScore: types.Float(0.5), Embedding: []float64{1, 0}},
		{ID: "b", RerankScore: types.Float(0.5), Embedding: []float64{0, 1}},
		{ID: "c", RerankScore: types.Float(0.5), Embedding: []float64{0, 0.5}},
	}

	f := NewDiversityFilter(0.7, nil)
	first := f.Filter(chunks, 2)
	second := f.Filter(chunks, 2)

	assert.Equal(t, first, second)
	assert.Equal(t, "a", first[0].ID)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float64{1, 0}, []float64{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float64{1, 0}, []float64{1}))
	assert.Equal(t, 0.0, cosine(nil, nil))
}
