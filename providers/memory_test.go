package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextlab/ragpipe/types"
)

func TestMemoryVectorStoreSearch(t *testing.T) {
	store := NewMemoryVectorStore(nil)
	ctx := context.Background()

	err := store.Upsert(ctx, []VectorDocument{
		{ID: "a", Text: "机器学习基础", Embedding: []float64{1, 0, 0}},
		{ID: "b", Text: "深度学习进阶", Embedding: []float64{0.9, 0.1, 0}},
		{ID: "c", Text: "烹饪技巧", Embedding: []float64{0, 0, 1}},
	})
	require.NoError(t, err)

	hits, err := store.Search(ctx, []float64{1, 0, 0}, types.QueryFilters{}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "b", hits[1].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestMemoryVectorStoreFilters(t *testing.T) {
	store := NewMemoryVectorStore(nil)
	ctx := context.Background()

	err := store.Upsert(ctx, []VectorDocument{
		{ID: "a", Embedding: []float64{1, 0}, Metadata: map[string]any{"document_id": "doc-1"}},
		{ID: "b", Embedding: []float64{1, 0}, Metadata: map[string]any{"document_id": "doc-2"}},
	})
	require.NoError(t, err)

	hits, err := store.Search(ctx, []float64{1, 0}, types.QueryFilters{DocumentIDs: []string{"doc-2"}}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)
}

func TestMemoryVectorStoreDelete(t *testing.T) {
	store := NewMemoryVectorStore(nil)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []VectorDocument{
		{ID: "a", Embedding: []float64{1, 0}},
	}))
	require.NoError(t, store.Delete(ctx, []string{"a"}))

	hits, err := store.Search(ctx, []float64{1, 0}, types.QueryFilters{}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryLexicalIndexBM25(t *testing.T) {
	idx := NewMemoryLexicalIndex(nil)
	ctx := context.Background()

	idx.Index("a", "go concurrency patterns with channels", nil)
	idx.Index("b", "python data science tutorial", nil)
	idx.Index("c", "go channels and goroutines explained with channels", nil)

	hits, err := idx.Search(ctx, "go channels", types.QueryFilters{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	// 文档 c 中 channels 词频更高
	assert.Equal(t, "c", hits[0].ID)
	assert.Equal(t, "a", hits[1].ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestMemoryLexicalIndexNoMatch(t *testing.T) {
	idx := NewMemoryLexicalIndex(nil)
	idx.Index("a", "hello world", nil)

	hits, err := idx.Search(context.Background(), "quantum physics", types.QueryFilters{}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float64{1, 2}, []float64{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float64{1}, []float64{1, 2}))
	assert.Equal(t, 0.0, cosineSimilarity(nil, nil))
}
