package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextlab/ragpipe/types"
)

const dedupBaseText = "Vector databases store high dimensional embeddings and support approximate " +
	"nearest neighbor search, which makes them a natural fit for retrieval augmented " +
	"generation systems that need low latency semantic lookup at scale"

func TestDedupExactDuplicateKeepsHigherScored(t *testing.T) {
	chunks := []types.CandidateChunk{
		{ID: "low", Text: dedupBaseText, RerankScore: types.Float(0.5)},
		{ID: "high", Text: "  " + dedupBaseText + "  ", RerankScore: types.Float(0.9)},
	}

	d := NewDeduplicator(0.92, nil)
	out := d.Dedup(chunks)

	require.Len(t, out, 1)
	assert.Equal(t, "high", out[0].ID)
}

func TestDedupNearDuplicateKeepsHigherScored(t *testing.T) {
	chunks := []types.CandidateChunk{
		{ID: "near-dup", Text: dedupBaseText + " today", RerankScore: types.Float(0.4)},
		{ID: "original", Text: dedupBaseText, RerankScore: types.Float(0.8)},
		{ID: "distinct", Text: "Circuit breakers shield downstream services from cascading failures during partial outages", RerankScore: types.Float(0.6)},
	}

	d := NewDeduplicator(0.92, nil)
	out := d.Dedup(chunks)

	require.Len(t, out, 2)
	assert.Equal(t, "original", out[0].ID)
	assert.Equal(t, "distinct", out[1].ID)
}

func TestDedupCaseInsensitiveHash(t *testing.T) {
	chunks := []types.CandidateChunk{
		{ID: "upper", Text: "REDIS CACHING LAYER", RerankScore: types.Float(0.9)},
		{ID: "lower", Text: "redis caching layer", RerankScore: types.Float(0.3)},
	}

	d := NewDeduplicator(0.92, nil)
	out := d.Dedup(chunks)

	require.Len(t, out, 1)
	assert.Equal(t, "upper", out[0].ID)
}

func TestDedupDissimilarTextsAllKept(t *testing.T) {
	chunks := []types.CandidateChunk{
		{ID: "a", Text: "token budgets bound the assembled context window", RerankScore: types.Float(0.9)},
		{ID: "b", Text: "query expansion improves recall for terse inputs", RerankScore: types.Float(0.8)},
		{ID: "c", Text: "reciprocal rank fusion needs no trained scorer", RerankScore: types.Float(0.7)},
	}

	d := NewDeduplicator(0.92, nil)
	assert.Len(t, d.Dedup(chunks), 3)
}

func TestDedupSingleChunkUntouched(t *testing.T) {
	chunks := []types.CandidateChunk{{ID: "only", Text: "one"}}

	d := NewDeduplicator(0.92, nil)
	assert.Equal(t, chunks, d.Dedup(chunks))
}

func TestJaccardOnAppendedWord(t *testing.T) {
	a := wordShingles(dedupBaseText, shingleSize)
	b := wordShingles(dedupBaseText+" today", shingleSize)

	assert.GreaterOrEqual(t, jaccard(a, b), 0.92)
}

func TestWordShinglesShortText(t *testing.T) {
	shingles := wordShingles("two words", shingleSize)

	require.Len(t, shingles, 1)
	_, ok := shingles["two words"]
	assert.True(t, ok)
}
