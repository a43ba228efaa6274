package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/contextlab/ragpipe/types"
)

func testAnalyzer() *Analyzer {
	return NewAnalyzer(AnalyzerConfig{DefaultChunks: 6, MinChunks: 3, MaxChunks: 13}, nil)
}

func TestAnalyzeShortFactualQuery(t *testing.T) {
	a := testAnalyzer()

	analysis := a.Analyze("What is AI?")

	assert.Equal(t, types.LengthShort, analysis.LengthClass)
	assert.Equal(t, 2, analysis.KeywordCount)
	assert.Equal(t, types.ComplexitySimple, analysis.IntentComplexity)
	assert.Equal(t, types.QueryFactual, analysis.QueryType)
	assert.GreaterOrEqual(t, analysis.TargetChunkCount, 3)
	assert.LessOrEqual(t, analysis.TargetChunkCount, 4)
}

func TestAnalyzeLongExploratoryQuery(t *testing.T) {
	a := testAnalyzer()

	analysis := a.Analyze("Explain in detail how neural networks and backpropagation work across different architectures")

	assert.Equal(t, types.LengthLong, analysis.LengthClass)
	assert.Equal(t, types.ComplexityComplex, analysis.IntentComplexity)
	assert.Equal(t, types.QueryExploratory, analysis.QueryType)
	assert.GreaterOrEqual(t, analysis.TargetChunkCount, 10)
	assert.LessOrEqual(t, analysis.TargetChunkCount, 13)
}

func TestAnalyzeEmptyQuery(t *testing.T) {
	a := testAnalyzer()

	analysis := a.Analyze("")

	assert.Equal(t, types.ComplexitySimple, analysis.IntentComplexity)
	assert.Equal(t, types.QueryUnknown, analysis.QueryType)
	assert.Equal(t, 3, analysis.TargetChunkCount)
}

func TestAnalyzeProceduralQuery(t *testing.T) {
	a := testAnalyzer()

	analysis := a.Analyze("How to configure redis persistence")
	assert.Equal(t, types.QueryProcedural, analysis.QueryType)
}

func TestAnalyzeDeterministic(t *testing.T) {
	a := testAnalyzer()

	first := a.Analyze("difference between tcp and udp")
	second := a.Analyze("difference between tcp and udp")
	assert.Equal(t, first, second)
}

func TestTargetChunkCountBounds(t *testing.T) {
	a := testAnalyzer()

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 40).Draw(t, "words")
		words := make([]string, n)
		for i := range words {
			words[i] = rapid.SampledFrom([]string{
				"neural", "network", "database", "cache", "explain", "what",
				"kubernetes", "performance", "the", "is", "of", "and",
			}).Draw(t, "word")
		}

		analysis := a.Analyze(strings.Join(words, " "))

		// 目标数永不跌破下限、永不越过上限
		if analysis.TargetChunkCount < 3 || analysis.TargetChunkCount > 13 {
			t.Fatalf("target %d out of [3,13]", analysis.TargetChunkCount)
		}
	})
}
