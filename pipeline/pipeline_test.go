package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextlab/ragpipe/cache"
	"github.com/contextlab/ragpipe/config"
	"github.com/contextlab/ragpipe/internal/metrics"
	"github.com/contextlab/ragpipe/providers"
	"github.com/contextlab/ragpipe/tokenizer"
	"github.com/contextlab/ragpipe/types"
)

type stubEmbedding struct {
	vector []float64
	errs   []error
	calls  int
}

func (s *stubEmbedding) Embed(context.Context, string) ([]float64, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return s.vector, nil
}

func (s *stubEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		vec, err := s.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (s *stubEmbedding) Name() string { return "stub-embedding" }

func fastTestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Recovery.InitialDelay = time.Millisecond
	cfg.Recovery.MaxDelay = 5 * time.Millisecond
	cfg.Recovery.RateLimitDelay = time.Millisecond
	cfg.Recovery.MaxElapsed = time.Second
	return cfg
}

func seedCorpus(t *testing.T) (*providers.MemoryVectorStore, *providers.MemoryLexicalIndex) {
	t.Helper()

	docs := []providers.VectorDocument{
		{
			ID:        "ai-1",
			Text:      "AI, or artificial intelligence, is the simulation of human intelligence by machines.",
			Embedding: []float64{1, 0, 0},
			Metadata:  map[string]any{"document_id": "doc-ai"},
		},
		{
			ID:        "ai-2",
			Text:      "Modern artificial intelligence systems learn statistical patterns from large datasets.",
			Embedding: []float64{0.95, 0.05, 0},
			Metadata:  map[string]any{"document_id": "doc-ai"},
		},
		{
			ID:        "cooking-1",
			Text:      "Slow roasting vegetables concentrates their natural sugars and deepens flavor.",
			Embedding: []float64{0, 1, 0},
			Metadata:  map[string]any{"document_id": "doc-cooking"},
		},
	}

	vec := providers.NewMemoryVectorStore(nil)
	require.NoError(t, vec.Upsert(context.Background(), docs))

	lex := providers.NewMemoryLexicalIndex(nil)
	for _, d := range docs {
		lex.Index(d.ID, d.Text, d.Metadata)
	}
	return vec, lex
}

func newTestPipeline(t *testing.T, deps Deps) *Pipeline {
	t.Helper()

	p, err := New(fastTestConfig(), deps, nil)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestRetrieveContextEndToEnd(t *testing.T) {
	vec, lex := seedCorpus(t)
	p := newTestPipeline(t, Deps{
		Embedding: &stubEmbedding{vector: []float64{1, 0, 0}},
		Vector:    vec,
		Lexical:   lex,
	})

	window, err := p.RetrieveContext(context.Background(),
		types.Query{Text: "What is AI?"},
		types.RetrieveOptions{EnableDocumentSearch: true, UseAdaptiveContextSelection: true},
	)

	require.NoError(t, err)
	require.NotEmpty(t, window.Chunks)
	assert.False(t, window.Degraded)
	assert.False(t, window.CacheHit)

	// 简单事实型查询自适应到小目标数
	assert.LessOrEqual(t, len(window.Chunks), 4)
	assert.Equal(t, "ai-1", window.Chunks[0].ID)
	assert.LessOrEqual(t, window.Tokens.Total(), 4000)
	assert.NotEmpty(t, window.Sources)
}

func TestRetrieveContextVectorFailureDegrades(t *testing.T) {
	_, lex := seedCorpus(t)
	p := newTestPipeline(t, Deps{
		Embedding: &stubEmbedding{vector: []float64{1, 0, 0}},
		Vector:    &fakeVectorStore{err: types.NewError(types.ErrServerError, "vector store down").WithRetryable(true)},
		Lexical:   lex,
	})

	window, err := p.RetrieveContext(context.Background(),
		types.Query{Text: "What is AI?"},
		types.RetrieveOptions{EnableDocumentSearch: true, UseAdaptiveContextSelection: true},
	)

	require.NoError(t, err)
	assert.True(t, window.Degraded)
	assert.Contains(t, window.DegradedReason, "vector search unavailable")
	require.NotEmpty(t, window.Chunks)
	for _, c := range window.Chunks {
		assert.Equal(t, types.OriginLexical, c.Source.Origin)
	}

	attempts := p.RecoveryHistoryByService("vector_search")
	assert.NotEmpty(t, attempts)
	assert.Equal(t, "server_error", attempts[0].ErrorCategory)
}

func TestRetrieveContextDocumentSearchDisabled(t *testing.T) {
	vec, lex := seedCorpus(t)
	embedding := &stubEmbedding{vector: []float64{1, 0, 0}}
	p := newTestPipeline(t, Deps{Embedding: embedding, Vector: vec, Lexical: lex})

	window, err := p.RetrieveContext(context.Background(),
		types.Query{Text: "artificial intelligence"},
		types.RetrieveOptions{UseAdaptiveContextSelection: true},
	)

	require.NoError(t, err)
	// 文档检索关闭：向量与关键词来源都不查询，也不算降级
	assert.Zero(t, embedding.calls)
	assert.Empty(t, window.Chunks)
	assert.False(t, window.Degraded)
}

func TestRetrieveContextLexicalOnlyConfigNotDegraded(t *testing.T) {
	_, lex := seedCorpus(t)
	p := newTestPipeline(t, Deps{Lexical: lex})

	window, err := p.RetrieveContext(context.Background(),
		types.Query{Text: "artificial intelligence simulation"},
		types.RetrieveOptions{EnableDocumentSearch: true, UseAdaptiveContextSelection: true},
	)

	require.NoError(t, err)
	// 未配置向量能力是部署选择，不是依赖故障
	assert.False(t, window.Degraded)
	require.NotEmpty(t, window.Chunks)
	for _, c := range window.Chunks {
		assert.Equal(t, types.OriginLexical, c.Source.Origin)
	}
}

func TestRetrieveContextEmbeddingFailureFallsBackToLexical(t *testing.T) {
	vec, lex := seedCorpus(t)
	embedding := &stubEmbedding{
		vector: []float64{1, 0, 0},
		errs:   []error{types.NewError(types.ErrAuth, "bad key")},
	}
	p := newTestPipeline(t, Deps{Embedding: embedding, Vector: vec, Lexical: lex})

	window, err := p.RetrieveContext(context.Background(),
		types.Query{Text: "What is AI?"},
		types.RetrieveOptions{EnableDocumentSearch: true, UseAdaptiveContextSelection: true},
	)

	require.NoError(t, err)
	assert.True(t, window.Degraded)
	assert.Contains(t, window.DegradedReason, "embedding unavailable")
	require.NotEmpty(t, window.Chunks)
	for _, c := range window.Chunks {
		assert.Equal(t, types.OriginLexical, c.Source.Origin)
	}
}

func TestRetrieveContextRecoversFromRateLimit(t *testing.T) {
	vec, lex := seedCorpus(t)
	embedding := &stubEmbedding{
		vector: []float64{1, 0, 0},
		errs:   []error{types.NewError(types.ErrRateLimit, "slow down").WithRetryable(true), nil},
	}
	p := newTestPipeline(t, Deps{Embedding: embedding, Vector: vec, Lexical: lex})

	window, err := p.RetrieveContext(context.Background(),
		types.Query{Text: "What is AI?"},
		types.RetrieveOptions{EnableDocumentSearch: true, UseAdaptiveContextSelection: true},
	)

	require.NoError(t, err)
	assert.False(t, window.Degraded)
	assert.Equal(t, 2, embedding.calls)

	attempts := p.RecoveryHistoryByService("embedding")
	require.NotEmpty(t, attempts)
	assert.Equal(t, "WAIT", attempts[0].Strategy)
}

func TestRetrieveContextCacheIdempotent(t *testing.T) {
	vec, lex := seedCorpus(t)
	layer := cache.NewLayer(cache.NewMemoryStore(time.Minute), "", time.Minute, 16, nil)
	p := newTestPipeline(t, Deps{
		Embedding: &stubEmbedding{vector: []float64{1, 0, 0}},
		Vector:    vec,
		Lexical:   lex,
		Cache:     layer,
	})

	opts := types.RetrieveOptions{EnableDocumentSearch: true, UseAdaptiveContextSelection: true}
	query := types.Query{Text: "What is AI?"}

	first, err := p.RetrieveContext(context.Background(), query, opts)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := p.RetrieveContext(context.Background(), query, opts)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Chunks, second.Chunks)
	assert.Equal(t, first.Tokens, second.Tokens)
	assert.Equal(t, first.Rationale, second.Rationale)

	// 规范化等价的查询命中同一条缓存
	third, err := p.RetrieveContext(context.Background(), types.Query{Text: "  what   is ai?  "}, opts)
	require.NoError(t, err)
	assert.True(t, third.CacheHit)

	stats := p.CacheStats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestRetrieveContextInvalidationForcesMiss(t *testing.T) {
	vec, lex := seedCorpus(t)
	layer := cache.NewLayer(cache.NewMemoryStore(time.Minute), "", time.Minute, 16, nil)
	p := newTestPipeline(t, Deps{
		Embedding: &stubEmbedding{vector: []float64{1, 0, 0}},
		Vector:    vec,
		Lexical:   lex,
		Cache:     layer,
	})

	opts := types.RetrieveOptions{EnableDocumentSearch: true, UseAdaptiveContextSelection: true}
	query := types.Query{Text: "What is AI?"}

	_, err := p.RetrieveContext(context.Background(), query, opts)
	require.NoError(t, err)

	versionBefore := p.CacheVersion()
	p.Invalidate(context.Background(), cache.ReasonDocumentUpdated, "doc-ai")
	assert.Equal(t, versionBefore+1, p.CacheVersion())

	window, err := p.RetrieveContext(context.Background(), query, opts)
	require.NoError(t, err)
	assert.False(t, window.CacheHit)

	history := p.InvalidationHistory()
	require.Len(t, history, 1)
	assert.Equal(t, cache.ReasonDocumentUpdated, history[0].Reason)
	assert.Equal(t, "doc-ai", history[0].DocumentID)
}

func TestRetrieveContextFiltersByDocument(t *testing.T) {
	vec, lex := seedCorpus(t)
	p := newTestPipeline(t, Deps{
		Embedding: &stubEmbedding{vector: []float64{1, 0, 0}},
		Vector:    vec,
		Lexical:   lex,
	})

	window, err := p.RetrieveContext(context.Background(),
		types.Query{Text: "What is AI?"},
		types.RetrieveOptions{
			EnableDocumentSearch:        true,
			UseAdaptiveContextSelection: true,
			Filters:                     types.QueryFilters{DocumentIDs: []string{"doc-cooking"}},
		},
	)

	require.NoError(t, err)
	for _, c := range window.Chunks {
		assert.Equal(t, "cooking-1", c.ID)
	}
}

func TestRetrieveContextReportsRecoveryMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("ragpipe", reg, nil)

	_, lex := seedCorpus(t)
	p := newTestPipeline(t, Deps{
		Embedding: &stubEmbedding{vector: []float64{1, 0, 0}},
		Vector:    &fakeVectorStore{err: types.NewError(types.ErrServerError, "vector store down").WithRetryable(true)},
		Lexical:   lex,
		Metrics:   collector,
	})

	_, err := p.RetrieveContext(context.Background(),
		types.Query{Text: "What is AI?"},
		types.RetrieveOptions{EnableDocumentSearch: true, UseAdaptiveContextSelection: true},
	)
	require.NoError(t, err)

	// 向量来源故障的恢复尝试、调用计数与熔断器状态都进入注册表
	count, err := testutil.GatherAndCount(reg,
		"ragpipe_recovery_attempts_total",
		"ragpipe_provider_calls_total",
		"ragpipe_circuit_breaker_state",
	)
	require.NoError(t, err)
	assert.Greater(t, count, 0)
}

func TestNewRequiresRetrievalSource(t *testing.T) {
	_, err := New(fastTestConfig(), Deps{}, nil)

	require.Error(t, err)
	var typed *types.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, types.ErrConfig, typed.Code)
}

func TestRetrieveContextEmbedsCandidatesForDiversity(t *testing.T) {
	vec, lex := seedCorpus(t)
	embedding := &stubEmbedding{vector: []float64{1, 0, 0}}
	p := newTestPipeline(t, Deps{Embedding: embedding, Vector: vec, Lexical: lex})

	window, err := p.RetrieveContext(context.Background(),
		types.Query{Text: "What is AI?"},
		types.RetrieveOptions{EnableDocumentSearch: true, MaxChunks: 1},
	)

	require.NoError(t, err)
	require.Len(t, window.Chunks, 1)
	assert.Equal(t, "ai-1", window.Chunks[0].ID)

	// 候选超出目标数时在多样性过滤前批量补齐向量
	assert.NotEmpty(t, window.Chunks[0].Embedding)
	// 查询向量 1 次，两个入围候选各 1 次
	assert.Equal(t, 3, embedding.calls)
}

func TestNewRegistersModelTokenizers(t *testing.T) {
	vec, lex := seedCorpus(t)
	newTestPipeline(t, Deps{Vector: vec, Lexical: lex})

	tok, err := tokenizer.Get("gpt-4o")
	require.NoError(t, err)
	assert.Contains(t, tok.Name(), "tiktoken")
}

func TestRetrieveContextFixedChunkCount(t *testing.T) {
	vec, lex := seedCorpus(t)
	p := newTestPipeline(t, Deps{
		Embedding: &stubEmbedding{vector: []float64{1, 0, 0}},
		Vector:    vec,
		Lexical:   lex,
	})

	window, err := p.RetrieveContext(context.Background(),
		types.Query{Text: "What is AI?"},
		types.RetrieveOptions{EnableDocumentSearch: true, MaxChunks: 1},
	)

	require.NoError(t, err)
	assert.LessOrEqual(t, len(window.Chunks), 1)
}
