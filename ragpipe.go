// Package ragpipe provides a top-level convenience entry point for building
// a retrieval pipeline with minimal boilerplate.
//
// Usage:
//
//	import "github.com/contextlab/ragpipe"
//
//	p, err := ragpipe.New()
//	p, err := ragpipe.New(ragpipe.WithVectorStore(store), ragpipe.WithEmbedding(emb))
//
// Without options the pipeline runs fully in-process: an in-memory vector
// store, a BM25 keyword index, and an in-memory cache. Supply providers to
// swap any of them for real backends.
package ragpipe

import (
	"go.uber.org/zap"

	"github.com/contextlab/ragpipe/cache"
	"github.com/contextlab/ragpipe/config"
	"github.com/contextlab/ragpipe/pipeline"
	"github.com/contextlab/ragpipe/providers"
)

// Option configures the pipeline created by [New].
type Option func(*builder)

type builder struct {
	cfg    *config.Config
	deps   pipeline.Deps
	logger *zap.Logger
}

// New creates a [pipeline.Pipeline] with sensible defaults. Every dependency
// not supplied via options falls back to an in-process implementation.
func New(opts ...Option) (*pipeline.Pipeline, error) {
	b := &builder{cfg: config.DefaultConfig()}
	for _, opt := range opts {
		opt(b)
	}

	if b.deps.Vector == nil && b.deps.Lexical == nil {
		b.deps.Vector = providers.NewMemoryVectorStore(b.logger)
		b.deps.Lexical = providers.NewMemoryLexicalIndex(b.logger)
	}
	if b.deps.Cache == nil && b.cfg.Cache.Enabled {
		b.deps.Cache = cache.NewLayer(
			cache.NewMemoryStore(b.cfg.Cache.DefaultTTL),
			b.cfg.Cache.KeyPrefix,
			b.cfg.Cache.DefaultTTL,
			b.cfg.Cache.InvalidationHistory,
			b.logger,
		)
	}

	return pipeline.New(b.cfg, b.deps, b.logger)
}

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(b *builder) { b.cfg = cfg }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *builder) { b.logger = logger }
}

// WithEmbedding sets the embedding provider used for vector search.
func WithEmbedding(p providers.EmbeddingProvider) Option {
	return func(b *builder) { b.deps.Embedding = p }
}

// WithVectorStore sets the vector store backend.
func WithVectorStore(s providers.VectorStore) Option {
	return func(b *builder) { b.deps.Vector = s }
}

// WithLexicalIndex sets the keyword index backend.
func WithLexicalIndex(idx providers.LexicalIndex) Option {
	return func(b *builder) { b.deps.Lexical = idx }
}

// WithReranker sets the cross-scoring provider. Without one the pipeline
// falls back to local reciprocal-rank fusion.
func WithReranker(p providers.RerankProvider) Option {
	return func(b *builder) { b.deps.Rerank = p }
}

// WithWebSearch sets the web search provider.
func WithWebSearch(p providers.WebSearchProvider) Option {
	return func(b *builder) { b.deps.WebSearch = p }
}

// WithLLM sets the language model used for query expansion.
func WithLLM(p providers.LanguageModelProvider) Option {
	return func(b *builder) { b.deps.LLM = p }
}

// WithCache sets the cache layer. Pass nil to disable caching entirely.
func WithCache(layer *cache.Layer) Option {
	return func(b *builder) {
		b.deps.Cache = layer
		if layer == nil {
			b.cfg.Cache.Enabled = false
		}
	}
}
