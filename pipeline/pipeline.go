package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/contextlab/ragpipe/cache"
	"github.com/contextlab/ragpipe/config"
	"github.com/contextlab/ragpipe/internal/metrics"
	"github.com/contextlab/ragpipe/internal/pool"
	"github.com/contextlab/ragpipe/providers"
	"github.com/contextlab/ragpipe/recovery"
	"github.com/contextlab/ragpipe/tokenizer"
	"github.com/contextlab/ragpipe/types"
)

// Deps 管线的外部依赖。除 VectorStore 与 LexicalIndex 至少其一外，
// 其余均可为 nil，对应能力自动关闭。
type Deps struct {
	Embedding providers.EmbeddingProvider
	Vector    providers.VectorStore
	Lexical   providers.LexicalIndex
	WebSearch providers.WebSearchProvider
	Rerank    providers.RerankProvider
	LLM       providers.LanguageModelProvider

	// Cache 为 nil 时不启用缓存层
	Cache *cache.Layer
	// Metrics 为 nil 时不上报指标
	Metrics *metrics.Collector
}

// Pipeline 是检索管线的编排器，对外唯一入口 RetrieveContext。
// 所有阶段对并发请求无共享可变状态，缓存与恢复历史自带并发安全。
type Pipeline struct {
	cfg    config.PipelineConfig
	deps   Deps
	logger *zap.Logger

	analyzer    *Analyzer
	expander    *Expander
	optimizer   *ThresholdOptimizer
	retriever   *HybridRetriever
	reranker    *Reranker
	diversity   *DiversityFilter
	dedup       *Deduplicator
	assembler   *Assembler
	coordinator *recovery.Coordinator
	workers     *pool.WorkerPool
}

// 进程内只需注册一次模型分词器
var registerTokenizersOnce sync.Once

// New 创建检索管线
func New(cfg *config.Config, deps Deps, logger *zap.Logger) (*Pipeline, error) {
	if deps.Vector == nil && deps.Lexical == nil {
		return nil, types.NewError(types.ErrConfig, "at least one of vector store or lexical index is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pc := cfg.Pipeline

	coordinator := recovery.NewCoordinator(recovery.Config{
		MaxRetries: cfg.Recovery.MaxRetries,
		Backoff: recovery.BackoffPolicy{
			InitialDelay: cfg.Recovery.InitialDelay,
			MaxDelay:     cfg.Recovery.MaxDelay,
			Multiplier:   2.0,
			Jitter:       true,
		},
		RateLimitDelay: cfg.Recovery.RateLimitDelay,
		MaxElapsed:     cfg.Recovery.MaxElapsed,
		Breaker: recovery.BreakerConfig{
			Threshold:    cfg.Recovery.BreakerThreshold,
			ResetTimeout: cfg.Recovery.BreakerResetTimeout,
		},
		HistorySize: cfg.Recovery.HistorySize,
	}, logger)
	if deps.Metrics != nil {
		coordinator.SetRecorder(deps.Metrics)
	}

	registerTokenizersOnce.Do(tokenizer.RegisterOpenAITokenizers)
	tok := tokenizer.GetOrEstimator(pc.TokenizerModel)

	p := &Pipeline{
		cfg:    pc,
		deps:   deps,
		logger: logger.With(zap.String("component", "pipeline")),

		analyzer: NewAnalyzer(AnalyzerConfig{
			DefaultChunks: pc.DefaultChunks,
			MinChunks:     pc.MinChunks,
			MaxChunks:     pc.MaxChunks,
		}, logger),
		expander: NewExpander(ExpanderConfig{
			Enabled:             pc.ExpansionEnabled,
			MaxExpansions:       pc.MaxExpansions,
			ConfidenceThreshold: pc.ExpansionConfidence,
			CacheTTL:            pc.ExpansionCacheTTL,
		}, deps.LLM, coordinator, logger),
		optimizer: NewThresholdOptimizer(),
		retriever: NewHybridRetriever(HybridConfig{
			VectorWeight:  pc.VectorWeight,
			LexicalWeight: pc.LexicalWeight,
			SearchTimeout: pc.SearchTimeout,
		}, deps.Vector, deps.Lexical, coordinator, logger),
		reranker: NewReranker(RerankerConfig{
			Strategy:  RerankStrategy(pc.RerankStrategy),
			TopK:      pc.RerankTopK,
			BatchSize: pc.RerankBatch,
		}, deps.Rerank, coordinator, logger),
		diversity: NewDiversityFilter(pc.DiversityLambda, logger),
		dedup:     NewDeduplicator(pc.DedupThreshold, logger),
		assembler: NewAssembler(AssemblerConfig{
			MinTruncateRatio: pc.MinTruncateRatio,
		}, tok, logger),
		coordinator: coordinator,
		workers: pool.New(pool.Config{
			Workers:       cfg.Pool.Workers,
			QueueSize:     cfg.Pool.QueueSize,
			RatePerSecond: cfg.Pool.RatePerSecond,
			RateBurst:     cfg.Pool.RateBurst,
		}),
	}

	return p, nil
}

// RetrieveContext 执行完整检索管线并返回上下文窗口。
// 截止时间到期时返回已有的部分结果并标记降级，而非报错。
func (p *Pipeline) RetrieveContext(ctx context.Context, query types.Query, opts types.RetrieveOptions) (*types.ContextWindow, error) {
	filters := opts.Filters
	if filters.Empty() {
		filters = query.Filters
	}

	// 缓存读穿
	if p.deps.Cache != nil {
		if window, ok := p.deps.Cache.Get(ctx, query.Text, filters); ok {
			p.recordCache(true)
			p.recordRetrieval("cached", window)
			return window, nil
		}
		p.recordCache(false)
	}

	analysis := p.timedAnalyze(query.Text)
	target := p.effectiveTarget(analysis, query, opts)
	budget := p.effectiveBudget(query, opts)

	expanded := p.timedExpand(ctx, query.Text)
	th := p.optimizer.Optimize(analysis.QueryType)
	if opts.MaxDocumentChunks > 0 && opts.MaxDocumentChunks < th.TopK {
		th.TopK = opts.MaxDocumentChunks
	}

	embedding, embedFailed := p.embedQuery(ctx, expanded.Expanded, opts)

	// 文档检索关闭时两类文档来源（向量与关键词）都不查询
	var result HybridResult
	if opts.EnableDocumentSearch {
		var err error
		result, err = p.retrieve(ctx, expanded.Expanded, embedding, filters, th)
		if err != nil {
			return nil, err
		}
	}

	for i := range result.Chunks {
		if result.Chunks[i].FusedScore != nil {
			p.optimizer.Observe(*result.Chunks[i].FusedScore)
		}
	}

	chunks := result.Chunks
	if opts.EnableWebSearch && p.deps.WebSearch != nil {
		chunks = append(chunks, p.webSearch(ctx, query.Text, opts)...)
	}

	// 截止时间到期：跳过精排直接组装已有结果
	if ctx.Err() != nil {
		window := p.assembler.Assemble(query.Text, analysis, chunks, budget, target)
		window.Degraded = true
		window.DegradedReason = "deadline expired, refinement skipped"
		p.recordRetrieval("degraded", window)
		return window, nil
	}

	chunks = p.timedRerank(ctx, expanded.Expanded, chunks)
	if len(chunks) > target {
		chunks = p.embedCandidates(ctx, chunks)
	}
	chunks = p.diversity.Filter(chunks, target)
	chunks = p.dedup.Dedup(chunks)

	start := time.Now()
	window := p.assembler.Assemble(query.Text, analysis, chunks, budget, target)
	p.recordStage("assemble", time.Since(start))

	if result.Degraded {
		window.Degraded = true
		window.DegradedReason = result.DegradedReason
	} else if embedFailed {
		window.Degraded = true
		window.DegradedReason = "query embedding unavailable, lexical results only"
	}

	if p.deps.Cache != nil {
		p.deps.Cache.Put(ctx, query.Text, filters, window)
	}

	status := "ok"
	if window.Degraded {
		status = "degraded"
	}
	p.recordRetrieval(status, window)

	return window, nil
}

func (p *Pipeline) timedAnalyze(text string) types.QueryAnalysis {
	start := time.Now()
	analysis := p.analyzer.Analyze(text)
	p.recordStage("analyze", time.Since(start))
	return analysis
}

func (p *Pipeline) timedExpand(ctx context.Context, text string) ExpandedQuery {
	start := time.Now()
	expanded := p.expander.Expand(ctx, text)
	p.recordStage("expand", time.Since(start))
	return expanded
}

func (p *Pipeline) timedRerank(ctx context.Context, query string, chunks []types.CandidateChunk) []types.CandidateChunk {
	start := time.Now()
	out := p.reranker.Rerank(ctx, query, chunks)
	p.recordStage("rerank", time.Since(start))
	return out
}

// embedQuery 计算查询向量。失败不致命：返回 nil 并标记失败，
// 检索对本次请求降级为纯关键词。未配置向量能力时不算失败。
func (p *Pipeline) embedQuery(ctx context.Context, text string, opts types.RetrieveOptions) ([]float64, bool) {
	if p.deps.Embedding == nil || p.deps.Vector == nil || !opts.EnableDocumentSearch {
		return nil, false
	}

	var embedding []float64
	_, err := p.coordinator.Execute(ctx, "embedding", func(ctx context.Context) error {
		vec, err := p.deps.Embedding.Embed(ctx, text)
		if err != nil {
			return err
		}
		embedding = vec
		return nil
	}, nil)
	if err != nil {
		p.logger.Warn("query embedding failed, vector search disabled for this request", zap.Error(err))
		return nil, true
	}
	return embedding, false
}

// embedCandidates 为进入多样性过滤的候选补齐向量。
// 失败不致命：缺向量时 MMR 退化为按分数取前 N。
func (p *Pipeline) embedCandidates(ctx context.Context, chunks []types.CandidateChunk) []types.CandidateChunk {
	if p.deps.Embedding == nil || len(chunks) == 0 {
		return chunks
	}

	missing := make([]int, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	for i := range chunks {
		if len(chunks[i].Embedding) == 0 {
			missing = append(missing, i)
			texts = append(texts, chunks[i].Text)
		}
	}
	if len(missing) == 0 {
		return chunks
	}

	var vectors [][]float64
	_, err := p.coordinator.Execute(ctx, "embedding", func(ctx context.Context) error {
		vs, err := p.deps.Embedding.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		vectors = vs
		return nil
	}, nil)
	if err != nil || len(vectors) != len(missing) {
		p.logger.Warn("candidate embedding failed, diversity filter falls back to rank order", zap.Error(err))
		return chunks
	}

	for i, idx := range missing {
		chunks[idx].Embedding = vectors[i]
	}
	return chunks
}

// retrieve 经工作池执行混合检索，统一限流外部调用
func (p *Pipeline) retrieve(ctx context.Context, queryText string, embedding []float64, filters types.QueryFilters, th Thresholds) (HybridResult, error) {
	start := time.Now()
	defer func() { p.recordStage("retrieve", time.Since(start)) }()

	var result HybridResult
	var retrieveErr error

	task := func(ctx context.Context) error {
		result, retrieveErr = p.retriever.Retrieve(ctx, queryText, embedding, filters, th)
		return retrieveErr
	}

	if p.workers != nil {
		if err := p.workers.SubmitWait(ctx, task); err != nil && retrieveErr == nil {
			return HybridResult{}, err
		}
	} else {
		_ = task(ctx)
	}

	return result, retrieveErr
}

// webSearch 网络搜索失败时回退为空结果，文档检索可独立继续
func (p *Pipeline) webSearch(ctx context.Context, query string, opts types.RetrieveOptions) []types.CandidateChunk {
	maxResults := opts.MaxWebResults
	if maxResults <= 0 {
		maxResults = p.cfg.MaxWebResults
	}

	var resp *providers.WebSearchResponse
	_, err := p.coordinator.Execute(ctx, "web_search", func(ctx context.Context) error {
		r, err := p.deps.WebSearch.Search(ctx, query, providers.WebSearchOptions{MaxResults: maxResults})
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, func(context.Context) error {
		resp = &providers.WebSearchResponse{}
		return nil
	})
	if err != nil || resp == nil {
		p.logger.Warn("web search unavailable", zap.Error(err))
		return nil
	}

	chunks := make([]types.CandidateChunk, 0, len(resp.Results))
	for _, r := range resp.Results {
		text := r.Content
		if text == "" {
			text = r.Snippet
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		chunks = append(chunks, types.CandidateChunk{
			ID: r.URL,
			Source: types.Source{
				Origin:   types.OriginWeb,
				SourceID: r.URL,
			},
			Text:       text,
			FusedScore: types.Float(r.Score),
			Metadata:   map[string]any{"title": r.Title, "url": r.URL},
		})
	}
	return chunks
}

func (p *Pipeline) effectiveTarget(analysis types.QueryAnalysis, query types.Query, opts types.RetrieveOptions) int {
	target := analysis.TargetChunkCount
	if !opts.UseAdaptiveContextSelection && opts.MaxChunks > 0 {
		target = opts.MaxChunks
	}

	minChunks := firstPositive(opts.MinChunks, query.MinChunks, p.cfg.MinChunks)
	maxChunks := firstPositive(opts.MaxChunks, query.MaxChunks, p.cfg.MaxChunks)
	// 显式上限低于默认下限时以上限为准
	if minChunks > maxChunks {
		minChunks = maxChunks
	}
	return clampInt(target, minChunks, maxChunks)
}

func (p *Pipeline) effectiveBudget(query types.Query, opts types.RetrieveOptions) int {
	return firstPositive(opts.TokenBudget, query.TokenBudget, p.cfg.TokenBudget)
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func (p *Pipeline) recordStage(stage string, d time.Duration) {
	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordStage(stage, d)
	}
}

func (p *Pipeline) recordCache(hit bool) {
	if p.deps.Metrics == nil {
		return
	}
	if hit {
		p.deps.Metrics.RecordCacheHit("context")
	} else {
		p.deps.Metrics.RecordCacheMiss("context")
	}
}

func (p *Pipeline) recordRetrieval(status string, window *types.ContextWindow) {
	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordRetrieval(status, len(window.Chunks), window.Tokens.Context)
	}
}

// =============================================================================
// 📊 可观测性与失效操作
// =============================================================================

// RecoveryStats 返回恢复统计汇总
func (p *Pipeline) RecoveryStats() recovery.Stats {
	return p.coordinator.Stats()
}

// RecoveryHistory 返回全部恢复尝试记录
func (p *Pipeline) RecoveryHistory() []types.RecoveryAttempt {
	return p.coordinator.History().All()
}

// RecoveryHistoryByService 返回指定服务的恢复记录
func (p *Pipeline) RecoveryHistoryByService(service string) []types.RecoveryAttempt {
	return p.coordinator.History().ByService(service)
}

// CacheStats 返回缓存层统计；未启用缓存时返回零值
func (p *Pipeline) CacheStats() cache.LayerStats {
	if p.deps.Cache == nil {
		return cache.LayerStats{}
	}
	return p.deps.Cache.Stats()
}

// CacheVersion 返回当前缓存版本号
func (p *Pipeline) CacheVersion() int64 {
	if p.deps.Cache == nil {
		return 0
	}
	return p.deps.Cache.Version()
}

// InvalidationHistory 返回缓存失效事件历史
func (p *Pipeline) InvalidationHistory() []cache.InvalidationTrigger {
	if p.deps.Cache == nil {
		return nil
	}
	return p.deps.Cache.History()
}

// Invalidate 触发缓存失效
func (p *Pipeline) Invalidate(ctx context.Context, reason cache.InvalidationReason, documentID string) {
	if p.deps.Cache == nil {
		return
	}
	p.deps.Cache.Invalidate(ctx, reason, documentID)
}

// Close 释放工作池等资源
func (p *Pipeline) Close() {
	if p.workers != nil {
		p.workers.Close()
	}
}
