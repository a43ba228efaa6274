package pipeline

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/contextlab/ragpipe/tokenizer"
	"github.com/contextlab/ragpipe/types"
)

// AssemblerConfig 上下文组装配置
type AssemblerConfig struct {
	// 截断后保留比例低于该值时整块丢弃而非截断
	MinTruncateRatio float64
}

// Assembler 在 token 预算与目标 chunk 数内贪心组装上下文窗口。
//
// 预算先于目标数耗尽时的策略：截断最后一个 chunk；若截断后
// 保留不足原文 MinTruncateRatio（默认 20%）则丢弃该 chunk。
type Assembler struct {
	config AssemblerConfig
	tok    tokenizer.Tokenizer
	logger *zap.Logger
}

// NewAssembler 创建组装器
func NewAssembler(config AssemblerConfig, tok tokenizer.Tokenizer, logger *zap.Logger) *Assembler {
	if config.MinTruncateRatio <= 0 {
		config.MinTruncateRatio = 0.2
	}
	if tok == nil {
		tok = tokenizer.NewEstimator("generic", 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		config: config,
		tok:    tok,
		logger: logger.With(zap.String("component", "assembler")),
	}
}

// Assemble 按分数降序贪心选取候选，直到达到目标数或预算耗尽。
// prompt 与 context 的 token 分开计账。
func (a *Assembler) Assemble(queryText string, analysis types.QueryAnalysis, chunks []types.CandidateChunk, tokenBudget, targetCount int) *types.ContextWindow {
	if targetCount <= 0 {
		targetCount = analysis.TargetChunkCount
	}
	if tokenBudget <= 0 {
		tokenBudget = 4000
	}

	promptTokens := a.countTokens(queryText)
	contextBudget := tokenBudget - promptTokens
	if contextBudget < 0 {
		contextBudget = 0
	}

	sorted := make([]types.CandidateChunk, len(chunks))
	copy(sorted, chunks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].BestScore() > sorted[j].BestScore()
	})

	window := &types.ContextWindow{}
	contextTokens := 0
	truncated := 0
	dropped := 0

	for _, chunk := range sorted {
		if len(window.Chunks) >= targetCount {
			break
		}

		chunkTokens := chunk.TokenCount
		if chunkTokens == 0 {
			chunkTokens = a.countTokens(chunk.Text)
		}
		chunk.TokenCount = chunkTokens

		remaining := contextBudget - contextTokens
		if remaining <= 0 {
			break
		}

		if chunkTokens > remaining {
			// 预算不足：截断或丢弃
			ratio := float64(remaining) / float64(chunkTokens)
			if ratio < a.config.MinTruncateRatio {
				dropped++
				break
			}

			text, err := a.tok.Truncate(chunk.Text, remaining)
			if err != nil {
				dropped++
				break
			}
			chunk.Text = text
			chunk.TokenCount = a.countTokens(text)
			truncated++
		}

		window.Chunks = append(window.Chunks, chunk)
		contextTokens += chunk.TokenCount
	}

	window.Tokens = types.TokenCounts{
		Prompt:  promptTokens,
		Context: contextTokens,
	}
	window.Sources = collectSources(window.Chunks)
	window.Rationale = a.rationale(analysis, len(window.Chunks), contextTokens, tokenBudget, truncated, dropped)

	a.logger.Debug("context assembled",
		zap.Int("chunks", len(window.Chunks)),
		zap.Int("context_tokens", contextTokens),
		zap.Int("truncated", truncated),
	)

	return window
}

func (a *Assembler) countTokens(text string) int {
	n, err := a.tok.CountTokens(text)
	if err != nil {
		// 分词失败时用估算器兜底
		n, _ = tokenizer.NewEstimator("generic", 0).CountTokens(text)
	}
	return n
}

func (a *Assembler) rationale(analysis types.QueryAnalysis, chunkCount, contextTokens, budget, truncated, dropped int) string {
	s := fmt.Sprintf("%s; assembled %d chunks, %d context tokens of %d budget",
		analysis.Rationale, chunkCount, contextTokens, budget)
	if truncated > 0 {
		s += fmt.Sprintf(", %d truncated", truncated)
	}
	if dropped > 0 {
		s += fmt.Sprintf(", %d dropped over budget", dropped)
	}
	return s
}

func collectSources(chunks []types.CandidateChunk) []string {
	seen := make(map[string]struct{})
	var sources []string
	for i := range chunks {
		origin := string(chunks[i].Source.Origin)
		if origin == "" {
			continue
		}
		if _, ok := seen[origin]; ok {
			continue
		}
		seen[origin] = struct{}{}
		sources = append(sources, origin)
	}
	sort.Strings(sources)
	return sources
}
