package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/contextlab/ragpipe/providers"
	"github.com/contextlab/ragpipe/recovery"
)

// ExpandedQuery 查询扩展结果
type ExpandedQuery struct {
	Original         string `json:"original"`
	Expanded         string `json:"expanded"`
	ExpansionApplied bool   `json:"expansion_applied"`
	Rationale        string `json:"rationale,omitempty"`
}

// ExpanderConfig 查询扩展配置
type ExpanderConfig struct {
	Enabled             bool
	MaxExpansions       int
	ConfidenceThreshold float64
	CacheTTL            time.Duration
}

// 规则回退用的同义词表
var synonymMap = map[string][]string{
	"ai":       {"artificial intelligence"},
	"ml":       {"machine learning"},
	"llm":      {"large language model"},
	"db":       {"database"},
	"k8s":      {"kubernetes"},
	"auth":     {"authentication"},
	"config":   {"configuration"},
	"docs":     {"documentation"},
	"repo":     {"repository"},
	"perf":     {"performance"},
	"js":       {"javascript"},
	"golang":   {"go"},
	"nn":       {"neural network"},
	"rag":      {"retrieval augmented generation"},
	"vector":   {"embedding"},
	"error":    {"failure", "exception"},
	"fast":     {"quick", "efficient"},
	"problem":  {"issue"},
	"tutorial": {"guide"},
}

// Expander 通过 LLM 扩展查询以提升召回。
// LLM 调用经恢复协调器执行，失败时回退到规则同义词扩展，再失败则原样返回。
// 扩展结果按查询哈希缓存。
type Expander struct {
	config      ExpanderConfig
	llm         providers.LanguageModelProvider
	coordinator *recovery.Coordinator
	logger      *zap.Logger

	mu    sync.Mutex
	cache map[string]expansionEntry

	// 测试钩子
	now func() time.Time
}

type expansionEntry struct {
	result    ExpandedQuery
	expiresAt time.Time
}

// NewExpander 创建查询扩展器。llm 可为 nil，此时只做规则扩展；
// coordinator 可为 nil，此时 LLM 调用不走恢复策略。
func NewExpander(config ExpanderConfig, llm providers.LanguageModelProvider, coordinator *recovery.Coordinator, logger *zap.Logger) *Expander {
	if config.MaxExpansions <= 0 {
		config.MaxExpansions = 3
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Expander{
		config:      config,
		llm:         llm,
		coordinator: coordinator,
		logger:      logger.With(zap.String("component", "expander")),
		cache:       make(map[string]expansionEntry),
		now:         time.Now,
	}
}

// Expand 扩展查询。任何失败都不致命：回退到原查询并标记未扩展。
func (e *Expander) Expand(ctx context.Context, query string) ExpandedQuery {
	unchanged := ExpandedQuery{Original: query, Expanded: query}

	if !e.config.Enabled || strings.TrimSpace(query) == "" {
		return unchanged
	}

	key := queryHash(query)
	if cached, ok := e.lookup(key); ok {
		return cached
	}

	result := e.expandRecovering(ctx, query)
	if !result.ExpansionApplied {
		result = e.expandWithRules(query)
	}

	if result.ExpansionApplied {
		e.store(key, result)
		return result
	}

	return unchanged
}

// expandRecovering 经协调器调用 LLM，失败时以规则扩展作为备用路径
func (e *Expander) expandRecovering(ctx context.Context, query string) ExpandedQuery {
	if e.llm == nil {
		return ExpandedQuery{Original: query, Expanded: query}
	}

	var result ExpandedQuery
	op := func(ctx context.Context) error {
		out, err := e.expandWithLLM(ctx, query)
		if err != nil {
			return err
		}
		result = out
		return nil
	}

	if e.coordinator == nil {
		if err := op(ctx); err != nil {
			e.logger.Warn("llm expansion failed, falling back to rules", zap.Error(err))
			return e.expandWithRules(query)
		}
		return result
	}

	_, err := e.coordinator.Execute(ctx, "query_expansion", op, func(context.Context) error {
		result = e.expandWithRules(query)
		return nil
	})
	if err != nil {
		e.logger.Warn("llm expansion failed, falling back to rules", zap.Error(err))
		return e.expandWithRules(query)
	}
	return result
}

func (e *Expander) expandWithLLM(ctx context.Context, query string) (ExpandedQuery, error) {
	unchanged := ExpandedQuery{Original: query, Expanded: query}

	prompt := fmt.Sprintf(
		"Rewrite the following search query to improve recall. "+
			"Add up to %d synonyms or related terms, keep it a single line, "+
			"and do not change the original meaning.\n\nQuery: %s\n\nRewritten query:",
		e.config.MaxExpansions, query,
	)

	completion, err := e.llm.Complete(ctx, prompt, providers.CompleteOptions{
		Temperature: 0.2,
		MaxTokens:   128,
	})
	if err != nil {
		return unchanged, err
	}

	expanded := strings.TrimSpace(completion.Text)
	if expanded == "" || strings.EqualFold(expanded, query) {
		return unchanged, nil
	}

	return ExpandedQuery{
		Original:         query,
		Expanded:         expanded,
		ExpansionApplied: true,
		Rationale:        "llm expansion",
	}, nil
}

// expandWithRules 同义词规则扩展，追加而不替换原词
func (e *Expander) expandWithRules(query string) ExpandedQuery {
	unchanged := ExpandedQuery{Original: query, Expanded: query}

	var additions []string
	seen := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		syns, ok := synonymMap[word]
		if !ok {
			continue
		}
		for _, s := range syns {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			additions = append(additions, s)
			if len(additions) >= e.config.MaxExpansions {
				break
			}
		}
		if len(additions) >= e.config.MaxExpansions {
			break
		}
	}

	if len(additions) == 0 {
		return unchanged
	}

	return ExpandedQuery{
		Original:         query,
		Expanded:         query + " " + strings.Join(additions, " "),
		ExpansionApplied: true,
		Rationale:        "synonym expansion: " + strings.Join(additions, ", "),
	}
}

func (e *Expander) lookup(key string) (ExpandedQuery, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.cache[key]
	if !ok {
		return ExpandedQuery{}, false
	}
	if e.now().After(entry.expiresAt) {
		delete(e.cache, key)
		return ExpandedQuery{}, false
	}
	return entry.result, true
}

func (e *Expander) store(key string, result ExpandedQuery) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cache[key] = expansionEntry{
		result:    result,
		expiresAt: e.now().Add(e.config.CacheTTL),
	}
}

func queryHash(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:])
}
