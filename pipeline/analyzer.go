package pipeline

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/contextlab/ragpipe/types"
)

// 英文停用词表，用于关键词计数
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "being": {}, "am": {}, "do": {}, "does": {}, "did": {},
	"in": {}, "on": {}, "at": {}, "of": {}, "to": {}, "for": {}, "and": {},
	"or": {}, "with": {}, "by": {}, "from": {}, "as": {}, "it": {}, "its": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "can": {}, "will": {},
	"would": {}, "should": {}, "could": {}, "about": {}, "into": {}, "over": {},
	"i": {}, "you": {}, "we": {}, "they": {}, "he": {}, "she": {}, "me": {},
	"my": {}, "your": {}, "our": {}, "their": {},
}

// 查询长度分级阈值（词数）
const (
	shortQueryWords = 4
	longQueryWords  = 12
)

// AnalyzerConfig 查询分析配置
type AnalyzerConfig struct {
	DefaultChunks int
	MinChunks     int
	MaxChunks     int
}

// Analyzer 对查询做确定性的意图与复杂度分析。
// 纯函数式：不做 I/O，无失败路径。
type Analyzer struct {
	config AnalyzerConfig
	logger *zap.Logger
}

// NewAnalyzer 创建查询分析器
func NewAnalyzer(config AnalyzerConfig, logger *zap.Logger) *Analyzer {
	if config.DefaultChunks <= 0 {
		config.DefaultChunks = 6
	}
	if config.MinChunks <= 0 {
		config.MinChunks = 3
	}
	if config.MaxChunks <= 0 {
		config.MaxChunks = 13
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{config: config, logger: logger}
}

// Analyze 分析查询并计算自适应目标 chunk 数。
// 空查询回退到 simple / 最小 chunk 数。
func (a *Analyzer) Analyze(text string) types.QueryAnalysis {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return types.QueryAnalysis{
			LengthClass:      types.LengthShort,
			IntentComplexity: types.ComplexitySimple,
			QueryType:        types.QueryUnknown,
			TargetChunkCount: a.config.MinChunks,
			Rationale:        "empty query, using minimum chunk count",
		}
	}

	keywords := extractKeywords(words)
	lengthClass := classifyLength(len(words))
	queryType := classifyQueryType(strings.ToLower(text))
	intent := classifyIntent(lengthClass, len(keywords))
	score := complexityScore(len(keywords), lengthClass, queryType)
	target, rationale := a.targetChunkCount(intent, lengthClass, queryType, score)

	analysis := types.QueryAnalysis{
		LengthClass:      lengthClass,
		KeywordCount:     len(keywords),
		Keywords:         keywords,
		IntentComplexity: intent,
		QueryType:        queryType,
		ComplexityScore:  score,
		TargetChunkCount: target,
		Rationale:        rationale,
	}

	a.logger.Debug("query analyzed",
		zap.String("intent", string(intent)),
		zap.String("type", string(queryType)),
		zap.Int("target_chunks", target),
	)

	return analysis
}

func extractKeywords(words []string) []string {
	keywords := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'()[]")
		if w == "" {
			continue
		}
		if _, ok := stopWords[w]; ok {
			continue
		}
		keywords = append(keywords, w)
	}
	return keywords
}

func classifyLength(wordCount int) types.LengthClass {
	switch {
	case wordCount <= shortQueryWords:
		return types.LengthShort
	case wordCount < longQueryWords:
		return types.LengthMedium
	default:
		return types.LengthLong
	}
}

// classifyIntent 按长度与关键词数分级意图复杂度
func classifyIntent(length types.LengthClass, keywordCount int) types.IntentComplexity {
	if length == types.LengthShort && keywordCount <= 2 {
		return types.ComplexitySimple
	}
	if length == types.LengthLong || keywordCount > 5 {
		return types.ComplexityComplex
	}
	return types.ComplexityModerate
}

// classifyQueryType 按词汇线索判定查询类型。
// 探索类线索优先于过程类，避免 "explain how ..." 被误判。
func classifyQueryType(lower string) types.QueryType {
	exploratoryCues := []string{
		"explain", "in detail", "overview", "compare", "comparison",
		"discuss", "why ", "explore", "tell me about", "pros and cons",
	}
	for _, cue := range exploratoryCues {
		if strings.Contains(lower, cue) {
			return types.QueryExploratory
		}
	}

	proceduralCues := []string{
		"how to", "how do", "how can", "steps", "step by step",
		"guide", "install", "configure", "set up", "setup",
	}
	for _, cue := range proceduralCues {
		if strings.Contains(lower, cue) {
			return types.QueryProcedural
		}
	}

	conceptualCues := []string{
		"concept", "theory", "difference between", "meaning of",
		"relationship", "principle",
	}
	for _, cue := range conceptualCues {
		if strings.Contains(lower, cue) {
			return types.QueryConceptual
		}
	}

	factualPrefixes := []string{"what is", "what are", "who ", "when ", "where ", "which "}
	for _, prefix := range factualPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return types.QueryFactual
		}
	}

	return types.QueryUnknown
}

// complexityScore 综合关键词数、长度与类型得到 [0,1] 复杂度分
func complexityScore(keywordCount int, length types.LengthClass, queryType types.QueryType) float64 {
	score := 0.1 * float64(keywordCount)

	switch length {
	case types.LengthShort:
		score += 0.1
	case types.LengthMedium:
		score += 0.3
	case types.LengthLong:
		score += 0.6
	}

	switch queryType {
	case types.QueryExploratory:
		score += 0.2
	case types.QueryConceptual:
		score += 0.1
	}

	return math.Min(score, 1.0)
}

// targetChunkCount 计算自适应目标 chunk 数：
// clamp(default × intentMult × lengthMult + typeAdj + complexityAdj, min, max)
func (a *Analyzer) targetChunkCount(intent types.IntentComplexity, length types.LengthClass, queryType types.QueryType, score float64) (int, string) {
	intentMult := map[types.IntentComplexity]float64{
		types.ComplexitySimple:   0.6,
		types.ComplexityModerate: 1.0,
		types.ComplexityComplex:  1.6,
	}[intent]

	lengthMult := map[types.LengthClass]float64{
		types.LengthShort:  0.8,
		types.LengthMedium: 1.0,
		types.LengthLong:   1.2,
	}[length]

	typeAdj := map[types.QueryType]int{
		types.QueryFactual:     -1,
		types.QueryConceptual:  1,
		types.QueryProcedural:  1,
		types.QueryExploratory: 2,
		types.QueryUnknown:     0,
	}[queryType]

	complexityAdj := int(math.Round(score * 2))

	base := int(math.Round(float64(a.config.DefaultChunks) * intentMult * lengthMult))
	target := clampInt(base+typeAdj+complexityAdj, a.config.MinChunks, a.config.MaxChunks)

	rationale := fmt.Sprintf(
		"intent=%s(x%.1f) length=%s(x%.1f) type=%s(%+d) complexity=%.2f(%+d): %d -> %d chunks",
		intent, intentMult, length, lengthMult, queryType, typeAdj, score, complexityAdj,
		a.config.DefaultChunks, target,
	)

	return target, rationale
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
