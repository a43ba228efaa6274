package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/contextlab/ragpipe/types"
)

// 词级 shingle 大小，Jaccard 相似度基于 3-gram
const shingleSize = 3

// Deduplicator 去除近重复候选。
// 先用内容哈希短路完全相同的文本，再用词级 shingle 的 Jaccard
// 相似度判断近重复；重复对中始终保留分数更高的一个。
type Deduplicator struct {
	// 近重复判定阈值
	threshold float64
	logger    *zap.Logger
}

// NewDeduplicator 创建去重器
func NewDeduplicator(threshold float64, logger *zap.Logger) *Deduplicator {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.92
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduplicator{threshold: threshold, logger: logger}
}

// Dedup 去重。输入先按分数降序排列，先接受的即为重复对中的高分者。
func (d *Deduplicator) Dedup(chunks []types.CandidateChunk) []types.CandidateChunk {
	if len(chunks) <= 1 {
		return chunks
	}

	sorted := make([]types.CandidateChunk, len(chunks))
	copy(sorted, chunks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].BestScore() > sorted[j].BestScore()
	})

	accepted := make([]types.CandidateChunk, 0, len(sorted))
	acceptedHashes := make(map[string]struct{})
	acceptedShingles := make([]map[string]struct{}, 0, len(sorted))

	for _, chunk := range sorted {
		hash := contentHash(chunk.Text)
		if _, dup := acceptedHashes[hash]; dup {
			d.logger.Debug("exact duplicate dropped", zap.String("id", chunk.ID))
			continue
		}

		shingles := wordShingles(chunk.Text, shingleSize)
		isDup := false
		for _, existing := range acceptedShingles {
			if jaccard(shingles, existing) >= d.threshold {
				isDup = true
				break
			}
		}
		if isDup {
			d.logger.Debug("near duplicate dropped", zap.String("id", chunk.ID))
			continue
		}

		accepted = append(accepted, chunk)
		acceptedHashes[hash] = struct{}{}
		acceptedShingles = append(acceptedShingles, shingles)
	}

	return accepted
}

// contentHash 归一化后取 sha256，大小写与空白差异视为相同内容
func contentHash(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// wordShingles 生成词级 n-gram 集合；不足 n 个词时退化为整句
func wordShingles(text string, n int) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	shingles := make(map[string]struct{})

	if len(words) < n {
		shingles[strings.Join(words, " ")] = struct{}{}
		return shingles
	}

	for i := 0; i+n <= len(words); i++ {
		shingles[strings.Join(words[i:i+n], " ")] = struct{}{}
	}
	return shingles
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for s := range a {
		if _, ok := b[s]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
