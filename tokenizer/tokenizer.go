// Package tokenizer 提供与下游模型一致的 token 计数和截断能力。
package tokenizer

import (
	"fmt"
	"sync"
)

// Tokenizer 是统一的 token 计数接口。
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数。
	CountTokens(text string) (int, error)

	// Truncate 把文本截断到最多 maxTokens 个 token。
	Truncate(text string, maxTokens int) (string, error)

	// MaxTokens 返回模型的最大上下文长度。
	MaxTokens() int

	// Name 返回分词器名称。
	Name() string
}

// 全局分词器注册表。
var (
	modelTokenizers   = make(map[string]Tokenizer)
	modelTokenizersMu sync.RWMutex
)

// Register 为给定的模型名称注册分词器。
func Register(model string, t Tokenizer) {
	modelTokenizersMu.Lock()
	defer modelTokenizersMu.Unlock()
	modelTokenizers[model] = t
}

// Get 返回为给定模型注册的分词器，支持前缀匹配
// (如 "gpt-4o" 匹配 "gpt-4o-mini")。
func Get(model string) (Tokenizer, error) {
	modelTokenizersMu.RLock()
	defer modelTokenizersMu.RUnlock()

	if t, ok := modelTokenizers[model]; ok {
		return t, nil
	}

	for prefix, t := range modelTokenizers {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return t, nil
		}
	}

	return nil, fmt.Errorf("no tokenizer registered for model: %s", model)
}

// GetOrEstimator 返回该模型的注册分词器，
// 未注册时回退到字符估算器。
func GetOrEstimator(model string) Tokenizer {
	t, err := Get(model)
	if err != nil {
		return NewEstimator(model, 0)
	}
	return t
}
