package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// OpenAIConfig 配置 OpenAI 风格的 embedding / completion 提供者。
type OpenAIConfig struct {
	APIKey     string        `json:"api_key" yaml:"api_key"`
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	Model      string        `json:"model,omitempty" yaml:"model,omitempty"`
	Dimensions int           `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// OpenAIEmbedding 通过 OpenAI embeddings API 实现 EmbeddingProvider。
type OpenAIEmbedding struct {
	*baseClient
	cfg OpenAIConfig
}

// NewOpenAIEmbedding 创建 OpenAI embedding 提供者。
func NewOpenAIEmbedding(cfg OpenAIConfig) *OpenAIEmbedding {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}

	return &OpenAIEmbedding{
		baseClient: newBaseClient("openai-embedding", cfg.BaseURL, cfg.APIKey, cfg.Timeout),
		cfg:        cfg,
	}
}

func (p *OpenAIEmbedding) Name() string { return p.name }

type openAIEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed 为单条文本生成向量。
func (p *OpenAIEmbedding) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return vecs[0], nil
}

// EmbedBatch 批量生成向量，结果按输入顺序排列。
func (p *OpenAIEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	body := openAIEmbedRequest{
		Input:      texts,
		Model:      p.cfg.Model,
		Dimensions: p.cfg.Dimensions,
	}

	respBody, err := p.doRequest(ctx, "POST", "/v1/embeddings", body, map[string]string{
		"Authorization": "Bearer " + p.cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}

	var oaResp openAIEmbedResponse
	if err := json.Unmarshal(respBody, &oaResp); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	result := make([][]float64, len(texts))
	for _, d := range oaResp.Data {
		if d.Index >= 0 && d.Index < len(result) {
			result[d.Index] = d.Embedding
		}
	}
	return result, nil
}

// OpenAICompletion 通过 chat completions API 实现 LanguageModelProvider。
type OpenAICompletion struct {
	*baseClient
	cfg OpenAIConfig
}

// NewOpenAICompletion 创建补全提供者。
func NewOpenAICompletion(cfg OpenAIConfig) *OpenAICompletion {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &OpenAICompletion{
		baseClient: newBaseClient("openai-completion", cfg.BaseURL, cfg.APIKey, timeout),
		cfg:        cfg,
	}
}

func (p *OpenAICompletion) Name() string { return p.name }

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete 生成给定 prompt 的补全。
func (p *OpenAICompletion) Complete(ctx context.Context, prompt string, opts CompleteOptions) (*Completion, error) {
	model := opts.Model
	if model == "" {
		model = p.cfg.Model
	}

	body := openAIChatRequest{
		Model:       model,
		Messages:    []openAIMessage{{Role: "user", Content: prompt}},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	respBody, err := p.doRequest(ctx, "POST", "/v1/chat/completions", body, map[string]string{
		"Authorization": "Bearer " + p.cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}

	var chatResp openAIChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode completion response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no completion choices returned")
	}

	return &Completion{
		Text: chatResp.Choices[0].Message.Content,
		Usage: TokenUsage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		},
	}, nil
}
