package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// CohereConfig 配置 Cohere reranker 提供者。
type CohereConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // rerank-v3.5
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// CohereRerank 使用 Cohere API 实现 RerankProvider。
type CohereRerank struct {
	*baseClient
	cfg CohereConfig
}

// NewCohereRerank 创建 Cohere reranker 提供者。
func NewCohereRerank(cfg CohereConfig) *CohereRerank {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cohere.ai"
	}
	if cfg.Model == "" {
		cfg.Model = "rerank-v3.5"
	}

	return &CohereRerank{
		baseClient: newBaseClient("cohere-rerank", cfg.BaseURL, cfg.APIKey, cfg.Timeout),
		cfg:        cfg,
	}
}

func (p *CohereRerank) Name() string { return p.name }

type cohereRerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
	TopN      int      `json:"top_n,omitempty"`
}

type cohereRerankResponse struct {
	ID      string `json:"id"`
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Score 对查询-候选对进行交叉打分，返回按输入下标标注的分数。
func (p *CohereRerank) Score(ctx context.Context, query string, candidates []string) ([]RerankScore, error) {
	body := cohereRerankRequest{
		Query:     query,
		Documents: candidates,
		Model:     p.cfg.Model,
		TopN:      len(candidates),
	}

	respBody, err := p.doRequest(ctx, "POST", "/v2/rerank", body, map[string]string{
		"Authorization": "Bearer " + p.cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}

	var cResp cohereRerankResponse
	if err := json.Unmarshal(respBody, &cResp); err != nil {
		return nil, fmt.Errorf("failed to decode cohere response: %w", err)
	}

	scores := make([]RerankScore, 0, len(cResp.Results))
	for _, r := range cResp.Results {
		scores = append(scores, RerankScore{
			Index: r.Index,
			Score: r.RelevanceScore,
		})
	}
	return scores, nil
}
