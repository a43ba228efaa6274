package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// WebSearchConfig 配置 HTTP 网络搜索提供者。
type WebSearchConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// HTTPWebSearch 通过 Tavily 风格的 REST API 实现 WebSearchProvider。
type HTTPWebSearch struct {
	*baseClient
	cfg WebSearchConfig
}

// NewHTTPWebSearch 创建网络搜索提供者。
func NewHTTPWebSearch(cfg WebSearchConfig) *HTTPWebSearch {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.tavily.com"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &HTTPWebSearch{
		baseClient: newBaseClient("web-search", cfg.BaseURL, cfg.APIKey, timeout),
		cfg:        cfg,
	}
}

func (p *HTTPWebSearch) Name() string { return p.name }

type webSearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
	TimeRange  string `json:"time_range,omitempty"`
	Country    string `json:"country,omitempty"`
}

type webSearchAPIResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search 执行网络搜索。
func (p *HTTPWebSearch) Search(ctx context.Context, query string, opts WebSearchOptions) (*WebSearchResponse, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	body := webSearchRequest{
		Query:      query,
		MaxResults: maxResults,
		TimeRange:  opts.TimeRange,
		Country:    opts.Region,
	}

	respBody, err := p.doRequest(ctx, "POST", "/search", body, map[string]string{
		"Authorization": "Bearer " + p.cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}

	var apiResp webSearchAPIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode web search response: %w", err)
	}

	results := make([]WebSearchResult, len(apiResp.Results))
	for i, r := range apiResp.Results {
		results[i] = WebSearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Content: r.Content,
			Score:   r.Score,
		}
	}

	return &WebSearchResponse{
		Results:      results,
		TotalResults: len(results),
	}, nil
}
