package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/contextlab/ragpipe/types"
)

// QdrantConfig 配置 Qdrant 向量存储实现。
//
// 说明:
// - Qdrant point ID 必须是 UUID；这里从文档 ID 派生出稳定 UUID。
// - 文档正文和元数据存放在 payload 中。
type QdrantConfig struct {
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	APIKey     string        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Collection string        `json:"collection" yaml:"collection"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// QdrantStore 通过 Qdrant REST API 实现 VectorStore。
type QdrantStore struct {
	*baseClient
	cfg    QdrantConfig
	logger *zap.Logger
}

// NewQdrantStore 创建 Qdrant 向量存储。
func NewQdrantStore(cfg QdrantConfig, logger *zap.Logger) *QdrantStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:6333"
	}
	if cfg.Collection == "" {
		cfg.Collection = "chunks"
	}

	return &QdrantStore{
		baseClient: newBaseClient("qdrant", cfg.BaseURL, cfg.APIKey, cfg.Timeout),
		cfg:        cfg,
		logger:     logger.With(zap.String("component", "qdrant_store")),
	}
}

func (s *QdrantStore) Name() string { return s.name }

var qdrantNamespace = uuid.MustParse("3f2d8a6e-71c4-4b9d-9e0b-2a647c1f5d83")

// qdrantPointID 从文档 ID 派生稳定 UUID（支持任意字符串输入）。
func qdrantPointID(docID string) string {
	return uuid.NewSHA1(qdrantNamespace, []byte(docID)).String()
}

func (s *QdrantStore) headers() map[string]string {
	h := map[string]string{}
	if s.cfg.APIKey != "" {
		h["api-key"] = s.cfg.APIKey
	}
	return h
}

// qdrantFilter 把请求过滤条件转换为 Qdrant filter 结构。
func qdrantFilter(filters types.QueryFilters) map[string]any {
	if filters.Empty() {
		return nil
	}

	must := []map[string]any{}
	if len(filters.DocumentIDs) > 0 {
		must = append(must, map[string]any{
			"key":   "document_id",
			"match": map[string]any{"any": filters.DocumentIDs},
		})
	}
	if len(filters.TopicIDs) > 0 {
		must = append(must, map[string]any{
			"key":   "topic_id",
			"match": map[string]any{"any": filters.TopicIDs},
		})
	}
	if filters.Geography != "" {
		must = append(must, map[string]any{
			"key":   "geography",
			"match": map[string]any{"value": filters.Geography},
		})
	}
	if filters.TimeFrom != nil || filters.TimeTo != nil {
		rng := map[string]any{}
		if filters.TimeFrom != nil {
			rng["gte"] = filters.TimeFrom.Unix()
		}
		if filters.TimeTo != nil {
			rng["lte"] = filters.TimeTo.Unix()
		}
		must = append(must, map[string]any{"key": "timestamp", "range": rng})
	}

	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

type qdrantSearchResponse struct {
	Result []struct {
		ID      any            `json:"id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

// Search 执行向量相似度检索。
func (s *QdrantStore) Search(ctx context.Context, vector []float64, filters types.QueryFilters, topK int) ([]VectorHit, error) {
	if topK <= 0 {
		topK = 10
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if f := qdrantFilter(filters); f != nil {
		body["filter"] = f
	}

	endpoint := fmt.Sprintf("/collections/%s/points/search", s.cfg.Collection)
	respBody, err := s.doRequest(ctx, "POST", endpoint, body, s.headers())
	if err != nil {
		return nil, err
	}

	var qResp qdrantSearchResponse
	if err := json.Unmarshal(respBody, &qResp); err != nil {
		return nil, fmt.Errorf("failed to decode qdrant response: %w", err)
	}

	hits := make([]VectorHit, 0, len(qResp.Result))
	for _, r := range qResp.Result {
		hit := VectorHit{
			Score:    r.Score,
			Metadata: r.Payload,
		}
		if id, ok := r.Payload["doc_id"].(string); ok {
			hit.ID = id
		} else {
			hit.ID = fmt.Sprintf("%v", r.ID)
		}
		if content, ok := r.Payload["content"].(string); ok {
			hit.Text = content
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Upsert 写入或更新文档向量。
func (s *QdrantStore) Upsert(ctx context.Context, docs []VectorDocument) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]map[string]any, len(docs))
	for i, doc := range docs {
		payload := map[string]any{
			"doc_id":  doc.ID,
			"content": doc.Text,
		}
		for k, v := range doc.Metadata {
			payload[k] = v
		}
		points[i] = map[string]any{
			"id":      qdrantPointID(doc.ID),
			"vector":  doc.Embedding,
			"payload": payload,
		}
	}

	endpoint := fmt.Sprintf("/collections/%s/points?wait=true", s.cfg.Collection)
	_, err := s.doRequest(ctx, "PUT", endpoint, map[string]any{"points": points}, s.headers())
	if err != nil {
		return err
	}

	s.logger.Debug("upserted points", zap.Int("count", len(docs)))
	return nil
}

// Delete 按文档 ID 删除向量。
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]string, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrantPointID(id)
	}

	endpoint := fmt.Sprintf("/collections/%s/points/delete?wait=true", s.cfg.Collection)
	_, err := s.doRequest(ctx, "POST", endpoint, map[string]any{"points": pointIDs}, s.headers())
	return err
}
