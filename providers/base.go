package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/contextlab/ragpipe/types"
)

// baseClient 为所有 HTTP 提供者提供共同能力。
type baseClient struct {
	name    string
	client  *http.Client
	baseURL string
	apiKey  string
}

func newBaseClient(name, baseURL, apiKey string, timeout time.Duration) *baseClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &baseClient{
		name:    name,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// doRequest 执行 HTTP 请求，并进行统一错误处理。
func (c *baseClient) doRequest(ctx context.Context, method, endpoint string, body any, headers map[string]string) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, types.NewTimeoutError(c.name, err)
		}
		return nil, types.NewError(types.ErrNetwork, err.Error()).
			WithRetryable(true).
			WithService(c.name).
			WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, string(respBody), c.name)
	}

	return respBody, nil
}

// mapHTTPError 将 HTTP 状态映射为 types.Error。
func mapHTTPError(status int, msg, service string) *types.Error {
	code := types.ErrServerError
	retryable := status >= 500

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		code = types.ErrAuth
	case http.StatusTooManyRequests:
		code = types.ErrRateLimit
		retryable = true
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		code = types.ErrValidation
	case http.StatusNotFound:
		code = types.ErrNotFound
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		code = types.ErrTimeout
		retryable = true
	}

	return types.NewError(code, truncateBody(msg, 256)).
		WithHTTPStatus(status).
		WithRetryable(retryable).
		WithService(service)
}

func truncateBody(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
