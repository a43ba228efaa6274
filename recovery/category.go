package recovery

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/contextlab/ragpipe/types"
)

// Category 错误类别
type Category string

const (
	CategoryNetwork     Category = "network"
	CategoryRateLimit   Category = "rate_limit"
	CategoryServerError Category = "server_error"
	CategoryAuth        Category = "auth"
	CategoryValidation  Category = "validation"
	CategoryNotFound    Category = "not_found"
	CategoryTimeout     Category = "timeout"
	CategoryUnknown     Category = "unknown"
)

// Categorize 将错误归入恢复类别。
// 优先看结构化错误码，其次看 HTTP 状态，最后匹配消息文本。
func Categorize(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var typedErr *types.Error
	if errors.As(err, &typedErr) {
		if c := categorizeCode(typedErr.Code); c != CategoryUnknown {
			return c
		}
		if c := categorizeStatus(typedErr.HTTPStatus); c != CategoryUnknown {
			return c
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryNetwork
	}

	return categorizeMessage(err.Error())
}

func categorizeCode(code types.ErrorCode) Category {
	switch code {
	case types.ErrNetwork:
		return CategoryNetwork
	case types.ErrRateLimit:
		return CategoryRateLimit
	case types.ErrServerError:
		return CategoryServerError
	case types.ErrAuth:
		return CategoryAuth
	case types.ErrValidation:
		return CategoryValidation
	case types.ErrNotFound:
		return CategoryNotFound
	case types.ErrTimeout:
		return CategoryTimeout
	default:
		return CategoryUnknown
	}
}

func categorizeStatus(status int) Category {
	switch {
	case status == 401 || status == 403:
		return CategoryAuth
	case status == 429:
		return CategoryRateLimit
	case status == 404:
		return CategoryNotFound
	case status == 408 || status == 504:
		return CategoryTimeout
	case status == 400 || status == 422:
		return CategoryValidation
	case status >= 500:
		return CategoryServerError
	default:
		return CategoryUnknown
	}
}

// categorizeMessage 文本兜底匹配，处理未结构化的第三方错误
func categorizeMessage(msg string) Category {
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests"):
		return CategoryRateLimit
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return CategoryTimeout
	case strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "network"):
		return CategoryNetwork
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "forbidden") ||
		strings.Contains(lower, "invalid api key"):
		return CategoryAuth
	case strings.Contains(lower, "not found"):
		return CategoryNotFound
	case strings.Contains(lower, "invalid") || strings.Contains(lower, "validation"):
		return CategoryValidation
	case strings.Contains(lower, "internal server error") || strings.Contains(lower, "bad gateway") ||
		strings.Contains(lower, "service unavailable"):
		return CategoryServerError
	default:
		return CategoryUnknown
	}
}

// isClientError 客户端侧错误不计入熔断失败
func isClientError(category Category) bool {
	switch category {
	case CategoryAuth, CategoryValidation, CategoryNotFound:
		return true
	default:
		return false
	}
}
