package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrNetwork, "vector search failed").WithCause(cause)

	assert.Contains(t, err.Error(), "NETWORK")
	assert.Contains(t, err.Error(), "connection refused")
	assert.True(t, errors.Is(err, cause))
}

func TestError_Builders(t *testing.T) {
	err := NewRateLimitError("vector_store", errors.New("429"))

	assert.Equal(t, ErrRateLimit, err.Code)
	assert.Equal(t, 429, err.HTTPStatus)
	assert.Equal(t, "vector_store", err.Service)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, ErrRateLimit, GetErrorCode(err))
}

func TestIsRetryable_PlainError(t *testing.T) {
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}

func TestCandidateChunk_BestScore(t *testing.T) {
	c := CandidateChunk{}
	assert.False(t, c.HasScore())
	assert.Equal(t, 0.0, c.BestScore())

	c.LexicalScore = Float(0.2)
	assert.Equal(t, 0.2, c.BestScore())

	c.FusedScore = Float(0.5)
	assert.Equal(t, 0.5, c.BestScore())

	c.RerankScore = Float(0.9)
	assert.Equal(t, 0.9, c.BestScore())
	assert.True(t, c.HasScore())
}
