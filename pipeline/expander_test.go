package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/contextlab/ragpipe/providers"
	"github.com/contextlab/ragpipe/recovery"
)

type stubLLM struct {
	text  string
	err   error
	calls int
}

func (s *stubLLM) Complete(_ context.Context, _ string, _ providers.CompleteOptions) (*providers.Completion, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &providers.Completion{Text: s.text}, nil
}

func (s *stubLLM) Name() string { return "stub-llm" }

func TestExpandWithLLM(t *testing.T) {
	llm := &stubLLM{text: "ai artificial intelligence machine learning"}
	e := NewExpander(ExpanderConfig{Enabled: true, MaxExpansions: 3, CacheTTL: time.Minute}, llm, nil, nil)

	result := e.Expand(context.Background(), "ai")

	assert.True(t, result.ExpansionApplied)
	assert.Equal(t, "ai", result.Original)
	assert.Equal(t, "ai artificial intelligence machine learning", result.Expanded)
}

func TestExpandLLMFailureFallsBackToRules(t *testing.T) {
	llm := &stubLLM{err: errors.New("llm unavailable")}
	e := NewExpander(ExpanderConfig{Enabled: true, MaxExpansions: 3, CacheTTL: time.Minute}, llm, nil, nil)

	result := e.Expand(context.Background(), "ml tutorial")

	// 规则回退：ml 与 tutorial 均有同义词
	assert.True(t, result.ExpansionApplied)
	assert.Contains(t, result.Expanded, "machine learning")
}

func TestExpandLLMFailureRecordedAsFallback(t *testing.T) {
	llm := &stubLLM{err: errors.New("llm unavailable")}
	c := fastCoordinator()
	e := NewExpander(ExpanderConfig{Enabled: true, MaxExpansions: 3, CacheTTL: time.Minute}, llm, c, nil)

	result := e.Expand(context.Background(), "ml tutorial")

	assert.True(t, result.ExpansionApplied)
	assert.Contains(t, result.Expanded, "machine learning")

	// LLM 故障经协调器切到规则备用路径并留痕
	attempts := c.History().ByService("query_expansion")
	assert.NotEmpty(t, attempts)
	assert.Equal(t, string(recovery.StrategyFallback), attempts[len(attempts)-1].Strategy)
}

func TestExpandNoExpansionAvailable(t *testing.T) {
	llm := &stubLLM{err: errors.New("down")}
	e := NewExpander(ExpanderConfig{Enabled: true, CacheTTL: time.Minute}, llm, nil, nil)

	result := e.Expand(context.Background(), "zanzibar quorum")

	assert.False(t, result.ExpansionApplied)
	assert.Equal(t, "zanzibar quorum", result.Expanded)
}

func TestExpandDisabled(t *testing.T) {
	llm := &stubLLM{text: "should not be called"}
	e := NewExpander(ExpanderConfig{Enabled: false}, llm, nil, nil)

	result := e.Expand(context.Background(), "ai")

	assert.False(t, result.ExpansionApplied)
	assert.Zero(t, llm.calls)
}

func TestExpandCached(t *testing.T) {
	llm := &stubLLM{text: "expanded version"}
	e := NewExpander(ExpanderConfig{Enabled: true, CacheTTL: time.Minute}, llm, nil, nil)

	first := e.Expand(context.Background(), "ai basics")
	second := e.Expand(context.Background(), "ai basics")

	assert.Equal(t, first, second)
	assert.Equal(t, 1, llm.calls)
}

func TestExpandCacheExpiry(t *testing.T) {
	llm := &stubLLM{text: "expanded version"}
	e := NewExpander(ExpanderConfig{Enabled: true, CacheTTL: time.Minute}, llm, nil, nil)

	current := time.Now()
	e.now = func() time.Time { return current }

	e.Expand(context.Background(), "ai basics")
	current = current.Add(2 * time.Minute)
	e.Expand(context.Background(), "ai basics")

	assert.Equal(t, 2, llm.calls)
}
