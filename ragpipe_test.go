package ragpipe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextlab/ragpipe/providers"
	"github.com/contextlab/ragpipe/types"
)

func TestNewWithDefaults(t *testing.T) {
	p, err := New()

	require.NoError(t, err)
	defer p.Close()

	window, err := p.RetrieveContext(context.Background(),
		types.Query{Text: "anything"},
		types.RetrieveOptions{UseAdaptiveContextSelection: true},
	)
	require.NoError(t, err)
	assert.Empty(t, window.Chunks)
}

func TestNewWithSeededIndex(t *testing.T) {
	idx := providers.NewMemoryLexicalIndex(nil)
	idx.Index("go-1", "Go has first class support for concurrency with goroutines and channels.", nil)
	idx.Index("py-1", "Python emphasizes readability and a large standard library.", nil)

	p, err := New(WithLexicalIndex(idx))
	require.NoError(t, err)
	defer p.Close()

	window, err := p.RetrieveContext(context.Background(),
		types.Query{Text: "goroutines and channels"},
		types.RetrieveOptions{EnableDocumentSearch: true, UseAdaptiveContextSelection: true},
	)
	require.NoError(t, err)
	require.NotEmpty(t, window.Chunks)
	assert.Equal(t, "go-1", window.Chunks[0].ID)
}

func TestNewWithNilCacheDisablesCaching(t *testing.T) {
	p, err := New(WithCache(nil))

	require.NoError(t, err)
	defer p.Close()
	assert.Zero(t, p.CacheVersion())
}
