package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitWait(t *testing.T) {
	p := New(Config{Workers: 2, QueueSize: 10})
	defer p.Close()

	var ran atomic.Bool
	err := p.SubmitWait(context.Background(), func(context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran.Load())

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Submitted)
	assert.Equal(t, int64(1), stats.Completed)
}

func TestSubmitWaitPropagatesError(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1})
	defer p.Close()

	wantErr := errors.New("boom")
	err := p.SubmitWait(context.Background(), func(context.Context) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, int64(1), p.Stats().Failed)
}

func TestSubmitAfterClose(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1})
	p.Close()

	err := p.Submit(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPanicRecovered(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1})
	defer p.Close()

	err := p.SubmitWait(context.Background(), func(context.Context) error {
		panic("oops")
	})
	require.Error(t, err)
	assert.Equal(t, int64(1), p.Stats().Failed)
}

func TestRateLimiting(t *testing.T) {
	// 每秒 10 个，突发 1：三个任务至少需要约 200ms
	p := New(Config{Workers: 3, QueueSize: 10, RatePerSecond: 10, RateBurst: 1})
	defer p.Close()

	start := time.Now()
	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
			done <- struct{}{}
			return nil
		}))
	}
	for i := 0; i < 3; i++ {
		<-done
	}
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestQueueFull(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1})
	defer p.Close()

	block := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) error {
		<-block
		return nil
	}))

	// 队列填满后拒绝
	var rejected bool
	for i := 0; i < 10; i++ {
		if err := p.Submit(context.Background(), func(context.Context) error { return nil }); errors.Is(err, ErrPoolFull) {
			rejected = true
			break
		}
	}
	close(block)
	assert.True(t, rejected)
}
