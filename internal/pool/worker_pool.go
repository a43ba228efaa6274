// Package pool provides a bounded worker pool for retrieval tasks.
// This package is internal and should not be imported by external projects.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool queue is full")
)

// Task represents a unit of work.
type Task func(ctx context.Context) error

// Config configures the worker pool.
type Config struct {
	// 固定工作协程数
	Workers int
	// 任务队列容量
	QueueSize int
	// 每秒任务速率上限，0 表示不限速
	RatePerSecond float64
	// 速率突发容量
	RateBurst int
}

// DefaultConfig returns sensible defaults for retrieval workloads.
func DefaultConfig() Config {
	return Config{
		Workers:       5,
		QueueSize:     100,
		RatePerSecond: 10,
		RateBurst:     20,
	}
}

// WorkerPool runs tasks on a fixed set of workers with optional rate limiting.
// 并发的外部检索调用经由这里统一限流。
type WorkerPool struct {
	taskQueue chan taskWrapper
	limiter   *rate.Limiter
	closed    atomic.Bool
	wg        sync.WaitGroup

	// Metrics
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	active    atomic.Int32
}

type taskWrapper struct {
	task   Task
	ctx    context.Context
	result chan error
}

// New creates a worker pool and starts its workers.
func New(config Config) *WorkerPool {
	if config.Workers <= 0 {
		config.Workers = 5
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}

	p := &WorkerPool{
		taskQueue: make(chan taskWrapper, config.QueueSize),
	}

	if config.RatePerSecond > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = int(config.RatePerSecond)
		}
		p.limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), burst)
	}

	for i := 0; i < config.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

// Submit enqueues a task without waiting for completion.
func (p *WorkerPool) Submit(ctx context.Context, task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.submitted.Add(1)

	select {
	case p.taskQueue <- taskWrapper{task: task, ctx: ctx}:
		return nil
	default:
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

// SubmitWait enqueues a task and waits for its result.
func (p *WorkerPool) SubmitWait(ctx context.Context, task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.submitted.Add(1)

	wrapper := taskWrapper{
		task:   task,
		ctx:    ctx,
		result: make(chan error, 1),
	}

	select {
	case p.taskQueue <- wrapper:
	case <-ctx.Done():
		p.rejected.Add(1)
		return ctx.Err()
	}

	select {
	case err := <-wrapper.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for wrapper := range p.taskQueue {
		err := p.run(wrapper)

		if wrapper.result != nil {
			wrapper.result <- err
			close(wrapper.result)
		}

		if err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
	}
}

func (p *WorkerPool) run(wrapper taskWrapper) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("task panicked")
		}
	}()

	if err := wrapper.ctx.Err(); err != nil {
		return err
	}

	// 限流等待，尊重任务自身的超时
	if p.limiter != nil {
		if err := p.limiter.Wait(wrapper.ctx); err != nil {
			return err
		}
	}

	p.active.Add(1)
	defer p.active.Add(-1)

	return wrapper.task(wrapper.ctx)
}

// Close stops accepting tasks and waits for in-flight tasks to finish.
func (p *WorkerPool) Close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.taskQueue)
	p.wg.Wait()
}

// Stats returns pool statistics.
func (p *WorkerPool) Stats() Stats {
	return Stats{
		Active:    int(p.active.Load()),
		Queued:    len(p.taskQueue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// Stats contains pool statistics.
type Stats struct {
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}
