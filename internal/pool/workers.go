// Package pool provides the bounded worker pool that runs post-request work
// (evaluation scoring, reward feedback) off the serving path.
package pool

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Task is one unit of background work.
type Task func(ctx context.Context)

// Workers runs submitted tasks on a fixed set of goroutines behind a bounded
// queue. Submission never blocks: when the queue is full the task is dropped
// and counted, which keeps a slow evaluator from backing up into request
// handling.
type Workers struct {
	queue   chan Task
	logger  *zap.Logger
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	closed  atomic.Bool
	dropped atomic.Int64
}

// NewWorkers starts size workers with the given queue depth.
func NewWorkers(size, queueDepth int, logger *zap.Logger) *Workers {
	if size <= 0 {
		size = 4
	}
	if queueDepth <= 0 {
		queueDepth = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Workers{
		queue:  make(chan Task, queueDepth),
		logger: logger.With(zap.String("component", "workers")),
		cancel: cancel,
	}
	for i := 0; i < size; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
	return w
}

func (w *Workers) run(ctx context.Context) {
	defer w.wg.Done()
	for task := range w.queue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("background task panicked", zap.Any("panic", r))
				}
			}()
			task(ctx)
		}()
	}
}

// Submit enqueues a task. It reports false when the pool is closed or the
// queue is full.
func (w *Workers) Submit(task Task) bool {
	if w.closed.Load() {
		return false
	}
	select {
	case w.queue <- task:
		return true
	default:
		w.dropped.Add(1)
		w.logger.Warn("background task dropped", zap.Int64("dropped_total", w.dropped.Load()))
		return false
	}
}

// Dropped returns how many tasks were rejected because the queue was full.
func (w *Workers) Dropped() int64 { return w.dropped.Load() }

// Close drains queued tasks, cancels the workers' context for in-flight
// tasks that respect it, and waits for the workers to exit.
func (w *Workers) Close() {
	if !w.closed.CompareAndSwap(false, true) {
		return
	}
	close(w.queue)
	w.wg.Wait()
	w.cancel()
}
