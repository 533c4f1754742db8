package command

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/relayops/relay/internal/observability"
	"github.com/relayops/relay/model"
)

// Task is one unit of background work.
type Task func(ctx context.Context)

// Runner executes fire-and-forget tasks on a fixed worker pool with a
// bounded queue. A full queue rejects the submission instead of blocking
// the HTTP response path.
type Runner struct {
	queue   chan Task
	workers int
	metrics *observability.Metrics
	logger  *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerMetrics attaches queue metrics.
func WithRunnerMetrics(m *observability.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithRunnerLogger attaches a logger.
func WithRunnerLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a background runner.
func NewRunner(workers, queueSize int, opts ...RunnerOption) *Runner {
	if workers < 1 {
		workers = 4
	}
	if queueSize < 1 {
		queueSize = 64
	}
	r := &Runner{
		queue:   make(chan Task, queueSize),
		workers: workers,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the worker pool. Tasks run until Shutdown is called or
// ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		ctx, r.cancel = context.WithCancel(ctx)
		for i := 0; i < r.workers; i++ {
			r.wg.Add(1)
			go r.work(ctx)
		}
	})
}

func (r *Runner) work(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-r.queue:
			if !ok {
				return
			}
			if r.metrics != nil {
				r.metrics.AsyncQueueDepth.Set(float64(len(r.queue)))
			}
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						r.logger.Error("background task panicked", zap.Any("panic", rec))
					}
				}()
				task(ctx)
			}()
		}
	}
}

// Submit enqueues a task. A full queue returns an error immediately.
func (r *Runner) Submit(task Task) error {
	select {
	case r.queue <- task:
		if r.metrics != nil {
			r.metrics.AsyncQueueDepth.Set(float64(len(r.queue)))
		}
		return nil
	default:
		if r.metrics != nil {
			r.metrics.AsyncDispatchDropped.Inc()
		}
		return model.NewConflictError("background queue is full, try again shortly")
	}
}

// Shutdown stops accepting work and waits for in-flight tasks to finish.
func (r *Runner) Shutdown() {
	r.stopOnce.Do(func() {
		close(r.queue)
		r.wg.Wait()
		if r.cancel != nil {
			r.cancel()
		}
	})
}
