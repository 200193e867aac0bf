package lifecycle

import (
	"context"
	"log/slog"
	"sync"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
)

// Dispatcher is a bounded pool of goroutines executing asynchronous
// transitions and restart-policy decisions. Submit never blocks: when the
// dispatcher is stopped or its queue is full, the caller runs the task on a
// goroutine of its own.
type Dispatcher struct {
	workers   int
	queueSize int
	logger    *slog.Logger

	mu      sync.RWMutex
	running bool
	queue   chan dispatchTask
	wg      sync.WaitGroup
}

type dispatchTask struct {
	ctx context.Context
	fn  func(ctx context.Context)
}

type dispatcherKey struct{}

// NewDispatcher creates a stopped dispatcher. Non-positive sizes select one
// worker and an unbuffered queue.
func NewDispatcher(workers, queueSize int, logger *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{workers: workers, queueSize: queueSize, logger: logger}
}

// Start launches the worker goroutines. Starting a running dispatcher is a
// no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.queue = make(chan dispatchTask, d.queueSize)
	d.running = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(d.queue)
	}
}

// Stop stops accepting tasks, lets the workers finish the queued ones and
// waits for them until ctx ends.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return sserr.Wrap(ctx.Err(), sserr.CodeTimeoutWait,
			"lifecycle: dispatcher workers did not finish")
	}
}

// Running reports whether the dispatcher accepts tasks.
func (d *Dispatcher) Running() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Submit queues fn. It reports false when the dispatcher is stopped or the
// queue is full.
func (d *Dispatcher) Submit(ctx context.Context, fn func(ctx context.Context)) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running {
		return false
	}
	select {
	case d.queue <- dispatchTask{ctx: ctx, fn: fn}:
		return true
	default:
		d.logger.WarnContext(ctx, "lifecycle: dispatcher queue full",
			"queue_size", d.queueSize,
		)
		return false
	}
}

// IsWorker reports whether ctx belongs to a task running on d. Such tasks
// must not wait on other tasks of the same dispatcher.
func (d *Dispatcher) IsWorker(ctx context.Context) bool {
	w, _ := ctx.Value(dispatcherKey{}).(*Dispatcher)
	return w == d
}

func (d *Dispatcher) work(queue <-chan dispatchTask) {
	defer d.wg.Done()
	for task := range queue {
		d.run(task)
	}
}

func (d *Dispatcher) run(task dispatchTask) {
	ctx := context.WithValue(task.ctx, dispatcherKey{}, d)
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "lifecycle: dispatcher task panicked",
				"panic", r,
			)
		}
	}()
	task.fn(ctx)
}
