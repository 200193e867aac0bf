package lifecycle

import (
	"context"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
)

// Supervisor routes failures of worker goroutines back to the component
// that owns them. Workers are named after the fully-qualified name of their
// component; a failure is delivered as an Error transition to the
// component found under that name, or logged as orphaned when there is
// none.
//
// Resource exhaustion is special-cased: when enabled, the first such
// failure terminates the process after a critical log, and later ones are
// ignored.
type Supervisor struct {
	resolve  func(name string) *Component
	logger   *slog.Logger
	notifier Notifier

	exitOnExhaustion bool
	exit             func(code int)
	exhausted        sync.Once
	exiting          atomic.Bool
}

// SupervisorOption configures a [Supervisor].
type SupervisorOption func(*Supervisor)

// WithSupervisorLogger sets the logger.
func WithSupervisorLogger(logger *slog.Logger) SupervisorOption {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSupervisorNotifier sets the notifier receiving fault events.
func WithSupervisorNotifier(n Notifier) SupervisorOption {
	return func(s *Supervisor) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithExitOnResourceExhaustion terminates the process through exit on the
// first resource-exhaustion failure. A nil exit uses [os.Exit].
func WithExitOnResourceExhaustion(exit func(code int)) SupervisorOption {
	return func(s *Supervisor) {
		s.exitOnExhaustion = true
		if exit != nil {
			s.exit = exit
		}
	}
}

// NewSupervisor creates a supervisor resolving worker names with resolve.
func NewSupervisor(resolve func(name string) *Component, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		resolve:  resolve,
		logger:   slog.Default(),
		notifier: nopNotifier{},
		exit:     os.Exit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Worker is a supervised goroutine.
type Worker struct {
	name    string
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
	err     error
}

// Name returns the worker name.
func (w *Worker) Name() string { return w.name }

// Done is closed when the worker function has returned.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Alive reports whether the worker function is still running.
func (w *Worker) Alive() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Err returns the failure that ended the worker. It is only meaningful
// after Done is closed.
func (w *Worker) Err() error {
	<-w.done
	return w.err
}

// Stop cancels the worker and waits for it to return or for ctx to end.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return sserr.Wrapf(context.Cause(ctx), sserr.CodeTimeoutWait,
			"lifecycle: worker %q did not stop", w.name)
	}
}

// Go runs fn on a new goroutine named name. The goroutine's context keeps
// only the trace of ctx and is canceled by [Worker.Stop] alone. If fn
// panics, or returns an error before it was stopped, the failure is routed
// with [Supervisor.Report] after the worker is marked as finished, so the
// owning component's hooks can join it without waiting on themselves.
func (s *Supervisor) Go(ctx context.Context, name string, fn func(ctx context.Context) error) *Worker {
	base := detached(ctx)
	wctx, cancel := context.WithCancel(base)
	w := &Worker{
		name:    name,
		cancel:  cancel,
		done:    make(chan struct{}),
		started: time.Now(),
	}

	go func() {
		var failure error
		func() {
			defer func() {
				if r := recover(); r != nil {
					failure = sserr.FromPanic(r, sserr.CodeFaultWorker, "lifecycle: worker panicked")
					s.logger.ErrorContext(wctx, "lifecycle: worker panicked",
						"worker", name,
						"panic", r,
						"stack", string(debug.Stack()),
					)
				}
			}()
			if err := fn(wctx); err != nil && wctx.Err() == nil {
				failure = err
			}
		}()

		w.err = failure
		cancel()
		close(w.done)

		if failure != nil {
			s.Report(base, name, failure)
		}
	}()
	return w
}

// Recover is deferred by goroutines that run lifecycle work outside a
// worker. It recovers a panic and reports it under name.
func (s *Supervisor) Recover(ctx context.Context, name string) {
	r := recover()
	if r == nil {
		return
	}
	failure := sserr.FromPanic(r, sserr.CodeFault, "lifecycle: asynchronous transition panicked")
	if s == nil {
		slog.Default().ErrorContext(ctx, "lifecycle: unsupervised asynchronous transition panicked",
			"component", name,
			"fault_code", failure.Code.String(),
			"error", failure,
		)
		return
	}
	s.logger.ErrorContext(ctx, "lifecycle: asynchronous transition panicked",
		"component", name,
		"fault_code", failure.Code.String(),
		"error", failure,
	)
	s.notifier.Notify(FaultEvent{Component: name, Code: failure.Code, Reason: failure.Error(), At: time.Now().UTC()})
	s.Report(detached(ctx), name, failure)
}

// Report routes a failure to the component named name by invoking its
// Error transition. Failures without an owner are logged as orphaned.
func (s *Supervisor) Report(ctx context.Context, name string, failure error) {
	if s.exiting.Load() {
		return
	}
	if IsResourceExhaustion(failure) && s.handleExhaustion(ctx, name, failure) {
		return
	}

	var c *Component
	if s.resolve != nil {
		c = s.resolve(name)
	}
	if c == nil {
		orphan := sserr.Wrapf(failure, sserr.CodeOrphanFailure,
			"lifecycle: failure of %q has no owning component", name)
		s.logger.ErrorContext(ctx, "lifecycle: orphaned worker failure",
			"worker", name,
			"fault_code", orphan.Code.String(),
			"error", failure,
		)
		s.notifier.Notify(FaultEvent{Component: name, Code: orphan.Code, Reason: failure.Error(), At: time.Now().UTC()})
		return
	}

	s.logger.WarnContext(ctx, "lifecycle: routing worker failure",
		"component", name,
		"error", failure,
	)
	c.Error(ctx, failure.Error())
}

// handleExhaustion terminates the process on the first resource
// exhaustion when configured to. It reports whether the failure was
// consumed.
func (s *Supervisor) handleExhaustion(ctx context.Context, name string, failure error) bool {
	if !s.exitOnExhaustion {
		return false
	}
	s.exhausted.Do(func() {
		s.exiting.Store(true)
		s.logger.ErrorContext(ctx, "lifecycle: resource exhaustion, terminating process",
			"component", name,
			"fault_code", sserr.CodeResourceExhausted.String(),
			"error", failure,
		)
		s.notifier.Notify(FaultEvent{
			Component: name,
			Code:      sserr.CodeResourceExhausted,
			Reason:    failure.Error(),
			At:        time.Now().UTC(),
		})
		s.exit(1)
	})
	return true
}

// IsResourceExhaustion reports whether err is an out-of-memory class
// failure: an error carrying [sserr.CodeResourceExhausted] or one whose
// message says the process ran out of memory. The Go runtime's own
// out-of-memory condition is fatal and never reaches a recover.
func IsResourceExhaustion(err error) bool {
	if err == nil {
		return false
	}
	if sserr.IsResourceExhausted(err) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "out of memory")
}

// detached returns a context carrying only the span of ctx. Hook contexts
// mark their goroutine as the owner of a transition; work that outlives
// the hook must not inherit that mark.
func detached(ctx context.Context) context.Context {
	return trace.ContextWithSpanContext(context.Background(), trace.SpanContextFromContext(ctx))
}
