package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
)

var (
	errInterrupted = sserr.New(sserr.CodeFaultCanceled,
		"lifecycle: transition interrupted by a newer request")
	errDeadline = sserr.New(sserr.CodeTimeout,
		"lifecycle: transition exceeded its maximum duration")
	errStuck = sserr.New(sserr.CodeStuckTransition,
		"lifecycle: transition force-resolved by the health check")
)

// inflight is the record proving that a transition is executing on a
// component. At most one exists per component; it is replaced or cleared
// only under the component's mu.
type inflight struct {
	id        uuid.UUID
	desc      TransitionDescriptor
	from      Status
	startedAt time.Time

	// parent is the context of the requester, ctx the hook context.
	parent context.Context
	ctx    context.Context
	cancel context.CancelCauseFunc
	stop   context.CancelFunc

	cancelRequested atomic.Bool
	done            chan struct{}
	once            sync.Once
}

// interrupt asks the hooks of the transition to stop.
func (r *inflight) interrupt(cause error) {
	r.cancelRequested.Store(true)
	r.cancel(cause)
}

// finish releases the hook context and wakes requesters waiting for the
// record to clear.
func (r *inflight) finish() {
	r.once.Do(func() {
		r.stop()
		r.cancel(nil)
		close(r.done)
	})
}

// InFlight describes the transition currently executing on a component.
type InFlight struct {
	ID              string        `json:"id"`
	Kind            Kind          `json:"kind"`
	Reason          string        `json:"reason,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	Age             time.Duration `json:"age"`
	CancelRequested bool          `json:"cancel_requested"`
}

// interrupted reports the cancellation of ctx as a fault, or nil.
func interrupted(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(ctx)
	if e, ok := sserr.AsError(cause); ok && e.Code == sserr.CodeFaultCanceled {
		return e
	}
	return sserr.Wrap(cause, sserr.CodeFaultCanceled, "lifecycle: transition canceled")
}

// asFault converts a hook error into the fault retained on the component.
func asFault(err error) *sserr.Error {
	if e, ok := sserr.AsError(err); ok {
		return e
	}
	return sserr.Wrap(err, sserr.CodeFault, "lifecycle: hook failed")
}

// ===========================================================================
// Lifecycle operations
// ===========================================================================

// Engage initializes and enables the component. It reports whether the
// transition was executed or, for asynchronous components, scheduled.
func (c *Component) Engage(ctx context.Context, opts ...TransitionOption) bool {
	return c.submit(ctx, NewTransitionDescriptor(c, KindEngage, opts...))
}

// ShutDown shuts the component down.
func (c *Component) ShutDown(ctx context.Context, opts ...TransitionOption) bool {
	return c.submit(ctx, NewTransitionDescriptor(c, KindShutDown, opts...))
}

// Reinitialize shuts the component down and initializes it again.
func (c *Component) Reinitialize(ctx context.Context, opts ...TransitionOption) bool {
	return c.submit(ctx, NewTransitionDescriptor(c, KindReinitialize, opts...))
}

// Error moves the component to [StatusError] and runs its error hook.
// Calling it from the component's own hook panics with a reentrancy fault.
func (c *Component) Error(ctx context.Context, reason string, opts ...TransitionOption) bool {
	opts = append([]TransitionOption{WithReason(reason)}, opts...)
	return c.submit(ctx, NewTransitionDescriptor(c, KindError, opts...))
}

// CriticalError quarantines the component in [StatusCriticalError].
// Calling it from the component's own hook panics with a reentrancy fault.
func (c *Component) CriticalError(ctx context.Context, reason string, opts ...TransitionOption) bool {
	opts = append([]TransitionOption{WithReason(reason)}, opts...)
	return c.submit(ctx, NewTransitionDescriptor(c, KindCriticalError, opts...))
}

// Submit hands d to the executor of its target component.
func Submit(ctx context.Context, d TransitionDescriptor) bool {
	if d.target == nil {
		return false
	}
	return d.target.submit(ctx, d)
}

// Status returns the current status.
func (c *Component) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ErrorReason returns the reason of the last fault, or "". It is cleared
// when the component becomes Enabled again.
func (c *Component) ErrorReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errorReason
}

// InFlight returns the transition currently executing, if any.
func (c *Component) InFlight() (InFlight, bool) {
	c.mu.Lock()
	rec := c.inflight
	c.mu.Unlock()
	if rec == nil {
		return InFlight{}, false
	}
	return InFlight{
		ID:              rec.id.String(),
		Kind:            rec.desc.kind,
		Reason:          rec.desc.reason,
		StartedAt:       rec.startedAt,
		Age:             time.Since(rec.startedAt),
		CancelRequested: rec.cancelRequested.Load(),
	}, true
}

// ===========================================================================
// Executor
// ===========================================================================

func (c *Component) submit(ctx context.Context, d TransitionDescriptor) bool {
	if d.target != c || !d.kind.Valid() {
		c.logger.ErrorContext(ctx, "lifecycle: malformed transition descriptor",
			"component", c.FQN(),
			"kind", string(d.kind),
		)
		return false
	}
	c.mu.Lock()
	status, busy := c.status, c.inflight != nil
	c.mu.Unlock()
	// An interrupting request is judged against the status the interrupted
	// transition leaves behind.
	if !Admissible(d.kind, status) && !(d.interrupt && busy && status != StatusDestroyed) {
		c.logger.DebugContext(ctx, "lifecycle: transition rejected",
			"component", c.FQN(),
			"kind", string(d.kind),
			"status", string(status),
		)
		return false
	}
	if c.ownedBy(ctx) {
		return c.reentrant(ctx, d)
	}
	if c.asynchronous {
		c.schedule(ctx, d)
		return true
	}
	return c.execute(ctx, d)
}

// ownedBy reports whether ctx belongs to the transition in flight on c.
func (c *Component) ownedBy(ctx context.Context) bool {
	rec := ownedRecord(ctx, c)
	if rec == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight == rec
}

// reentrant rejects a transition requested from the component's own
// in-flight transition. Error and CriticalError panic; waiting for the own
// record would never return.
func (c *Component) reentrant(ctx context.Context, d TransitionDescriptor) bool {
	fault := sserr.Newf(sserr.CodeReentrancy,
		"lifecycle: %s requested on %q from inside its own in-flight transition", d.kind, c.FQN())
	c.logger.ErrorContext(ctx, "lifecycle: reentrant transition rejected",
		"component", c.FQN(),
		"kind", string(d.kind),
		"fault_code", fault.Code.String(),
	)
	c.notify(FaultEvent{Component: c.FQN(), Code: fault.Code, Reason: fault.Message, At: time.Now().UTC()})
	if d.kind == KindError || d.kind == KindCriticalError {
		panic(fault)
	}
	return false
}

// schedule runs d off the calling goroutine: on the dispatcher when it
// accepts the task, otherwise on a dedicated goroutine. The requester's
// cancellation does not reach a scheduled transition.
func (c *Component) schedule(ctx context.Context, d TransitionDescriptor) {
	env := c.environment()
	name := c.FQN()
	task := func(ctx context.Context) {
		defer env.supervisor.Recover(ctx, name)
		c.execute(ctx, d)
	}

	actx := context.WithoutCancel(ctx)
	if env.dispatcher != nil && !env.dispatcher.IsWorker(ctx) && env.dispatcher.Submit(actx, task) {
		return
	}
	go task(actx)
}

func (c *Component) execute(ctx context.Context, d TransitionDescriptor) bool {
	rec := c.acquire(ctx, d)
	if rec == nil {
		return false
	}
	c.run(rec)
	return true
}

// acquire waits until no transition is in flight, re-checks admissibility
// and installs the record for d.
func (c *Component) acquire(ctx context.Context, d TransitionDescriptor) *inflight {
	// Only the transition found in flight is interrupted; the Error
	// transition it may be converted into runs to completion.
	signaled := false
	c.mu.Lock()
	for c.inflight != nil {
		cur := c.inflight
		if ownedRecord(ctx, c) == cur {
			c.mu.Unlock()
			c.reentrant(ctx, d)
			return nil
		}
		if d.interrupt && !signaled {
			signaled = true
			if !cur.cancelRequested.Load() {
				c.logger.InfoContext(ctx, "lifecycle: interrupting in-flight transition",
					"component", c.FQN(),
					"kind", string(cur.desc.kind),
					"requested", string(d.kind),
				)
				cur.interrupt(errInterrupted)
			}
		}
		c.mu.Unlock()

		select {
		case <-cur.done:
		case <-ctx.Done():
			c.logger.WarnContext(ctx, "lifecycle: gave up waiting for in-flight transition",
				"component", c.FQN(),
				"kind", string(d.kind),
				"blocking_kind", string(cur.desc.kind),
			)
			return nil
		}
		c.mu.Lock()
	}

	if !Admissible(d.kind, c.status) {
		status := c.status
		c.mu.Unlock()
		c.logger.DebugContext(ctx, "lifecycle: transition no longer admissible",
			"component", c.FQN(),
			"kind", string(d.kind),
			"status", string(status),
		)
		return nil
	}
	rec := c.installLocked(ctx, d)
	c.mu.Unlock()
	return rec
}

// installLocked creates the in-flight record for d, makes it current and
// publishes the transient status. c.mu must be held.
func (c *Component) installLocked(ctx context.Context, d TransitionDescriptor) *inflight {
	rec := &inflight{
		id:        uuid.New(),
		desc:      d,
		from:      c.status,
		startedAt: time.Now(),
		parent:    ctx,
		done:      make(chan struct{}),
	}
	base, cancel := context.WithCancelCause(ctx)
	hctx, stop := context.WithTimeoutCause(base, c.MaxTransitionDuration(), errDeadline)
	rec.cancel, rec.stop = cancel, stop
	rec.ctx = withOwner(hctx, rec)

	c.inflight = rec
	if d.kind == KindError || d.kind == KindCriticalError {
		c.errorReason = d.reason
	}
	c.publishLocked(transientStatus(d.kind), d.reason)
	return rec
}

// run executes the hook chain of rec and resolves the outcome.
func (c *Component) run(rec *inflight) {
	d := rec.desc
	ctx, span := c.tracer.Start(rec.ctx, "lifecycle."+d.kind.String(),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("component.fqn", c.FQN()),
			attribute.String("transition.kind", d.kind.String()),
			attribute.String("transition.id", rec.id.String()),
			attribute.Bool("transition.due_to_failure", d.dueToFailure),
		),
	)
	defer span.End()

	c.logger.DebugContext(ctx, "lifecycle: transition started",
		"component", c.FQN(),
		"kind", string(d.kind),
		"from", string(rec.from),
		"reason", d.reason,
	)

	defer func() {
		if r := recover(); r != nil {
			fault := sserr.FromPanic(r, sserr.CodeFault, "lifecycle: hook panicked")
			span.RecordError(fault)
			span.SetStatus(codes.Error, fault.Error())
			c.abandon(ctx, rec, fault)
			panic(r)
		}
	}()

	err := c.runHooks(ctx, d)
	if err == nil {
		err = interrupted(ctx)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		// A hook that gave up at the maximum duration is resolved like a
		// stuck one: no error hook runs.
		if errors.Is(context.Cause(rec.ctx), errDeadline) && c.resolveStuck(ctx, rec) {
			return
		}
		c.fail(ctx, rec, err)
		return
	}

	c.complete(ctx, rec)
	span.SetStatus(codes.Ok, "")
}

func (c *Component) complete(ctx context.Context, rec *inflight) {
	d := rec.desc
	c.mu.Lock()
	if c.inflight != rec {
		c.mu.Unlock()
		c.discard(ctx, rec)
		return
	}
	c.inflight = nil
	status := successStatus(d.kind)
	if status == StatusEnabled {
		c.errorReason = ""
	}
	c.publishLocked(status, d.reason)
	c.notifyTransition(rec, ResultCompleted)
	c.mu.Unlock()
	rec.finish()

	c.logger.DebugContext(ctx, "lifecycle: transition completed",
		"component", c.FQN(),
		"kind", string(d.kind),
		"status", string(status),
		"duration", time.Since(rec.startedAt),
	)
}

// fail resolves a faulted transition. ShutDown, Error and CriticalError
// settle in their terminal status; Engage and Reinitialize are converted
// into an Error transition that takes over the in-flight slot without
// releasing it.
func (c *Component) fail(ctx context.Context, rec *inflight, err error) {
	d := rec.desc
	fault := asFault(err)
	c.logger.ErrorContext(ctx, "lifecycle: transition failed",
		"component", c.FQN(),
		"kind", string(d.kind),
		"fault_code", fault.Code.String(),
		"error", fault,
	)

	c.mu.Lock()
	if c.inflight != rec {
		c.mu.Unlock()
		c.discard(ctx, rec)
		return
	}
	c.errorReason = fault.Error()
	c.notifyTransition(rec, ResultFailed)

	var next *inflight
	if d.kind == KindEngage || d.kind == KindReinitialize {
		nd := NewTransitionDescriptor(c, KindError, WithReason(fault.Error()))
		nd.fault = fault
		next = c.installLocked(context.WithoutCancel(rec.parent), nd)
	} else {
		c.inflight = nil
		c.publishLocked(failureStatus(d.kind), fault.Error())
	}
	c.mu.Unlock()
	rec.finish()

	if next != nil {
		c.run(next)
	}
}

// abandon resolves a transition whose hook panicked. No further hook runs.
func (c *Component) abandon(ctx context.Context, rec *inflight, fault *sserr.Error) {
	c.mu.Lock()
	if c.inflight == rec {
		c.inflight = nil
		c.errorReason = fault.Error()
		c.publishLocked(failureStatus(rec.desc.kind), fault.Error())
		c.notifyTransition(rec, ResultFailed)
	}
	c.mu.Unlock()
	rec.finish()

	c.logger.ErrorContext(ctx, "lifecycle: hook panicked",
		"component", c.FQN(),
		"kind", string(rec.desc.kind),
		"fault_code", fault.Code.String(),
		"error", fault,
	)
}

// discard drops the outcome of a transition that was force-resolved while
// its hooks were still running.
func (c *Component) discard(ctx context.Context, rec *inflight) {
	rec.finish()
	c.notifyTransition(rec, ResultDiscarded)
	c.logger.WarnContext(ctx, "lifecycle: late completion of a force-resolved transition discarded",
		"component", c.FQN(),
		"kind", string(rec.desc.kind),
		"duration", time.Since(rec.startedAt),
	)
}

// resolveStuck force-resolves rec if it is still in flight: the status is
// set to the terminal value of its kind (Error for Engage and
// Reinitialize) without running any hook, the record is cleared and the
// hooks are told to stop. The goroutine running them cannot be reclaimed.
// The health check calls it for records past their maximum duration, and
// run calls it when the hooks returned because that deadline expired.
func (c *Component) resolveStuck(ctx context.Context, rec *inflight) bool {
	age := time.Since(rec.startedAt)
	fault := sserr.Wrapf(errStuck, sserr.CodeStuckTransition,
		"lifecycle: %s on %q stuck for %s", rec.desc.kind, c.FQN(), age.Round(time.Millisecond))

	c.mu.Lock()
	if c.inflight != rec {
		c.mu.Unlock()
		return false
	}
	c.inflight = nil
	status := failureStatus(rec.desc.kind)
	c.errorReason = fault.Message
	c.publishLocked(status, fault.Message)
	c.notifyTransition(rec, ResultForced)
	c.notify(FaultEvent{Component: c.FQN(), Code: fault.Code, Reason: fault.Message, At: time.Now().UTC()})
	c.mu.Unlock()

	rec.interrupt(errStuck)
	rec.finish()

	c.logger.ErrorContext(ctx, "lifecycle: STUCK transition force-resolved",
		"component", c.FQN(),
		"kind", string(rec.desc.kind),
		"status", string(status),
		"age", age,
		"limit", c.MaxTransitionDuration(),
		"fault_code", fault.Code.String(),
	)
	return true
}

func (c *Component) notifyTransition(rec *inflight, result TransitionResult) {
	c.notify(TransitionEvent{
		Component: c.FQN(),
		Kind:      rec.desc.kind,
		Result:    result,
		Duration:  time.Since(rec.startedAt),
		At:        time.Now().UTC(),
	})
}
