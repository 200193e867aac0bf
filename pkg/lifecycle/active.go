package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
)

// Runner is the work loop of an [ActiveComponent]. Run must return when
// ctx is canceled. Returning an error, or panicking, before that is a
// worker failure; returning nil leaves the component Enabled with a dead
// worker, which the health check reports as a failure.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to a [Runner].
type RunnerFunc func(ctx context.Context) error

// Run calls f(ctx).
func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// ActiveComponent is a [Component] with a supervised worker goroutine and
// a [RestartPolicy]. The worker is started when an Engage or Reinitialize
// succeeds in initializing the component and is stopped by every other
// transition. Error transitions are reported to the orchestrator, which
// restarts the component while the restart budget lasts and quarantines it
// afterwards.
type ActiveComponent struct {
	*Component

	runner   Runner
	policy   RestartPolicy
	fallback *Supervisor

	mu            sync.Mutex
	worker        *Worker
	restartCount  int
	exhausted     bool
	healthyChecks int
}

func newActiveComponent(c *Component, runner Runner, policy RestartPolicy) *ActiveComponent {
	a := &ActiveComponent{Component: c, runner: runner, policy: policy}
	c.active = a
	a.fallback = NewSupervisor(func(name string) *Component {
		if name == c.FQN() {
			return c
		}
		return nil
	}, WithSupervisorLogger(c.logger))

	user := c.hooks
	initialize := orDefault(user.initialize, c.CascadeEngage)
	shutDown := orDefault(user.shutDown, c.CascadeShutDown)
	onError := orDefault(user.onError, shutDown)
	critical := orDefault(user.criticalError, shutDown)

	c.hooks.initialize = func(ctx context.Context) error {
		if d, ok := TransitionFromContext(ctx); ok && d.kind == KindEngage {
			if prev, _ := PreviousStatus(ctx); prev == StatusCriticalError {
				a.ResetRestartBudget()
			}
		}
		if err := initialize(ctx); err != nil {
			return err
		}
		if err := interrupted(ctx); err != nil {
			return err
		}
		a.startWorker(ctx)
		return nil
	}
	c.hooks.shutDown = func(ctx context.Context) error {
		return errors.Join(a.stopWorker(ctx), shutDown(ctx))
	}
	c.hooks.onError = func(ctx context.Context) error {
		err := errors.Join(a.stopWorker(ctx), onError(ctx))
		if d, ok := TransitionFromContext(ctx); ok && !errors.Is(d.fault, errInterrupted) {
			a.postFailure(ctx, d.reason)
		}
		return err
	}
	c.hooks.criticalError = func(ctx context.Context) error {
		return errors.Join(a.stopWorker(ctx), critical(ctx))
	}
	c.hooks.restartPause = func(ctx context.Context) error {
		if d, ok := TransitionFromContext(ctx); ok && d.dueToFailure {
			return Sleep(ctx, a.policy.Delay)
		}
		return nil
	}
	return a
}

func orDefault(h, def Hook) Hook {
	if h != nil {
		return h
	}
	return def
}

// Policy returns the restart policy.
func (a *ActiveComponent) Policy() RestartPolicy { return a.policy }

// IsKey reports whether the component is a key component.
func (a *ActiveComponent) IsKey() bool { return a.policy.Key }

// RestartCount returns the number of automatic restarts since the last
// reset.
func (a *ActiveComponent) RestartCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.restartCount
}

// Restartable reports whether another automatic restart is allowed. Once
// it has returned false it keeps doing so until [ActiveComponent.ResetRestartBudget]
// or an explicit Engage out of CriticalError.
func (a *ActiveComponent) Restartable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.exhausted {
		return false
	}
	if a.restartCount < a.policy.Budget {
		return true
	}
	a.exhausted = true
	return false
}

// ResetRestartBudget clears the restart count and the exhausted flag.
func (a *ActiveComponent) ResetRestartBudget() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.restartCount = 0
	a.exhausted = false
	a.healthyChecks = 0
}

// ReinitializingDueToFailure reports whether the transition in flight is
// an automatic restart rather than a requested one.
func (a *ActiveComponent) ReinitializingDueToFailure() bool {
	a.Component.mu.Lock()
	defer a.Component.mu.Unlock()
	rec := a.inflight
	return rec != nil && rec.desc.kind == KindReinitialize && rec.desc.dueToFailure
}

// WorkerAlive reports whether the worker goroutine is running.
func (a *ActiveComponent) WorkerAlive() bool {
	a.mu.Lock()
	w := a.worker
	a.mu.Unlock()
	return w != nil && w.Alive()
}

func (a *ActiveComponent) supervisor() *Supervisor {
	if s := a.environment().supervisor; s != nil {
		return s
	}
	return a.fallback
}

func (a *ActiveComponent) startWorker(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.worker != nil && a.worker.Alive() {
		return
	}
	a.worker = a.supervisor().Go(ctx, a.FQN(), a.runner.Run)
	a.healthyChecks = 0

	a.logger.DebugContext(ctx, "lifecycle: worker started", "component", a.FQN())
}

// stopWorker cancels the worker and joins it, bounded by ctx.
func (a *ActiveComponent) stopWorker(ctx context.Context) error {
	a.mu.Lock()
	w := a.worker
	a.worker = nil
	a.mu.Unlock()
	if w == nil {
		return nil
	}
	if err := w.Stop(ctx); err != nil {
		a.logger.ErrorContext(ctx, "lifecycle: worker did not stop",
			"component", a.FQN(),
			"error", err,
		)
		return err
	}
	a.logger.DebugContext(ctx, "lifecycle: worker stopped", "component", a.FQN())
	return nil
}

func (a *ActiveComponent) postFailure(ctx context.Context, reason string) {
	sink := a.environment().failures
	if sink == nil {
		a.logger.WarnContext(ctx, "lifecycle: failure of active component has no orchestrator",
			"component", a.FQN(),
			"reason", reason,
		)
		return
	}
	sink.postFailure(detached(ctx), a, reason)
}

// recordCheck updates the healthy streak after a periodic check. Two
// consecutive healthy checks while Enabled clear the restart count.
func (a *ActiveComponent) recordCheck(healthy bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !healthy {
		a.healthyChecks = 0
		return
	}
	a.healthyChecks++
	if a.healthyChecks >= 2 && a.restartCount > 0 {
		a.restartCount = 0
	}
}

// applyPolicy restarts the component if its budget allows and quarantines
// it otherwise.
func (a *ActiveComponent) applyPolicy(ctx context.Context, reason string) PolicyDecision {
	event := PolicyEvent{
		Component: a.FQN(),
		Budget:    a.policy.Budget,
		Key:       a.policy.Key,
		Reason:    reason,
	}

	if a.Restartable() {
		a.mu.Lock()
		a.restartCount++
		a.healthyChecks = 0
		event.Attempt = a.restartCount
		a.mu.Unlock()

		event.Decision = DecisionRestart
		event.At = time.Now().UTC()
		a.notify(event)
		a.logger.WarnContext(ctx, "lifecycle: restarting failed component",
			"component", a.FQN(),
			"attempt", event.Attempt,
			"budget", a.policy.Budget,
			"reason", reason,
		)
		a.Reinitialize(ctx, dueToFailure(), WithReason(reason))
		return DecisionRestart
	}

	event.Attempt = a.RestartCount()
	event.Decision = DecisionQuarantine
	event.At = time.Now().UTC()
	a.notify(event)

	code := sserr.CodeQuarantined
	msg := "lifecycle: component quarantined, restart budget exhausted"
	if a.policy.Key {
		code = sserr.CodeKeyQuarantined
		msg = "lifecycle: KEY component quarantined, restart budget exhausted"
	}
	a.logger.ErrorContext(ctx, msg,
		"component", a.FQN(),
		"budget", a.policy.Budget,
		"reason", reason,
		"fault_code", code.String(),
	)
	a.notify(FaultEvent{Component: a.FQN(), Code: code, Reason: reason, At: time.Now().UTC()})
	a.CriticalError(ctx, "restart budget exhausted: "+reason)
	return DecisionQuarantine
}
