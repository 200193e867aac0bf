package lifecycle

import (
	"context"
	"time"
)

// Hook is a function run by the transition executor. The context it
// receives is canceled when the transition is interrupted, when it outlives
// [Component.MaxTransitionDuration] or when it is force-resolved; hooks
// should check it between sub-steps. Returning an error is a fault that the
// executor resolves through the state machine. Panics are not faults: the
// executor resolves the status and re-panics.
type Hook func(ctx context.Context) error

// Initializer is implemented by component behaviors with an initialize
// step. Without it, Engage cascades to the children.
type Initializer interface {
	OnInitialize(ctx context.Context) error
}

// ShutDowner is implemented by component behaviors with a shutdown step.
// Without it, ShutDown cascades to the children.
type ShutDowner interface {
	OnShutDown(ctx context.Context) error
}

// ErrorHandler is implemented by component behaviors that react to an
// Error transition. Without it, Error behaves like ShutDown.
type ErrorHandler interface {
	OnError(ctx context.Context) error
}

// CriticalErrorHandler is implemented by component behaviors that react to
// a CriticalError transition. Without it, CriticalError behaves like
// ShutDown.
type CriticalErrorHandler interface {
	OnCriticalError(ctx context.Context) error
}

// Checker is implemented by component behaviors with a periodic health
// check. DoCheck runs only while the component is Enabled; an error moves
// the component to Error.
type Checker interface {
	DoCheck(ctx context.Context) error
}

// hookSet holds the resolved hooks of a component. Nil entries fall back
// to the documented defaults.
type hookSet struct {
	initialize    Hook
	shutDown      Hook
	onError       Hook
	criticalError Hook
	check         Hook

	// Active components wrap the user hooks and add a pause between the
	// shutdown and initialize halves of a restart.
	restartPause Hook
}

func hooksFrom(behavior any) hookSet {
	var h hookSet
	if v, ok := behavior.(Initializer); ok {
		h.initialize = v.OnInitialize
	}
	if v, ok := behavior.(ShutDowner); ok {
		h.shutDown = v.OnShutDown
	}
	if v, ok := behavior.(ErrorHandler); ok {
		h.onError = v.OnError
	}
	if v, ok := behavior.(CriticalErrorHandler); ok {
		h.criticalError = v.OnCriticalError
	}
	if v, ok := behavior.(Checker); ok {
		h.check = v.DoCheck
	}
	return h
}

func (c *Component) initializeHook(ctx context.Context) error {
	if c.hooks.initialize != nil {
		return c.hooks.initialize(ctx)
	}
	return c.CascadeEngage(ctx)
}

func (c *Component) shutDownHook(ctx context.Context) error {
	if c.hooks.shutDown != nil {
		return c.hooks.shutDown(ctx)
	}
	return c.CascadeShutDown(ctx)
}

func (c *Component) errorHook(ctx context.Context) error {
	if c.hooks.onError != nil {
		return c.hooks.onError(ctx)
	}
	return c.shutDownHook(ctx)
}

func (c *Component) criticalErrorHook(ctx context.Context) error {
	if c.hooks.criticalError != nil {
		return c.hooks.criticalError(ctx)
	}
	return c.shutDownHook(ctx)
}

// runHooks is the hook chain of one transition.
func (c *Component) runHooks(ctx context.Context, d TransitionDescriptor) error {
	switch d.kind {
	case KindEngage:
		if err := c.resolveProperties(ctx); err != nil {
			return err
		}
		return c.initializeHook(ctx)

	case KindReinitialize:
		if err := c.shutDownHook(ctx); err != nil {
			return err
		}
		if err := interrupted(ctx); err != nil {
			return err
		}
		if c.hooks.restartPause != nil {
			if err := c.hooks.restartPause(ctx); err != nil {
				return err
			}
		}
		if err := c.resolveProperties(ctx); err != nil {
			return err
		}
		return c.initializeHook(ctx)

	case KindShutDown:
		return c.shutDownHook(ctx)

	case KindError:
		return c.errorHook(ctx)

	default:
		return c.criticalErrorHook(ctx)
	}
}

// CascadeEngage engages the children in name order. It is the default
// OnInitialize of a component that cascades to its children, and a
// building block for custom hooks. A child that fails does not fail the
// parent; cancellation of ctx stops the cascade.
func (c *Component) CascadeEngage(ctx context.Context) error {
	if !c.cascade {
		return nil
	}
	for _, ch := range c.Children() {
		if err := interrupted(ctx); err != nil {
			return err
		}
		if Admissible(KindEngage, ch.Status()) {
			ch.Engage(ctx)
		}
	}
	return nil
}

// CascadeShutDown shuts the children down in reverse name order. It is the
// default OnShutDown of a component that cascades to its children.
func (c *Component) CascadeShutDown(ctx context.Context) error {
	if !c.cascade {
		return nil
	}
	children := c.Children()
	for i := len(children) - 1; i >= 0; i-- {
		if err := interrupted(ctx); err != nil {
			return err
		}
		ch := children[i]
		if s := ch.Status(); s != StatusCreated && Admissible(KindShutDown, s) {
			ch.ShutDown(ctx)
		}
	}
	return nil
}

// Sleep waits for d or until ctx is canceled, whichever comes first, and
// reports the cancellation as a fault. Hooks use it for cancellable
// pauses.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return interrupted(ctx)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return interrupted(ctx)
	}
}
