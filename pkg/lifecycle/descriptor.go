package lifecycle

import sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"

// TransitionDescriptor describes one requested transition. It is built once
// by the lifecycle operations and never mutated afterwards; accessors are
// the only way to read it.
type TransitionDescriptor struct {
	target    *Component
	kind      Kind
	reason    string
	interrupt bool

	// dueToFailure marks a Reinitialize issued by the restart policy.
	dueToFailure bool

	// fault is the failure that converted a failed Engage or Reinitialize
	// into this Error transition.
	fault *sserr.Error
}

// TransitionOption customizes a [TransitionDescriptor].
type TransitionOption func(*TransitionDescriptor)

// WithReason attaches a human-readable reason. Error and CriticalError
// keep it as the component's error reason.
func WithReason(reason string) TransitionOption {
	return func(d *TransitionDescriptor) {
		d.reason = reason
	}
}

// Interrupting makes the transition cancel a transition already in flight
// on the target instead of waiting for it to finish.
func Interrupting() TransitionOption {
	return func(d *TransitionDescriptor) {
		d.interrupt = true
	}
}

// dueToFailure marks a Reinitialize requested by the restart policy.
func dueToFailure() TransitionOption {
	return func(d *TransitionDescriptor) {
		d.dueToFailure = true
	}
}

// NewTransitionDescriptor builds a descriptor for a transition of kind on
// target.
func NewTransitionDescriptor(target *Component, kind Kind, opts ...TransitionOption) TransitionDescriptor {
	d := TransitionDescriptor{target: target, kind: kind}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// Target returns the component the transition applies to.
func (d TransitionDescriptor) Target() *Component { return d.target }

// Kind returns the transition kind.
func (d TransitionDescriptor) Kind() Kind { return d.kind }

// Reason returns the optional reason, or "".
func (d TransitionDescriptor) Reason() string { return d.reason }

// InterruptInProgress reports whether the transition cancels an in-flight
// transition rather than waiting for it.
func (d TransitionDescriptor) InterruptInProgress() bool { return d.interrupt }

// DueToFailure reports whether the transition is an automatic restart
// issued by the restart policy.
func (d TransitionDescriptor) DueToFailure() bool { return d.dueToFailure }

// Fault returns the failure that caused this transition, if it was
// produced by converting a failed Engage or Reinitialize.
func (d TransitionDescriptor) Fault() *sserr.Error { return d.fault }
