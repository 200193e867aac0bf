// Package lifecycle is the component supervision runtime: a tree of
// components, each with an explicit lifecycle status, whose transitions are
// serialized, bounded in time and escalated to a restart-or-quarantine
// policy when they fail.
//
// # Components
//
// A [Component] is a node in an ownership tree. It owns its children and a
// set of named [Property] values, and exposes the lifecycle operations
// [Component.Engage], [Component.ShutDown], [Component.Reinitialize],
// [Component.Error] and [Component.CriticalError]. Each operation builds a
// [TransitionDescriptor] and hands it to the component's transition
// executor, which guarantees that at most one transition runs on a
// component at any instant.
//
// The healthy flow of a component is:
//
//	Created → Initializing → Enabled → ShuttingDown → Down
//
// Failures move a component to Error or CriticalError; both may be
// engaged again. Destroyed is terminal.
//
// # Supervision
//
// An [ActiveComponent] additionally owns a worker goroutine started through
// a [Supervisor] and a [RestartPolicy]. Worker failures are routed back to
// the owning component, which reports them to its [Orchestrator]. The
// orchestrator restarts the component while its restart budget lasts and
// quarantines it (CriticalError) afterwards. A periodic health-check loop
// force-resolves transitions that outlive their deadline.
//
// # OpenTelemetry Integration
//
// Every executed transition creates a span named "lifecycle.<kind>". The
// tracer scope is "github.com/StricklySoft/stricklysoft-runtime/pkg/lifecycle".
package lifecycle

// Status is the lifecycle status of a [Component]. Statuses only change
// through the transition executor; there is no setter.
type Status string

const (
	// StatusCreated is the initial status of every component.
	StatusCreated Status = "created"

	// StatusInitializing is published while an Engage transition runs the
	// OnInitialize hook.
	StatusInitializing Status = "initializing"

	// StatusEnabled indicates the component initialized successfully and
	// is doing its work.
	StatusEnabled Status = "enabled"

	// StatusReinitializing is published while a Reinitialize transition
	// shuts the component down and initializes it again.
	StatusReinitializing Status = "reinitializing"

	// StatusShuttingDown is published while a ShutDown transition runs the
	// OnShutDown hook.
	StatusShuttingDown Status = "shutting_down"

	// StatusDown indicates a clean shutdown. The component may be engaged
	// again.
	StatusDown Status = "down"

	// StatusError indicates a recoverable failure. Active components in
	// this status are handed to their orchestrator's restart policy.
	StatusError Status = "error"

	// StatusCriticalError indicates the component is quarantined. Only an
	// explicit Engage brings it back.
	StatusCriticalError Status = "critical_error"

	// StatusDestroyed is terminal and irreversible. No transition is
	// admissible from it.
	StatusDestroyed Status = "destroyed"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Valid reports whether the status is one of the recognized statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusInitializing, StatusEnabled, StatusReinitializing,
		StatusShuttingDown, StatusDown, StatusError, StatusCriticalError, StatusDestroyed:
		return true
	default:
		return false
	}
}

// IsFailure reports whether the status is Error or CriticalError.
func (s Status) IsFailure() bool {
	return s == StatusError || s == StatusCriticalError
}

// IsActive reports whether a component in this status holds resources
// that a rename or re-parent must release: Enabled, Initializing or
// Reinitializing.
func (s Status) IsActive() bool {
	switch s {
	case StatusEnabled, StatusInitializing, StatusReinitializing:
		return true
	default:
		return false
	}
}

// Kind identifies the kind of a lifecycle transition.
type Kind string

const (
	// KindEngage initializes a component and enables it.
	KindEngage Kind = "engage"

	// KindShutDown shuts a component down cleanly.
	KindShutDown Kind = "shut_down"

	// KindReinitialize shuts a component down and initializes it again.
	KindReinitialize Kind = "reinitialize"

	// KindError moves a component to StatusError.
	KindError Kind = "error"

	// KindCriticalError quarantines a component in StatusCriticalError.
	KindCriticalError Kind = "critical_error"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Valid reports whether the kind is one of the recognized kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindEngage, KindShutDown, KindReinitialize, KindError, KindCriticalError:
		return true
	default:
		return false
	}
}

// Admissible reports whether a transition of kind k may start from status
// s. The table is:
//
//	Engage        Created, Error, CriticalError, Down
//	ShutDown      anything except ShuttingDown, Down
//	Reinitialize  anything except Reinitializing
//	Error         anything except Error
//	CriticalError anything except CriticalError
//
// Nothing is admissible from Destroyed.
func Admissible(k Kind, s Status) bool {
	if s == StatusDestroyed || !s.Valid() {
		return false
	}
	switch k {
	case KindEngage:
		return s == StatusCreated || s == StatusError || s == StatusCriticalError || s == StatusDown
	case KindShutDown:
		return s != StatusShuttingDown && s != StatusDown
	case KindReinitialize:
		return s != StatusReinitializing
	case KindError:
		return s != StatusError
	case KindCriticalError:
		return s != StatusCriticalError
	default:
		return false
	}
}

// transientStatus is the status published when a transition of kind k
// starts executing.
func transientStatus(k Kind) Status {
	switch k {
	case KindEngage:
		return StatusInitializing
	case KindShutDown:
		return StatusShuttingDown
	case KindReinitialize:
		return StatusReinitializing
	case KindError:
		return StatusError
	default:
		return StatusCriticalError
	}
}

// successStatus is the status published when a transition of kind k
// completes without a fault.
func successStatus(k Kind) Status {
	switch k {
	case KindEngage, KindReinitialize:
		return StatusEnabled
	case KindShutDown:
		return StatusDown
	case KindError:
		return StatusError
	default:
		return StatusCriticalError
	}
}

// failureStatus is the terminal status forced when a transition of kind k
// fails or times out. Engage and Reinitialize have none of their own; a
// failure converts them into an Error transition.
func failureStatus(k Kind) Status {
	switch k {
	case KindShutDown:
		return StatusDown
	case KindCriticalError:
		return StatusCriticalError
	default:
		return StatusError
	}
}
