package lifecycle

import (
	"time"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
)

// Event topics.
const (
	TopicStatus     = "status"
	TopicStructure  = "structure"
	TopicTransition = "transition"
	TopicFault      = "fault"
	TopicPolicy     = "policy"
)

// Event is a notification emitted by the runtime. Collaborators such as an
// event bus, a metrics collector or a health reporter consume events
// through a [Notifier].
type Event interface {
	// Topic groups events by type so subscribers can filter.
	Topic() string
}

// Notifier receives runtime events. Notify is called while the emitting
// component holds its status lock so that status events arrive in publish
// order; implementations must not block and must not call back into the
// component.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to a [Notifier].
type NotifierFunc func(Event)

// Notify calls f(e).
func (f NotifierFunc) Notify(e Event) { f(e) }

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}

// StatusEvent reports a status change of a component.
type StatusEvent struct {
	Component string    `json:"component"`
	Old       Status    `json:"old_status,omitempty"`
	New       Status    `json:"new_status"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// Topic returns [TopicStatus].
func (StatusEvent) Topic() string { return TopicStatus }

// StructureChange describes a change of the component tree.
type StructureChange string

const (
	StructureAdded   StructureChange = "added"
	StructureRemoved StructureChange = "removed"
)

// StructureEvent reports that a child was added to or removed from a
// parent. Renames are reported as a removal under the old name followed by
// an addition under the new one.
type StructureEvent struct {
	Parent string          `json:"parent"`
	Child  string          `json:"child"`
	Change StructureChange `json:"change"`
	At     time.Time       `json:"at"`
}

// Topic returns [TopicStructure].
func (StructureEvent) Topic() string { return TopicStructure }

// TransitionResult is the outcome of one executed transition.
type TransitionResult string

const (
	ResultCompleted TransitionResult = "completed"
	ResultFailed    TransitionResult = "failed"
	ResultForced    TransitionResult = "forced"
	ResultDiscarded TransitionResult = "discarded"
)

// TransitionEvent reports the end of an executed transition.
type TransitionEvent struct {
	Component string           `json:"component"`
	Kind      Kind             `json:"kind"`
	Result    TransitionResult `json:"result"`
	Duration  time.Duration    `json:"duration"`
	At        time.Time        `json:"at"`
}

// Topic returns [TopicTransition].
func (TransitionEvent) Topic() string { return TopicTransition }

// FaultEvent reports a condition that needs operator attention: a stuck
// transition, an orphaned worker failure, a reentrancy violation, the
// quarantine of a key component or a resource exhaustion.
type FaultEvent struct {
	Component string     `json:"component"`
	Code      sserr.Code `json:"code"`
	Reason    string     `json:"reason"`
	At        time.Time  `json:"at"`
}

// Topic returns [TopicFault].
func (FaultEvent) Topic() string { return TopicFault }

// PolicyDecision is the restart policy's answer to a failure.
type PolicyDecision string

const (
	DecisionRestart    PolicyDecision = "restart"
	DecisionQuarantine PolicyDecision = "quarantine"
)

// PolicyEvent reports a decision of the restart policy.
type PolicyEvent struct {
	Component string         `json:"component"`
	Decision  PolicyDecision `json:"decision"`
	Attempt   int            `json:"attempt"`
	Budget    int            `json:"budget"`
	Key       bool           `json:"key"`
	Reason    string         `json:"reason,omitempty"`
	At        time.Time      `json:"at"`
}

// Topic returns [TopicPolicy].
func (PolicyEvent) Topic() string { return TopicPolicy }
