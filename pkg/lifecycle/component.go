package lifecycle

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
const tracerName = "github.com/StricklySoft/stricklysoft-runtime/pkg/lifecycle"

// DefaultTransitionTimeout is used when a component is built without an
// explicit transition timeout.
const DefaultTransitionTimeout = 30 * time.Second

// environment is the set of runtime services a component reaches through
// its root. It is inherited by every node added below an orchestrator and
// replaced with the detached environment when a node is removed.
type environment struct {
	notifier   Notifier
	dispatcher *Dispatcher
	supervisor *Supervisor
	failures   failureSink
	properties PropertySource
}

var detachedEnvironment = &environment{notifier: nopNotifier{}}

// failureSink receives failure notifications from active components.
type failureSink interface {
	postFailure(ctx context.Context, a *ActiveComponent, reason string)
}

// Component is a node of the supervised ownership tree. It owns a status,
// a set of named properties and its children, and runs its lifecycle
// transitions one at a time.
//
// A Component is safe for concurrent use. Build one with [NewComponent] or
// [ComponentBuilder].
type Component struct {
	// Immutable after construction.
	asynchronous bool
	cascade      bool
	timeout      time.Duration
	logger       *slog.Logger
	tracer       trace.Tracer
	hooks        hookSet
	source       PropertySource
	active       *ActiveComponent

	// linkMu serializes writes of name and parent. It is taken before the
	// parent's treeMu and never together with another linkMu; a parent
	// unlinking a replaced child holds only its own treeMu.
	linkMu sync.Mutex
	name   atomic.Pointer[string]
	parent atomic.Pointer[Component]
	fqn    atomic.Pointer[string]
	env    atomic.Pointer[environment]

	// Tree and properties, guarded by treeMu. treeMu is held only for the
	// mutation itself, never across a transition.
	treeMu        sync.Mutex
	children      map[string]*Component
	properties    map[string]Property
	propsResolved bool

	// Transition state, guarded by mu.
	mu          sync.Mutex
	status      Status
	errorReason string
	inflight    *inflight
	changed     chan struct{}
	seq         uint64
	history     [historySize]statusRecord
}

// NewComponent builds a synchronous component with default settings that
// cascades its transitions to its children. Use [ComponentBuilder] for
// anything else.
func NewComponent(name string) *Component {
	c, _ := NewComponentBuilder(name).Build()
	return c
}

// Name returns the component's name within its parent.
func (c *Component) Name() string {
	return *c.name.Load()
}

// Parent returns the owning component, or nil for a root or detached node.
func (c *Component) Parent() *Component {
	return c.parent.Load()
}

// Root returns the topmost ancestor of the component.
func (c *Component) Root() *Component {
	n := c
	for p := n.Parent(); p != nil; p = n.Parent() {
		n = p
	}
	return n
}

// FQN returns the fully-qualified name: the names from the root down to
// the component joined with [Separator]. The value is cached until the
// component or one of its ancestors is renamed or re-parented.
func (c *Component) FQN() string {
	if cached := c.fqn.Load(); cached != nil {
		return *cached
	}
	fqn := c.Name()
	if p := c.Parent(); p != nil {
		fqn = p.FQN() + Separator + fqn
	}
	c.fqn.Store(&fqn)
	return fqn
}

// Asynchronous reports whether transitions on the component are executed
// off the calling goroutine.
func (c *Component) Asynchronous() bool { return c.asynchronous }

// CascadeToChildren reports whether the default hooks propagate
// transitions to the children.
func (c *Component) CascadeToChildren() bool { return c.cascade }

// TransitionTimeout returns the configured transition timeout.
func (c *Component) TransitionTimeout() time.Duration { return c.timeout }

// MaxTransitionDuration is how long a transition may stay in flight before
// the health check force-resolves it. Active components extend it to one
// and a half restart delays.
func (c *Component) MaxTransitionDuration() time.Duration {
	limit := c.timeout
	if c.active != nil {
		if d := c.active.policy.Delay * 3 / 2; d > limit {
			limit = d
		}
	}
	return limit
}

// Logger returns the component's logger.
func (c *Component) Logger() *slog.Logger { return c.logger }

// Active returns the active component wrapping c, or nil.
func (c *Component) Active() *ActiveComponent { return c.active }

func (c *Component) environment() *environment {
	if env := c.env.Load(); env != nil {
		return env
	}
	return detachedEnvironment
}

func (c *Component) notify(e Event) {
	c.environment().notifier.Notify(e)
}

// ===========================================================================
// Tree
// ===========================================================================

// ChildOption customizes [Component.AddChild].
type ChildOption func(*childOptions)

type childOptions struct {
	name   string
	engage bool
}

// Named renames the child while it is added.
func Named(name string) ChildOption {
	return func(o *childOptions) { o.name = name }
}

// EngageAfter engages the child once it has been added.
func EngageAfter() ChildOption {
	return func(o *childOptions) { o.engage = true }
}

// AddChild takes ownership of child. A child owned by another parent is
// detached from it first; a child with the same name is replaced and shut
// down. Moving or renaming an active subtree shuts it down and, when the
// child cascades to its children, engages it again so that properties are
// resolved under the new fully-qualified name.
func (c *Component) AddChild(ctx context.Context, child *Component, opts ...ChildOption) error {
	if child == nil {
		return sserr.New(sserr.CodeValidation, "lifecycle: child must not be nil")
	}
	for n := c; n != nil; n = n.Parent() {
		if n == child {
			return sserr.Newf(sserr.CodeValidation,
				"lifecycle: adding %q under %q would create a cycle", child.FQN(), c.FQN())
		}
	}
	if c.Status() == StatusDestroyed || child.Status() == StatusDestroyed {
		return sserr.New(sserr.CodeConflictInadmissible,
			"lifecycle: destroyed components cannot be linked")
	}

	var o childOptions
	for _, opt := range opts {
		opt(&o)
	}

	name := child.Name()
	if o.name != "" {
		name = sanitizeName(c.logger, o.name)
	}

	oldParent := child.Parent()
	moving := oldParent != nil && oldParent != c
	renaming := name != child.Name()
	if oldParent == c && !renaming {
		if o.engage {
			child.Engage(ctx)
		}
		return nil
	}
	wasActive := false
	if (moving || renaming) && child.subtreeActive() {
		wasActive = true
		child.quiesce(ctx)
	}

	if moving {
		oldParent.detach(child)
	}

	// The child is claimed only if nobody re-linked it since it was read:
	// detached when it is moving or new, still ours when it is renamed.
	var expected *Component
	if !moving && oldParent == c {
		expected = c
	}
	child.linkMu.Lock()
	c.treeMu.Lock()
	if child.parent.Load() != expected {
		c.treeMu.Unlock()
		child.linkMu.Unlock()
		return sserr.Newf(sserr.CodeConflict,
			"lifecycle: %q was re-linked concurrently while being added under %q", name, c.FQN())
	}
	if c.children == nil {
		c.children = make(map[string]*Component)
	}
	// Re-adding an own child under a new name drops the old entry.
	if cur, ok := c.children[child.Name()]; ok && cur == child && renaming {
		delete(c.children, child.Name())
	}
	replaced := c.children[name]
	if replaced == child {
		replaced = nil
	}
	if replaced != nil {
		replaced.parent.Store(nil)
	}
	c.children[name] = child
	child.name.Store(&name)
	child.parent.Store(c)
	c.treeMu.Unlock()
	child.linkMu.Unlock()

	env := c.env.Load()
	if replaced != nil {
		replaced.setEnvironment(nil)
		replaced.invalidate()
	}
	child.setEnvironment(env)
	child.invalidate()

	parentFQN := c.FQN()
	if replaced != nil {
		c.logger.InfoContext(ctx, "lifecycle: child replaced",
			"component", parentFQN,
			"child", name,
		)
		if Admissible(KindShutDown, replaced.Status()) && replaced.Status() != StatusCreated {
			replaced.ShutDown(ctx, WithReason("replaced by a child with the same name"))
		}
		c.notify(StructureEvent{Parent: parentFQN, Child: name, Change: StructureRemoved, At: time.Now().UTC()})
	}
	c.notify(StructureEvent{Parent: parentFQN, Child: name, Change: StructureAdded, At: time.Now().UTC()})

	if o.engage || (wasActive && child.cascade) {
		child.Engage(ctx)
	}
	return nil
}

// RemoveChild detaches child. With shutDownFirst, an active subtree is
// shut down before it is detached. It returns false if child is not a
// child of c.
func (c *Component) RemoveChild(ctx context.Context, child *Component, shutDownFirst bool) bool {
	if child == nil || child.Parent() != c {
		return false
	}
	if shutDownFirst && child.subtreeActive() {
		child.quiesce(ctx)
	}
	if !c.detach(child) {
		return false
	}
	c.logger.DebugContext(ctx, "lifecycle: child removed",
		"component", c.FQN(),
		"child", child.Name(),
	)
	return true
}

// detach unlinks child and emits the structure event.
func (c *Component) detach(child *Component) bool {
	child.linkMu.Lock()
	c.treeMu.Lock()
	name := child.Name()
	if child.parent.Load() != c || c.children[name] != child {
		c.treeMu.Unlock()
		child.linkMu.Unlock()
		return false
	}
	delete(c.children, name)
	child.parent.Store(nil)
	c.treeMu.Unlock()
	child.linkMu.Unlock()

	child.setEnvironment(nil)
	child.invalidate()
	c.notify(StructureEvent{Parent: c.FQN(), Child: name, Change: StructureRemoved, At: time.Now().UTC()})
	return true
}

// Rename changes the component's name. A sibling with the new name is a
// conflict. An active subtree is shut down first and, when restart is set
// and the component cascades to its children, engaged again.
func (c *Component) Rename(ctx context.Context, newName string, restart bool) error {
	name := sanitizeName(c.logger, newName)
	old := c.Name()
	if name == old {
		return nil
	}

	p := c.Parent()
	if p != nil {
		p.treeMu.Lock()
		_, taken := p.children[name]
		p.treeMu.Unlock()
		if taken {
			return sserr.Newf(sserr.CodeConflictAlreadyExists,
				"lifecycle: %q already has a child named %q", p.FQN(), name)
		}
	}

	wasActive := c.subtreeActive()
	if wasActive {
		c.quiesce(ctx)
	}

	c.linkMu.Lock()
	if p != nil {
		p.treeMu.Lock()
	}
	unlock := func() {
		if p != nil {
			p.treeMu.Unlock()
		}
		c.linkMu.Unlock()
	}
	if c.parent.Load() != p || c.Name() != old || (p != nil && p.children[old] != c) {
		unlock()
		return sserr.Newf(sserr.CodeConflict,
			"lifecycle: %q was re-linked concurrently while being renamed", old)
	}
	if p != nil {
		if _, taken := p.children[name]; taken {
			unlock()
			return sserr.Newf(sserr.CodeConflictAlreadyExists,
				"lifecycle: %q already has a child named %q", p.FQN(), name)
		}
		delete(p.children, old)
		p.children[name] = c
	}
	c.name.Store(&name)
	unlock()
	c.invalidate()

	c.logger.InfoContext(ctx, "lifecycle: component renamed",
		"component", c.FQN(),
		"previous_name", old,
	)
	if p != nil {
		at := time.Now().UTC()
		p.notify(StructureEvent{Parent: p.FQN(), Child: old, Change: StructureRemoved, At: at})
		p.notify(StructureEvent{Parent: p.FQN(), Child: name, Change: StructureAdded, At: at})
	}

	if wasActive && restart && c.cascade {
		c.Engage(ctx)
	}
	return nil
}

// FindChild returns the direct child with the given name, or nil.
func (c *Component) FindChild(name string) *Component {
	c.treeMu.Lock()
	defer c.treeMu.Unlock()
	return c.children[name]
}

// Find resolves a path of names relative to c, joined with [Separator].
// An empty path returns c.
func (c *Component) Find(path string) *Component {
	if path == "" {
		return c
	}
	n := c
	for _, part := range strings.Split(path, Separator) {
		if n = n.FindChild(part); n == nil {
			return nil
		}
	}
	return n
}

// Children returns the direct children ordered by name.
func (c *Component) Children() []*Component {
	c.treeMu.Lock()
	out := make([]*Component, 0, len(c.children))
	for _, ch := range c.children {
		out = append(out, ch)
	}
	c.treeMu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Subtree returns c and all its descendants in depth-first pre-order,
// siblings ordered by name.
func (c *Component) Subtree() []*Component {
	out := []*Component{c}
	for _, ch := range c.Children() {
		out = append(out, ch.Subtree()...)
	}
	return out
}

func (c *Component) subtreeActive() bool {
	for _, n := range c.Subtree() {
		if n.Status().IsActive() {
			return true
		}
	}
	return false
}

// quiesce shuts down every active node of the subtree, deepest first, and
// waits for each to settle.
func (c *Component) quiesce(ctx context.Context) {
	nodes := c.Subtree()
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		if !n.Status().IsActive() {
			continue
		}
		if n.ShutDown(ctx, WithReason("name change")) && n.asynchronous {
			n.WaitFor(ctx, StatusDown, n.MaxTransitionDuration(), true)
		}
	}
}

// invalidate drops the cached fully-qualified names of the subtree and
// forces properties to be resolved again on the next engage.
func (c *Component) invalidate() {
	for _, n := range c.Subtree() {
		n.fqn.Store(nil)
		n.treeMu.Lock()
		n.propsResolved = false
		n.treeMu.Unlock()
	}
}

func (c *Component) setEnvironment(env *environment) {
	for _, n := range c.Subtree() {
		n.env.Store(env)
	}
}

// Destroy shuts the subtree down, destroys the children, detaches the
// component from its parent and publishes [StatusDestroyed]. Destroy is
// not a transition kind; nothing is admissible afterwards.
func (c *Component) Destroy(ctx context.Context) {
	if c.Status() == StatusDestroyed {
		return
	}
	if c.subtreeActive() {
		c.quiesce(ctx)
	}
	for _, ch := range c.Children() {
		ch.Destroy(ctx)
	}
	if p := c.Parent(); p != nil {
		p.detach(c)
	}

	c.mu.Lock()
	for c.inflight != nil {
		rec := c.inflight
		c.mu.Unlock()
		select {
		case <-rec.done:
		case <-ctx.Done():
			c.logger.WarnContext(ctx, "lifecycle: destroy gave up waiting for in-flight transition",
				"component", c.FQN(),
				"kind", string(rec.desc.kind),
			)
			return
		}
		c.mu.Lock()
	}
	c.publishLocked(StatusDestroyed, "")
	c.mu.Unlock()

	c.treeMu.Lock()
	for name, p := range c.properties {
		p.ownership().release(c)
		delete(c.properties, name)
	}
	c.treeMu.Unlock()

	c.logger.DebugContext(ctx, "lifecycle: component destroyed", "component", c.FQN())
}
