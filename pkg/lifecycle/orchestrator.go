package lifecycle

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
)

// Orchestrator is the root of a component tree. It engages its direct
// children at start and shuts them down in reverse order at stop, runs the
// periodic health check, and applies the restart policy to failed active
// components.
//
// The orchestrator is an explicit handle: components reach it only through
// the tree they were added to. Keep a single process-wide instance at the
// outermost bootstrap layer if one is needed at all.
type Orchestrator struct {
	*Component

	cfg        OrchestratorConfig
	env        *environment
	supervisor *Supervisor
	dispatcher *Dispatcher

	stopping atomic.Bool

	loopMu     sync.Mutex
	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// OrchestratorOption configures an [Orchestrator].
type OrchestratorOption func(*orchestratorOptions)

type orchestratorOptions struct {
	logger     *slog.Logger
	notifier   Notifier
	properties PropertySource
	exit       func(int)
}

// WithLogger sets the logger of the orchestrator and of its runtime
// services.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *orchestratorOptions) { o.logger = logger }
}

// WithNotifier sets the notifier receiving every event of the tree.
func WithNotifier(n Notifier) OrchestratorOption {
	return func(o *orchestratorOptions) { o.notifier = n }
}

// WithPropertySource sets the property source inherited by the tree.
func WithPropertySource(src PropertySource) OrchestratorOption {
	return func(o *orchestratorOptions) { o.properties = src }
}

// WithExitFunc replaces [os.Exit] for resource-exhaustion termination.
func WithExitFunc(exit func(int)) OrchestratorOption {
	return func(o *orchestratorOptions) { o.exit = exit }
}

// NewOrchestrator creates the root component name with its dispatcher and
// supervisor. The orchestrator is in [StatusCreated] until
// [Orchestrator.Start].
func NewOrchestrator(name string, cfg OrchestratorConfig, opts ...OrchestratorOption) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := orchestratorOptions{logger: slog.Default(), notifier: nopNotifier{}}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.notifier == nil {
		options.notifier = nopNotifier{}
	}

	o := &Orchestrator{cfg: cfg}
	root, err := NewComponentBuilder(name).
		WithTransitionTimeout(cfg.DefaultTransitionTimeout).
		WithLogger(options.logger).
		WithOnInitialize(o.engageChildren).
		WithOnShutDown(o.shutDownChildren).
		Build()
	if err != nil {
		return nil, err
	}
	o.Component = root

	supervisorOpts := []SupervisorOption{
		WithSupervisorLogger(options.logger),
		WithSupervisorNotifier(options.notifier),
	}
	if cfg.ExitOnResourceExhaustion {
		supervisorOpts = append(supervisorOpts, WithExitOnResourceExhaustion(options.exit))
	}
	o.supervisor = NewSupervisor(o.Lookup, supervisorOpts...)
	o.dispatcher = NewDispatcher(cfg.DispatcherWorkers, cfg.DispatcherQueueSize, options.logger)
	o.env = &environment{
		notifier:   options.notifier,
		dispatcher: o.dispatcher,
		supervisor: o.supervisor,
		failures:   o,
		properties: options.properties,
	}
	root.setEnvironment(o.env)
	return o, nil
}

// Config returns the orchestrator configuration.
func (o *Orchestrator) Config() OrchestratorConfig { return o.cfg }

// Supervisor returns the failure router of the tree.
func (o *Orchestrator) Supervisor() *Supervisor { return o.supervisor }

// Dispatcher returns the dispatcher of the tree.
func (o *Orchestrator) Dispatcher() *Dispatcher { return o.dispatcher }

// Lookup returns the component with the given fully-qualified name, or
// nil.
func (o *Orchestrator) Lookup(fqn string) *Component {
	rootName := o.Name()
	if fqn == rootName {
		return o.Component
	}
	rest, ok := strings.CutPrefix(fqn, rootName+Separator)
	if !ok {
		return nil
	}
	return o.Find(rest)
}

// Start starts the dispatcher, engages the tree and starts the health-check
// loop. It fails if the root does not become Enabled.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.stopping.Store(false)
	o.dispatcher.Start()

	o.logger.InfoContext(ctx, "lifecycle: starting orchestrator",
		"component", o.FQN(),
		"health_check_interval", o.cfg.HealthCheckInterval,
	)

	o.Engage(ctx)
	if status := o.Status(); status != StatusEnabled {
		return sserr.Newf(sserr.CodeUnavailable,
			"lifecycle: orchestrator %q did not engage, status is %q: %s", o.FQN(), status, o.ErrorReason())
	}

	o.startHealthLoop()
	o.logger.InfoContext(ctx, "lifecycle: orchestrator started", "component", o.FQN())
	return nil
}

// Stop stops the health-check loop, shuts the tree down and stops the
// dispatcher, bounded by the configured shutdown timeout.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.stopping.Store(true)
	o.stopHealthLoop()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.ShutdownTimeout)
	defer cancel()

	o.logger.InfoContext(ctx, "lifecycle: stopping orchestrator", "component", o.FQN())

	if Admissible(KindShutDown, o.Status()) {
		o.ShutDown(ctx)
	}
	if err := o.dispatcher.Stop(ctx); err != nil {
		return err
	}
	if status := o.Status(); status != StatusDown && status != StatusCreated {
		return sserr.Newf(sserr.CodeUnavailable,
			"lifecycle: orchestrator %q did not shut down cleanly, status is %q", o.FQN(), status)
	}
	o.logger.InfoContext(ctx, "lifecycle: orchestrator stopped", "component", o.FQN())
	return nil
}

// engageChildren is the root's initialize hook: children are engaged in
// name order, then asynchronous children are awaited in parallel.
func (o *Orchestrator) engageChildren(ctx context.Context) error {
	children := o.Children()
	for _, ch := range children {
		if err := interrupted(ctx); err != nil {
			return err
		}
		if Admissible(KindEngage, ch.Status()) {
			ch.Engage(ctx)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range children {
		if !ch.Asynchronous() {
			continue
		}
		g.Go(func() error {
			if !ch.WaitForEnabled(gctx, ch.MaxTransitionDuration()) {
				o.logger.WarnContext(gctx, "lifecycle: child did not become enabled",
					"component", ch.FQN(),
					"status", string(ch.Status()),
				)
			}
			return nil
		})
	}
	return g.Wait()
}

// shutDownChildren is the root's shutdown hook: children are shut down in
// reverse name order, then asynchronous children whose shutdown was
// scheduled are awaited in parallel.
func (o *Orchestrator) shutDownChildren(ctx context.Context) error {
	children := o.Children()
	var scheduled []*Component
	for i := len(children) - 1; i >= 0; i-- {
		ch := children[i]
		if s := ch.Status(); s == StatusCreated || !Admissible(KindShutDown, s) {
			continue
		}
		if ch.ShutDown(ctx) && ch.Asynchronous() {
			scheduled = append(scheduled, ch)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range scheduled {
		g.Go(func() error {
			if !ch.WaitFor(gctx, StatusDown, ch.MaxTransitionDuration(), false) {
				return sserr.Newf(sserr.CodeTimeoutWait,
					"lifecycle: child %q did not shut down, status is %q", ch.FQN(), ch.Status())
			}
			return nil
		})
	}
	return g.Wait()
}

// ===========================================================================
// Failure policy
// ===========================================================================

// postFailure schedules the restart policy for a failed active component.
func (o *Orchestrator) postFailure(ctx context.Context, a *ActiveComponent, reason string) {
	if o.stopping.Load() {
		o.logger.InfoContext(ctx, "lifecycle: failure ignored while stopping",
			"component", a.FQN(),
			"reason", reason,
		)
		return
	}
	o.dispatch(ctx, a.FQN(), func(ctx context.Context) {
		o.applyPolicy(ctx, a, reason)
	})
}

// applyPolicy makes one restart-or-quarantine decision for a.
func (o *Orchestrator) applyPolicy(ctx context.Context, a *ActiveComponent, reason string) {
	if o.stopping.Load() {
		return
	}
	if status := a.Status(); status != StatusError {
		o.logger.DebugContext(ctx, "lifecycle: failure already resolved",
			"component", a.FQN(),
			"status", string(status),
		)
		return
	}
	a.applyPolicy(ctx, reason)
}

// dispatch runs fn on the dispatcher, or on its own goroutine when the
// dispatcher does not take it.
func (o *Orchestrator) dispatch(ctx context.Context, name string, fn func(ctx context.Context)) {
	task := func(ctx context.Context) {
		defer o.supervisor.Recover(ctx, name)
		fn(ctx)
	}
	ctx = detached(ctx)
	if o.dispatcher.Submit(ctx, task) {
		return
	}
	go task(ctx)
}

// ===========================================================================
// Health check
// ===========================================================================

func (o *Orchestrator) startHealthLoop() {
	o.loopMu.Lock()
	defer o.loopMu.Unlock()
	if o.loopCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	o.loopCancel, o.loopDone = cancel, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(o.cfg.HealthCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.CheckNow(ctx)
			}
		}
	}()
}

func (o *Orchestrator) stopHealthLoop() {
	o.loopMu.Lock()
	cancel, done := o.loopCancel, o.loopDone
	o.loopCancel, o.loopDone = nil, nil
	o.loopMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// CheckNow runs one pass of the health check over the whole tree.
func (o *Orchestrator) CheckNow(ctx context.Context) {
	for _, c := range o.Subtree() {
		if ctx.Err() != nil {
			return
		}
		o.checkStatus(ctx, c)
	}
}

// checkStatus force-resolves a stuck transition, reports a dead worker of
// an Enabled active component, or runs the component's own check.
func (o *Orchestrator) checkStatus(ctx context.Context, c *Component) {
	c.mu.Lock()
	rec := c.inflight
	status := c.status
	c.mu.Unlock()
	a := c.active

	if rec != nil {
		if time.Since(rec.startedAt) > c.MaxTransitionDuration() {
			c.resolveStuck(ctx, rec)
		}
		return
	}
	if status != StatusEnabled {
		if a != nil {
			a.recordCheck(false)
		}
		return
	}

	if a != nil && !a.WorkerAlive() {
		a.recordCheck(false)
		c.logger.WarnContext(ctx, "lifecycle: worker of enabled component is not alive",
			"component", c.FQN(),
			"fault_code", sserr.CodeFaultWorker.String(),
		)
		o.dispatch(ctx, c.FQN(), func(ctx context.Context) {
			c.Error(ctx, "worker is not alive")
		})
		return
	}

	if err := c.check(ctx); err != nil {
		if a != nil {
			a.recordCheck(false)
		}
		c.logger.WarnContext(ctx, "lifecycle: health check failed",
			"component", c.FQN(),
			"fault_code", sserr.CodeFaultHealthCheck.String(),
			"error", err,
		)
		reason := err.Error()
		o.dispatch(ctx, c.FQN(), func(ctx context.Context) {
			c.Error(ctx, reason)
		})
		return
	}
	if a != nil {
		a.recordCheck(true)
	}
}

// check runs the component's health check, bounded by its transition
// timeout. A panic counts as a failed check.
func (c *Component) check(ctx context.Context) (err error) {
	if c.hooks.check == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = sserr.FromPanic(r, sserr.CodeFaultHealthCheck, "lifecycle: health check panicked")
		}
	}()
	return c.hooks.check(ctx)
}
