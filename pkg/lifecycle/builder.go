package lifecycle

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
)

// ComponentBuilder constructs a [Component] or an [ActiveComponent]. All
// configuration methods return the builder for chaining; call
// [ComponentBuilder.Build] or [ComponentBuilder.BuildActive] to validate
// the configuration and produce the component.
//
// Hooks come from two places. [ComponentBuilder.WithBehavior] takes a value
// implementing any of [Initializer], [ShutDowner], [ErrorHandler],
// [CriticalErrorHandler] and [Checker]; the WithOn* methods set single
// hooks and take precedence. Missing hooks fall back to the cascading
// defaults.
//
// Example:
//
//	listener, err := lifecycle.NewComponentBuilder("listener").
//	    WithTransitionTimeout(10 * time.Second).
//	    WithProperty(port).
//	    WithOnInitialize(func(ctx context.Context) error {
//	        return srv.Bind(port.Get())
//	    }).
//	    WithOnShutDown(func(ctx context.Context) error {
//	        return srv.Close()
//	    }).
//	    Build()
type ComponentBuilder struct {
	name         string
	asynchronous bool
	cascade      bool
	timeout      time.Duration
	logger       *slog.Logger
	behavior     any
	hooks        hookSet
	properties   []Property
	source       PropertySource
}

// NewComponentBuilder creates a builder for a synchronous, cascading
// component. The name is sanitized during Build.
func NewComponentBuilder(name string) *ComponentBuilder {
	return &ComponentBuilder{
		name:    name,
		cascade: true,
	}
}

// WithAsynchronous makes lifecycle operations schedule their transition
// and return immediately.
func (b *ComponentBuilder) WithAsynchronous(async bool) *ComponentBuilder {
	b.asynchronous = async
	return b
}

// WithCascadeToChildren controls whether the default hooks propagate
// Engage and ShutDown to the children. The default is true.
func (b *ComponentBuilder) WithCascadeToChildren(cascade bool) *ComponentBuilder {
	b.cascade = cascade
	return b
}

// WithTransitionTimeout sets the transition timeout. Zero selects
// [DefaultTransitionTimeout].
func (b *ComponentBuilder) WithTransitionTimeout(d time.Duration) *ComponentBuilder {
	b.timeout = d
	return b
}

// WithLogger sets the logger. If not called, [slog.Default] is used.
func (b *ComponentBuilder) WithLogger(logger *slog.Logger) *ComponentBuilder {
	b.logger = logger
	return b
}

// WithBehavior registers the hooks implemented by behavior.
func (b *ComponentBuilder) WithBehavior(behavior any) *ComponentBuilder {
	b.behavior = behavior
	return b
}

// WithOnInitialize sets the hook run by Engage and by the second half of
// Reinitialize.
func (b *ComponentBuilder) WithOnInitialize(hook Hook) *ComponentBuilder {
	b.hooks.initialize = hook
	return b
}

// WithOnShutDown sets the hook run by ShutDown and by the first half of
// Reinitialize.
func (b *ComponentBuilder) WithOnShutDown(hook Hook) *ComponentBuilder {
	b.hooks.shutDown = hook
	return b
}

// WithOnError sets the hook run by Error.
func (b *ComponentBuilder) WithOnError(hook Hook) *ComponentBuilder {
	b.hooks.onError = hook
	return b
}

// WithOnCriticalError sets the hook run by CriticalError.
func (b *ComponentBuilder) WithOnCriticalError(hook Hook) *ComponentBuilder {
	b.hooks.criticalError = hook
	return b
}

// WithCheck sets the periodic health check.
func (b *ComponentBuilder) WithCheck(hook Hook) *ComponentBuilder {
	b.hooks.check = hook
	return b
}

// WithProperty registers a property owned by the component.
func (b *ComponentBuilder) WithProperty(p Property) *ComponentBuilder {
	b.properties = append(b.properties, p)
	return b
}

// WithPropertySource overrides the property source inherited from the
// orchestrator.
func (b *ComponentBuilder) WithPropertySource(src PropertySource) *ComponentBuilder {
	b.source = src
	return b
}

// Build validates the configuration and constructs a [*Component] in
// [StatusCreated]. It returns a [*sserr.Error] with code
// [sserr.CodeValidation] for a negative timeout and
// [sserr.CodeConflictOwnership] for a property that already has an owner.
func (b *ComponentBuilder) Build() (*Component, error) {
	if b.timeout < 0 {
		return nil, sserr.Newf(sserr.CodeValidationRange,
			"lifecycle: transition timeout %s must not be negative", b.timeout)
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := b.timeout
	if timeout == 0 {
		timeout = DefaultTransitionTimeout
	}

	hooks := hooksFrom(b.behavior)
	if b.hooks.initialize != nil {
		hooks.initialize = b.hooks.initialize
	}
	if b.hooks.shutDown != nil {
		hooks.shutDown = b.hooks.shutDown
	}
	if b.hooks.onError != nil {
		hooks.onError = b.hooks.onError
	}
	if b.hooks.criticalError != nil {
		hooks.criticalError = b.hooks.criticalError
	}
	if b.hooks.check != nil {
		hooks.check = b.hooks.check
	}

	c := &Component{
		asynchronous: b.asynchronous,
		cascade:      b.cascade,
		timeout:      timeout,
		logger:       logger,
		tracer:       otel.Tracer(tracerName),
		hooks:        hooks,
		source:       b.source,
		children:     make(map[string]*Component),
		properties:   make(map[string]Property),
		status:       StatusCreated,
		changed:      make(chan struct{}),
	}
	name := sanitizeName(logger, b.name)
	c.name.Store(&name)

	for _, p := range b.properties {
		if err := c.AddProperty(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// BuildActive constructs an [*ActiveComponent] running runner under
// policy. Start from [DefaultRestartPolicy] for the usual settings; a zero
// budget quarantines the component on its first failure.
func (b *ComponentBuilder) BuildActive(runner Runner, policy RestartPolicy) (*ActiveComponent, error) {
	if runner == nil {
		return nil, sserr.New(sserr.CodeValidationRequired,
			"lifecycle: active component requires a runner")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	c, err := b.Build()
	if err != nil {
		return nil, err
	}
	return newActiveComponent(c, runner, policy), nil
}
