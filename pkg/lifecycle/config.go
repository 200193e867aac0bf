package lifecycle

import (
	"time"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
)

// OrchestratorConfig holds the settings of an [Orchestrator]. It is
// loadable with the config package under the "RUNTIME" prefix:
//
//	cfg := config.MustLoad[lifecycle.OrchestratorConfig](
//	    config.New().WithEnvPrefix("RUNTIME").WithFile("runtime.yaml"),
//	)
type OrchestratorConfig struct {
	// HealthCheckInterval is the period of the health-check loop.
	HealthCheckInterval time.Duration `env:"HEALTH_CHECK_INTERVAL" envDefault:"5s" yaml:"health_check_interval" json:"health_check_interval"`

	// DefaultTransitionTimeout is the transition timeout of the root
	// component.
	DefaultTransitionTimeout time.Duration `env:"TRANSITION_TIMEOUT" envDefault:"30s" yaml:"transition_timeout" json:"transition_timeout"`

	// ShutdownTimeout bounds Orchestrator.Stop.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"60s" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// DispatcherWorkers is the number of goroutines executing asynchronous
	// transitions and restart decisions.
	DispatcherWorkers int `env:"DISPATCHER_WORKERS" envDefault:"4" yaml:"dispatcher_workers" json:"dispatcher_workers"`

	// DispatcherQueueSize bounds the dispatcher queue.
	DispatcherQueueSize int `env:"DISPATCHER_QUEUE_SIZE" envDefault:"256" yaml:"dispatcher_queue_size" json:"dispatcher_queue_size"`

	// ExitOnResourceExhaustion terminates the process on the first
	// out-of-memory class worker failure.
	ExitOnResourceExhaustion bool `env:"EXIT_ON_RESOURCE_EXHAUSTION" yaml:"exit_on_resource_exhaustion" json:"exit_on_resource_exhaustion"`
}

// DefaultOrchestratorConfig returns the documented defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		HealthCheckInterval:      5 * time.Second,
		DefaultTransitionTimeout: DefaultTransitionTimeout,
		ShutdownTimeout:          60 * time.Second,
		DispatcherWorkers:        4,
		DispatcherQueueSize:      256,
	}
}

// Validate checks the configuration.
func (c *OrchestratorConfig) Validate() error {
	if c.HealthCheckInterval <= 0 {
		return sserr.New(sserr.CodeValidationRange,
			"lifecycle: health check interval must be positive")
	}
	if c.DefaultTransitionTimeout <= 0 {
		return sserr.New(sserr.CodeValidationRange,
			"lifecycle: transition timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return sserr.New(sserr.CodeValidationRange,
			"lifecycle: shutdown timeout must be positive")
	}
	if c.DispatcherWorkers < 1 {
		return sserr.Newf(sserr.CodeValidationRange,
			"lifecycle: dispatcher needs at least one worker, got %d", c.DispatcherWorkers)
	}
	if c.DispatcherQueueSize < 0 {
		return sserr.Newf(sserr.CodeValidationRange,
			"lifecycle: dispatcher queue size %d must not be negative", c.DispatcherQueueSize)
	}
	return nil
}

// RestartPolicy governs how an [ActiveComponent] recovers from failures.
type RestartPolicy struct {
	// Budget is the number of automatic restarts allowed before the
	// component is quarantined.
	Budget int `env:"RESTART_BUDGET" envDefault:"3" yaml:"budget" json:"budget"`

	// Delay is waited between the shutdown and initialize halves of an
	// automatic restart.
	Delay time.Duration `env:"RESTART_DELAY" envDefault:"1s" yaml:"delay" json:"delay"`

	// Key marks a component whose quarantine is a distinguished critical
	// condition.
	Key bool `env:"KEY" yaml:"key" json:"key"`
}

// DefaultRestartPolicy returns a budget of 3 restarts one second apart.
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{Budget: 3, Delay: time.Second}
}

// Validate checks the policy.
func (p *RestartPolicy) Validate() error {
	if p.Budget < 0 {
		return sserr.Newf(sserr.CodeValidationRange,
			"lifecycle: restart budget %d must not be negative", p.Budget)
	}
	if p.Delay < 0 {
		return sserr.Newf(sserr.CodeValidationRange,
			"lifecycle: restart delay %s must not be negative", p.Delay)
	}
	return nil
}
