// Package metrics exports lifecycle activity as Prometheus metrics.
//
// A [Collector] turns lifecycle events into counters, histograms and
// gauges registered on its own registry. It can be used directly as a
// [lifecycle.Notifier] or attached to an [events.Bus]:
//
//	bus := events.NewBus()
//	collector := metrics.NewCollector()
//	detach := collector.Attach(bus)
//	defer detach()
//
//	http.Handle("/metrics", collector.Handler())
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/StricklySoft/stricklysoft-runtime/pkg/events"
	"github.com/StricklySoft/stricklysoft-runtime/pkg/lifecycle"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "runtime"

// Collector records lifecycle metrics.
type Collector struct {
	namespace string
	registry  *prometheus.Registry

	transitions      *prometheus.CounterVec
	transitionTime   *prometheus.HistogramVec
	statusChanges    *prometheus.CounterVec
	componentEnabled *prometheus.GaugeVec
	restarts         prometheus.Counter
	quarantines      *prometheus.CounterVec
	faults           *prometheus.CounterVec
	structure        *prometheus.CounterVec
}

var _ lifecycle.Notifier = (*Collector)(nil)

type options struct {
	namespace      string
	registry       *prometheus.Registry
	processMetrics bool
}

// Option configures a [Collector].
type Option func(*options)

// WithNamespace overrides [DefaultNamespace].
func WithNamespace(namespace string) Option {
	return func(o *options) { o.namespace = namespace }
}

// WithRegistry registers the metrics on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		if reg != nil {
			o.registry = reg
		}
	}
}

// WithProcessMetrics also registers the Go runtime and process collectors.
func WithProcessMetrics() Option {
	return func(o *options) { o.processMetrics = true }
}

// NewCollector creates a collector and registers its metrics.
func NewCollector(opts ...Option) *Collector {
	o := options{namespace: DefaultNamespace}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}
	if o.processMetrics {
		o.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(o.registry)
	ns := o.namespace

	return &Collector{
		namespace: ns,
		registry:  o.registry,

		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "transitions_total",
			Help:      "Total number of executed lifecycle transitions",
		}, []string{"kind", "result"}),

		transitionTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "transition_duration_seconds",
			Help:      "Duration of lifecycle transitions in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~262s
		}, []string{"kind"}),

		statusChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "status_changes_total",
			Help:      "Total number of published status changes by new status",
		}, []string{"status"}),

		componentEnabled: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "component_enabled",
			Help:      "Whether a component is enabled (1) or not (0)",
		}, []string{"component"}),

		restarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "restarts_total",
			Help:      "Total number of failure-triggered restarts",
		}),

		quarantines: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "quarantines_total",
			Help:      "Total number of components quarantined after exhausting their restart budget",
		}, []string{"key"}),

		faults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "faults_total",
			Help:      "Total number of runtime faults by error code",
		}, []string{"code"}),

		structure: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "structure_changes_total",
			Help:      "Total number of component tree changes",
		}, []string{"change"}),
	}
}

// Registry returns the registry the metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Notify records e.
func (c *Collector) Notify(e lifecycle.Event) {
	switch e := e.(type) {
	case lifecycle.StatusEvent:
		c.statusChanges.WithLabelValues(e.New.String()).Inc()
		if e.New == lifecycle.StatusDestroyed {
			c.componentEnabled.DeleteLabelValues(e.Component)
			return
		}
		enabled := 0.0
		if e.New == lifecycle.StatusEnabled {
			enabled = 1
		}
		c.componentEnabled.WithLabelValues(e.Component).Set(enabled)
	case lifecycle.TransitionEvent:
		kind := e.Kind.String()
		c.transitions.WithLabelValues(kind, string(e.Result)).Inc()
		c.transitionTime.WithLabelValues(kind).Observe(e.Duration.Seconds())
	case lifecycle.PolicyEvent:
		switch e.Decision {
		case lifecycle.DecisionRestart:
			c.restarts.Inc()
		case lifecycle.DecisionQuarantine:
			c.quarantines.WithLabelValues(boolLabel(e.Key)).Inc()
		}
	case lifecycle.FaultEvent:
		c.faults.WithLabelValues(e.Code.String()).Inc()
	case lifecycle.StructureEvent:
		c.structure.WithLabelValues(string(e.Change)).Inc()
		if e.Change == lifecycle.StructureRemoved {
			c.componentEnabled.DeleteLabelValues(e.Child)
		}
	}
}

// Attach subscribes the collector to every topic of bus and exports the
// bus counters. The returned function ends the subscription; the bus
// counters stay registered.
func (c *Collector) Attach(bus *events.Bus) (detach func()) {
	c.registry.MustRegister(newBusCollector(c.namespace, bus))
	return bus.SubscribeAll(c.Notify)
}

// Handler serves the collector's registry in the Prometheus exposition
// format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
