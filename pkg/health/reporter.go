// Package health mirrors component status onto the gRPC health checking
// protocol.
//
// Every component is exposed as a service named by its fully-qualified
// name. The overall service ("") follows the root component, so probes
// that do not name a service see the process as serving exactly while the
// root is enabled.
//
//	reporter := health.NewReporter("root")
//	o, _ := lifecycle.NewOrchestrator("root", cfg, lifecycle.WithNotifier(reporter))
//
//	srv := grpc.NewServer()
//	reporter.Register(srv)
package health

import (
	"log/slog"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/StricklySoft/stricklysoft-runtime/pkg/lifecycle"
)

// Reporter translates lifecycle events into gRPC serving statuses.
type Reporter struct {
	root   string
	server *grpchealth.Server
	logger *slog.Logger
}

var _ lifecycle.Notifier = (*Reporter)(nil)

// Option configures a [Reporter].
type Option func(*Reporter)

// WithLogger sets the logger used for serving status changes.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reporter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithServer reports into an existing health server.
func WithServer(server *grpchealth.Server) Option {
	return func(r *Reporter) {
		if server != nil {
			r.server = server
		}
	}
}

// NewReporter creates a reporter for the tree rooted at the component
// named root. Until the root is enabled the overall service is not
// serving.
func NewReporter(root string, opts ...Option) *Reporter {
	r := &Reporter{
		root:   root,
		server: grpchealth.NewServer(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.server.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return r
}

// Server returns the underlying health server.
func (r *Reporter) Server() *grpchealth.Server { return r.server }

// Register exposes the health service on srv.
func (r *Reporter) Register(srv grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(srv, r.server)
}

// Notify updates the serving status of the component e refers to.
func (r *Reporter) Notify(e lifecycle.Event) {
	switch e := e.(type) {
	case lifecycle.StatusEvent:
		r.set(e.Component, ServingStatus(e.New))
	case lifecycle.StructureEvent:
		if e.Change == lifecycle.StructureRemoved {
			r.set(e.Child, healthpb.HealthCheckResponse_SERVICE_UNKNOWN)
		}
	}
}

func (r *Reporter) set(service string, status healthpb.HealthCheckResponse_ServingStatus) {
	r.server.SetServingStatus(service, status)
	if service == r.root {
		r.server.SetServingStatus("", status)
	}
	r.logger.Debug("health: serving status updated",
		"service", service,
		"serving_status", status.String(),
	)
}

// Shutdown marks every service as not serving and ignores later updates.
func (r *Reporter) Shutdown() { r.server.Shutdown() }

// ServingStatus maps a component status to a gRPC serving status. Only an
// enabled component is serving; a destroyed one is unknown.
func ServingStatus(s lifecycle.Status) healthpb.HealthCheckResponse_ServingStatus {
	switch s {
	case lifecycle.StatusEnabled:
		return healthpb.HealthCheckResponse_SERVING
	case lifecycle.StatusDestroyed:
		return healthpb.HealthCheckResponse_SERVICE_UNKNOWN
	default:
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
}
