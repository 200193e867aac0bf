package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
)

// quietLogger discards output so tests do not flood the console.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder is a Notifier that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// statuses returns the statuses published for fqn, in order.
func (r *recorder) statuses(fqn string) []Status {
	var out []Status
	for _, e := range r.all() {
		if se, ok := e.(StatusEvent); ok && se.Component == fqn {
			out = append(out, se.New)
		}
	}
	return out
}

func (r *recorder) faults(code sserr.Code) []FaultEvent {
	var out []FaultEvent
	for _, e := range r.all() {
		if fe, ok := e.(FaultEvent); ok && fe.Code == code {
			out = append(out, fe)
		}
	}
	return out
}

func (r *recorder) policies(fqn string) []PolicyEvent {
	var out []PolicyEvent
	for _, e := range r.all() {
		if pe, ok := e.(PolicyEvent); ok && pe.Component == fqn {
			out = append(out, pe)
		}
	}
	return out
}

func (r *recorder) structure() []StructureEvent {
	var out []StructureEvent
	for _, e := range r.all() {
		if se, ok := e.(StructureEvent); ok {
			out = append(out, se)
		}
	}
	return out
}

func (r *recorder) transitions(fqn string) []TransitionEvent {
	var out []TransitionEvent
	for _, e := range r.all() {
		if te, ok := e.(TransitionEvent); ok && te.Component == fqn {
			out = append(out, te)
		}
	}
	return out
}

// attach gives a detached tree an environment reporting to r.
func attach(c *Component, r *recorder) {
	c.setEnvironment(&environment{notifier: r})
}

// mustBuild builds a component and fails the test on error.
func mustBuild(t *testing.T, b *ComponentBuilder) *Component {
	t.Helper()
	c, err := b.WithLogger(quietLogger()).Build()
	require.NoError(t, err)
	return c
}

// testConfig is an orchestrator configuration with short timings.
func testConfig() OrchestratorConfig {
	cfg := DefaultOrchestratorConfig()
	cfg.HealthCheckInterval = time.Hour
	cfg.ShutdownTimeout = 5 * time.Second
	return cfg
}

// newTestOrchestrator builds an orchestrator reporting to a recorder. The
// health loop is effectively disabled; tests drive CheckNow directly.
func newTestOrchestrator(t *testing.T, opts ...OrchestratorOption) (*Orchestrator, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts = append([]OrchestratorOption{WithLogger(quietLogger()), WithNotifier(rec)}, opts...)
	o, err := NewOrchestrator("root", testConfig(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.Stop(ctx)
	})
	return o, rec
}

// gate is a hook that blocks until released or canceled.
type gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) hook(ctx context.Context) error {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return interrupted(ctx)
	}
}

func (g *gate) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("hook was not entered")
	}
}

const (
	eventually = 5 * time.Second
	tick       = 5 * time.Millisecond
)
