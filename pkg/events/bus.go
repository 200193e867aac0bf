// Package events fans lifecycle notifications out to asynchronous
// subscribers.
//
// A [Bus] implements [lifecycle.Notifier], so it can be handed to
// [lifecycle.WithNotifier] directly. The runtime emits notifications while
// holding a component's status lock; the bus therefore never blocks the
// publisher. Each subscriber owns a buffered channel drained by its own
// goroutine, and an event that does not fit into a full buffer is dropped
// and counted.
//
// Usage:
//
//	bus := events.NewBus(events.WithLogger(logger))
//	defer bus.Close()
//
//	unsubscribe := bus.Subscribe(lifecycle.TopicStatus, func(e lifecycle.Event) {
//	    se := e.(lifecycle.StatusEvent)
//	    logger.Info("status changed", "component", se.Component, "status", se.New)
//	})
//	defer unsubscribe()
//
//	o, err := lifecycle.NewOrchestrator("root", cfg, lifecycle.WithNotifier(bus))
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
	"github.com/StricklySoft/stricklysoft-runtime/pkg/lifecycle"
)

// DefaultBufferSize is the per-subscriber buffer used when none is
// configured.
const DefaultBufferSize = 100

// Handler consumes one event. Handlers run on the subscriber's goroutine,
// never on the publisher's.
type Handler func(lifecycle.Event)

// subscription is one registered handler and its delivery queue.
type subscription struct {
	id           uint64
	topic        string // empty means every topic
	handler      Handler
	events       chan lifecycle.Event
	done         chan struct{}
	finished     chan struct{}
	unsubscribed atomic.Bool
}

// Bus is an in-process publish/subscribe hub for lifecycle events.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[uint64]*subscription
	nextID        atomic.Uint64
	closed        atomic.Bool
	published     atomic.Uint64
	dropped       atomic.Uint64
	logger        *slog.Logger
	bufferSize    int
}

var _ lifecycle.Notifier = (*Bus)(nil)

// Option configures a [Bus].
type Option func(*Bus)

// WithBufferSize sets the size of each subscriber's queue. Non-positive
// sizes are ignored.
func WithBufferSize(size int) Option {
	return func(b *Bus) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// WithLogger sets the logger used for dropped events and handler panics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBus creates a bus with the given options.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subscriptions: make(map[uint64]*subscription),
		bufferSize:    DefaultBufferSize,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Notify delivers e to every interested subscriber without blocking.
// Events published after Close are discarded.
func (b *Bus) Notify(e lifecycle.Event) {
	_ = b.Publish(e)
}

// Publish delivers e to every interested subscriber without blocking. It
// returns an error with code [sserr.CodeUnavailable] once the bus is
// closed.
func (b *Bus) Publish(e lifecycle.Event) error {
	if e == nil {
		return sserr.New(sserr.CodeValidationRequired, "events: event is required")
	}
	if b.closed.Load() {
		return sserr.New(sserr.CodeUnavailable, "events: bus is closed")
	}
	b.published.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()

	topic := e.Topic()
	for _, sub := range b.subscriptions {
		if sub.topic != "" && sub.topic != topic {
			continue
		}
		select {
		case sub.events <- e:
		default:
			b.dropped.Add(1)
			b.logger.Warn("events: subscriber buffer full, dropping event",
				"topic", topic,
				"subscriber_id", sub.id,
			)
		}
	}
	return nil
}

// Subscribe registers handler for events of one topic. The returned
// function removes the subscription; events already queued are still
// delivered.
func (b *Bus) Subscribe(topic string, handler Handler) (unsubscribe func()) {
	return b.subscribe(topic, handler)
}

// SubscribeAll registers handler for every topic.
func (b *Bus) SubscribeAll(handler Handler) (unsubscribe func()) {
	return b.subscribe("", handler)
}

func (b *Bus) subscribe(topic string, handler Handler) func() {
	if handler == nil || b.closed.Load() {
		return func() {}
	}

	sub := &subscription{
		id:       b.nextID.Add(1),
		topic:    topic,
		handler:  handler,
		events:   make(chan lifecycle.Event, b.bufferSize),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		return func() {}
	}
	b.subscriptions[sub.id] = sub
	b.mu.Unlock()

	go b.processEvents(sub)

	return func() { b.unsubscribe(sub.id) }
}

// processEvents delivers queued events to one subscriber until the
// subscription ends, then drains what is left.
func (b *Bus) processEvents(sub *subscription) {
	defer close(sub.finished)
	for {
		select {
		case e, ok := <-sub.events:
			if !ok {
				return
			}
			b.safeCall(sub, e)
		case <-sub.done:
			for e := range sub.events {
				b.safeCall(sub, e)
			}
			return
		}
	}
}

// safeCall invokes the handler, recovering from panics so that one faulty
// subscriber cannot stop delivery to the others.
func (b *Bus) safeCall(sub *subscription, e lifecycle.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("events: handler panicked",
				"subscriber_id", sub.id,
				"topic", e.Topic(),
				"panic", r,
			)
		}
	}()
	sub.handler(e)
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	sub, ok := b.subscriptions[id]
	if ok {
		delete(b.subscriptions, id)
	}
	b.mu.Unlock()

	if ok {
		sub.stop()
	}
}

// stop ends the subscription once. Closing events under no lock is safe
// because the subscription is no longer reachable from Publish.
func (s *subscription) stop() {
	if s.unsubscribed.CompareAndSwap(false, true) {
		close(s.done)
		close(s.events)
	}
}

// Close ends every subscription and waits until the events queued so far
// have been delivered. It is safe to call more than once.
func (b *Bus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}
	b.subscriptions = make(map[uint64]*subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	for _, sub := range subs {
		<-sub.finished
	}
	return nil
}

// Stats is a point-in-time view of the bus counters.
type Stats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
	Closed      bool   `json:"closed"`
}

// Stats returns the current bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{
		Subscribers: len(b.subscriptions),
		Published:   b.published.Load(),
		Dropped:     b.dropped.Load(),
		Closed:      b.closed.Load(),
	}
}
