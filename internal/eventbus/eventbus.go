// Package eventbus implements the Event Bus (spec §4.6): sealed-hierarchy
// handler expansion at registration, parallel fan-out with isolated handler
// failures, and the transactional pending-events integration with the
// txn package's Context. Grounded on the teacher's coordinator message
// dispatch (coordinator.go's handlers map keyed by MessageType, fanned out
// under a mutex-guarded registry) generalized from one WebSocket connection
// to an in-process bus.
package eventbus

import (
	"sync"

	"github.com/google/uuid"
	"github.com/katalyst-run/katalyst/internal/txn"
	"github.com/katalyst-run/katalyst/klog"
)

var log = klog.For("eventbus")

// Handler processes one event. EventType names the event key it declared
// interest in; it may be a sealed hierarchy root, in which case Register
// files the handler under every concrete descendant key while the stored
// Handler keeps the root as its EventType.
type Handler struct {
	EventType string
	Name      string
	Invoke    func(event any)
}

// Hierarchy maps a sealed root event type to its concrete descendants, so
// Register can expand a handler declared against the root (spec §4.6).
type Hierarchy map[string][]string

// Publisher is the optional external bridge invoked before local dispatch;
// bridge failures are logged and never block local dispatch (spec §4.6).
type Publisher interface {
	Publish(eventType string, event any) error
}

// Bus is the in-process event bus.
type Bus struct {
	mu        sync.RWMutex
	handlers  map[string][]Handler // event key -> handlers, insertion order
	hierarchy Hierarchy
	dispatch  func(func())
	publisher Publisher
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithHierarchy supplies the sealed-hierarchy expansion table.
func WithHierarchy(h Hierarchy) Option { return func(b *Bus) { b.hierarchy = h } }

// WithPublisher installs the optional external bridge.
func WithPublisher(p Publisher) Option { return func(b *Bus) { b.publisher = p } }

// WithDispatcher overrides the task dispatcher used for handler fan-out;
// the default spawns one goroutine per handler per publish.
func WithDispatcher(d func(func())) Option { return func(b *Bus) { b.dispatch = d } }

func New(opts ...Option) *Bus {
	b := &Bus{
		handlers: map[string][]Handler{},
		dispatch: func(f func()) { go f() },
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Register enrolls handler under its declared EventType. If the type is a
// sealed hierarchy root, the handler is entered under every concrete
// descendant key instead, at registration time (spec §4.6).
func (b *Bus) Register(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if descendants, isRoot := b.hierarchy[h.EventType]; isRoot {
		for _, d := range descendants {
			b.handlers[d] = append(b.handlers[d], h)
		}
		return
	}
	b.handlers[h.EventType] = append(b.handlers[h.EventType], h)
}

// Publish dispatches event to every handler registered for eventType. If
// tc is non-nil (an open transaction context), the event is enqueued on the
// context's pending-events queue instead of dispatched immediately — the
// txn Manager drains it on AfterCommit and clears it on OnRollback.
//
// The external Publisher (if any) is invoked before local dispatch in both
// cases; its failure is logged and never prevents local dispatch/enqueue.
func (b *Bus) Publish(eventType string, event any, tc *txn.Context) {
	if b.publisher != nil {
		if err := b.publisher.Publish(eventType, event); err != nil {
			log.WithError(err).Warnf("external publisher failed for event %q", eventType)
		}
	}

	if tc != nil {
		tc.EnqueueEvent(pendingEvent{eventType: eventType, payload: event})
		return
	}
	b.dispatchLocal(eventType, event)
}

// pendingEvent is what the txn.Context's pending-events queue actually
// holds, recovered by DrainPending on commit.
type pendingEvent struct {
	eventType string
	payload   any
}

// DrainPending drains tc's pending-events queue (in insertion order) and
// dispatches each through the bus — intended to be wired as the txn
// Manager's AfterCommit adapter (spec §4.6).
func (b *Bus) DrainPending(tc *txn.Context) {
	for _, raw := range tc.DrainEvents() {
		pe, ok := raw.(pendingEvent)
		if !ok {
			continue
		}
		b.dispatchLocal(pe.eventType, pe.payload)
	}
}

// dispatchLocal starts every registered handler, in registration order,
// under the configured task dispatcher and returns without waiting for any
// of them — publish is asynchronous (spec §4.6). Each handler's panic or
// failure is isolated so one bad handler never cancels its siblings.
func (b *Bus) dispatchLocal(eventType string, event any) {
	b.mu.RLock()
	handlers := append([]Handler{}, b.handlers[eventType]...)
	b.mu.RUnlock()

	eventID := uuid.New().String()
	for _, h := range handlers {
		h := h
		b.dispatch(func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("handler %q panicked on event %q (event_id=%s): %v", h.Name, eventType, eventID, r)
				}
			}()
			h.Invoke(event)
		})
	}
}
