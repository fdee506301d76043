// Package dispatch delivers change events to subscribed handlers.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/goindexq/internal/events"
	"github.com/dbsmedya/goindexq/internal/logger"
)

// HandlerFunc reacts to one event.
type HandlerFunc func(ctx context.Context, event events.Event) error

// Observer receives the outcome of every dispatched event.
type Observer interface {
	ObserveDispatch(kind string, err error)
}

// Subscription describes one registered handler.
type Subscription struct {
	Name string
	Kind events.Kind
}

type subscription struct {
	Subscription
	handler HandlerFunc
}

// HandlerError wraps the error of the handler that stopped a dispatch.
type HandlerError struct {
	Subscription string
	Event        events.Event
	Err          error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s failed for %s %s: %v", e.Subscription, e.Event.Kind(), e.Event.Record(), e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Bus runs handlers synchronously in registration order.
type Bus struct {
	mu       sync.RWMutex
	subs     *orderedmap.OrderedMap[string, subscription]
	observer Observer
	logger   *logger.Logger
}

// NewBus creates an empty bus. observer may be nil.
func NewBus(log *logger.Logger, observer Observer) *Bus {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Bus{
		subs:     orderedmap.NewOrderedMap[string, subscription](),
		observer: observer,
		logger:   log,
	}
}

// Subscribe registers handler for events of kind under a unique name.
func (b *Bus) Subscribe(name string, kind events.Kind, handler HandlerFunc) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("subscription name is required")
	}
	if handler == nil {
		return fmt.Errorf("subscription %s has no handler", name)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subs.Get(name); exists {
		return fmt.Errorf("subscription %s already registered", name)
	}
	b.subs.Set(name, subscription{
		Subscription: Subscription{Name: name, Kind: kind},
		handler:      handler,
	})
	b.logger.Debugf("Subscribed %s to %s", name, kind)
	return nil
}

// Subscriptions lists the registered handlers in registration order.
func (b *Bus) Subscriptions() []Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Subscription, 0, b.subs.Len())
	for el := b.subs.Front(); el != nil; el = el.Next() {
		result = append(result, el.Value.Subscription)
	}
	return result
}

// Dispatch delivers event to every handler subscribed to its kind, in registration
// order. The first failing handler stops delivery; its error is returned as a
// *HandlerError. An event nobody subscribed to is not an error.
func (b *Bus) Dispatch(ctx context.Context, event events.Event) error {
	if event == nil {
		return fmt.Errorf("event is nil")
	}
	err := b.dispatch(ctx, event)
	if b.observer != nil {
		b.observer.ObserveDispatch(event.Kind().String(), err)
	}
	return err
}

func (b *Bus) dispatch(ctx context.Context, event events.Event) error {
	for _, sub := range b.matching(event.Kind()) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sub.handler(ctx, event); err != nil {
			return &HandlerError{Subscription: sub.Name, Event: event, Err: err}
		}
	}
	return nil
}

// DispatchAll dispatches events in order and stops at the first failure.
func (b *Bus) DispatchAll(ctx context.Context, evs ...events.Event) error {
	for _, event := range evs {
		if err := b.Dispatch(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// matching snapshots the handlers for kind so handlers may subscribe while running.
func (b *Bus) matching(kind events.Kind) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var subs []subscription
	for el := b.subs.Front(); el != nil; el = el.Next() {
		if el.Value.Kind == kind {
			subs = append(subs, el.Value)
		}
	}
	return subs
}
