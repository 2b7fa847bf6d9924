package actor

import (
	"fmt"
	"reflect"
)

// Actor is a unit of isolated mutable state driven by typed events.
//
// The fields of the implementing value are the actor's state. The runtime calls
// RegisterHandlers once when the actor is spawned, then Init on the actor goroutine,
// then the registered handler for every event taken from the mailbox, one at a time.
// A restart always spawns a new value; a terminated value is never run again.
type Actor interface {
	// Name is used for logs, metrics and send errors.
	Name() string
	// RegisterHandlers declares the event types the actor accepts.
	RegisterHandlers(h *Handlers)
	// Init prepares the actor before the first event. An error terminates the actor.
	Init(cx *Context) error
}

// HandlerFunc is the type-erased form of a registered event handler.
type HandlerFunc func(cx *Context, event any) error

// Handlers is the per-actor dispatch table keyed by the concrete event type.
type Handlers struct {
	table map[reflect.Type]HandlerFunc
}

func newHandlers() *Handlers {
	return &Handlers{
		table: map[reflect.Type]HandlerFunc{},
	}
}

// On registers the handler for events of type E. E must be a concrete type:
// events are matched by the dynamic type of the sent value.
// Registering the same type twice replaces the previous handler.
func On[E any](h *Handlers, fn func(cx *Context, event E) error) {
	eventType := reflect.TypeFor[E]()
	if eventType.Kind() == reflect.Interface {
		panic(fmt.Sprintf("actor: cannot register handler for interface type %s", eventType)) //nolint:gocritic
	}

	h.table[eventType] = func(cx *Context, event any) error {
		return fn(cx, event.(E)) //nolint:forcetypeassert
	}
}

func (h *Handlers) lookup(event any) (HandlerFunc, bool) {
	fn, ok := h.table[reflect.TypeOf(event)]

	return fn, ok
}

func (h *Handlers) accepts(eventType reflect.Type) bool {
	_, ok := h.table[eventType]

	return ok
}

func eventName(event any) string {
	if event == nil {
		return "<nil>"
	}

	return reflect.TypeOf(event).String()
}
