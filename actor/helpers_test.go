package actor

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// call is an event carrying the code a probe runs when handling it.
type call func(cx *Context) error

// probe runs whatever it is told to, in Init and for every call event.
type probe struct {
	init call
}

func (p *probe) Name() string {
	return "probe"
}

func (p *probe) RegisterHandlers(h *Handlers) {
	On(h, func(cx *Context, c call) error {
		return c(cx)
	})
}

func (p *probe) Init(cx *Context) error {
	if p.init != nil {
		return p.init(cx)
	}

	return nil
}

// watcher supervises one child, forwards the child report and stops.
type watcher[A Actor] struct {
	child   A
	events  []any
	reports chan Report[A]
}

func newWatcher[A Actor](child A, events ...any) *watcher[A] {
	return &watcher[A]{
		child:   child,
		events:  events,
		reports: make(chan Report[A], 1),
	}
}

func (w *watcher[A]) Name() string {
	return "watcher"
}

func (w *watcher[A]) RegisterHandlers(h *Handlers) {
	On(h, func(cx *Context, r Report[A]) error {
		w.reports <- r

		cx.Stop()

		return nil
	})
}

func (w *watcher[A]) Init(cx *Context) error {
	addr, err := SpawnSupervised(cx, w.child)
	if err != nil {
		return err
	}

	for _, ev := range w.events {
		if err := addr.Send(ev); err != nil {
			return err
		}
	}

	return nil
}

// interfaceHandler registers a handler for an interface type, which On rejects.
type interfaceHandler struct{}

func (*interfaceHandler) Name() string {
	return "interface-handler"
}

func (*interfaceHandler) RegisterHandlers(h *Handlers) {
	On(h, func(*Context, error) error { return nil })
}

func (*interfaceHandler) Init(*Context) error {
	return nil
}
