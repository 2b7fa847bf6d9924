package actor

import (
	"context"
	"errors"
	"reflect"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Context is the execution handle of a running actor. It is owned by the actor goroutine;
// only Send, IsClosed, Shutdown and the context returned by Context may be used from other goroutines.
type Context struct {
	scope   *Scope
	mailbox *mailbox
	logger  hclog.Logger

	stopped   bool
	taskPanic atomic.Pointer[ActorError]

	timersLock sync.Mutex
	timers     map[uint64]*time.Timer
	nextTimer  uint64
}

var _ Sender = (*Context)(nil)

func newContext(scope *Scope, mb *mailbox, logger hclog.Logger) *Context {
	return &Context{
		scope:   scope,
		mailbox: mb,
		logger:  logger,
		timers:  map[uint64]*time.Timer{},
	}
}

func (cx *Context) spawnScope() *Scope {
	return cx.scope
}

// Context is cancelled when the actor is shut down. Handlers pass it to blocking calls.
func (cx *Context) Context() context.Context {
	return cx.scope.ctx
}

func (cx *Context) Logger() hclog.Logger {
	return cx.logger
}

// ID of the running actor instance.
func (cx *Context) ID() string {
	return cx.mailbox.id
}

// Send enqueues an event into the actor's own mailbox.
func (cx *Context) Send(event any) error {
	return cx.mailbox.send(event)
}

func (cx *Context) IsClosed() bool {
	return cx.mailbox.queue.IsClosed()
}

// Stop completes the actor successfully after the current handler returns.
func (cx *Context) Stop() {
	cx.stopped = true
}

// Shutdown cancels the actor together with all of its children. The actor terminates as aborted.
func (cx *Context) Shutdown() {
	cx.scope.Shutdown()
}

// Delay re-delivers the event to the actor's own mailbox no earlier than after d.
// With d <= 0 the event is appended to the tail of the mailbox right away,
// so every event already queued is handled first. Pending delays are dropped when the actor terminates.
func (cx *Context) Delay(event any, d time.Duration) error {
	if !cx.mailbox.handlers.accepts(reflect.TypeOf(event)) {
		return &SendError{Actor: cx.mailbox.name, Event: eventName(event), Err: ErrUnhandledEvent}
	}

	cx.scope.metrics.eventDelayed(cx.mailbox.name)

	if d <= 0 {
		return cx.mailbox.send(event)
	}

	if cx.IsClosed() {
		return &SendError{Actor: cx.mailbox.name, Event: eventName(event), Err: ErrMissingReceiver}
	}

	cx.timersLock.Lock()
	defer cx.timersLock.Unlock()

	id := cx.nextTimer
	cx.nextTimer++

	cx.timers[id] = time.AfterFunc(d, func() {
		cx.timersLock.Lock()
		delete(cx.timers, id)
		cx.timersLock.Unlock()

		if err := cx.mailbox.send(event); err != nil {
			cx.logger.Debug("Delayed event dropped", "event", eventName(event), "err", err)
		}
	})

	return nil
}

// Go runs fn in a background task owned by the actor. The task receives the actor context and
// the actor does not terminate before fn returns. Tasks report back by sending events to the actor.
// A panic inside fn terminates the actor as panicked.
func (cx *Context) Go(fn func(ctx context.Context)) error {
	if err := cx.scope.track(); err != nil {
		return err
	}

	go func() {
		defer cx.scope.untrack()
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()

				cx.logger.Error("Actor task panicked", "panic", r, "stack", string(stack))
				cx.taskPanic.CompareAndSwap(nil, &ActorError{Kind: KindPanic, Recovered: r, Stack: stack})
				cx.scope.Shutdown()
			}
		}()

		fn(cx.scope.ctx)
	}()

	return nil
}

// run drives the actor through init and its event loop and returns the failure, if any.
func (cx *Context) run(actor Actor) *ActorError {
	if aerr := cx.call(func() error { return actor.Init(cx) }); aerr != nil {
		return aerr
	}

	for {
		if cx.stopped {
			return nil
		}

		if cx.scope.ctx.Err() != nil {
			return cx.aborted()
		}

		event, ok := cx.mailbox.queue.TryPop()
		if !ok {
			select {
			case <-cx.scope.ctx.Done():
			case <-cx.mailbox.queue.Ready():
			}

			continue
		}

		handler, ok := cx.mailbox.handlers.lookup(event)
		if !ok {
			// send validates the type, this is only reachable through a programming error
			cx.logger.Warn("No handler for event", "event", eventName(event))

			continue
		}

		if aerr := cx.call(func() error { return handler(cx, event) }); aerr != nil {
			return aerr
		}
	}
}

// call runs init or a handler, converting a panic and a cancellation-caused error into their kinds.
func (cx *Context) call(fn func() error) (aerr *ActorError) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()

			cx.logger.Error("Actor panicked", "panic", r, "stack", string(stack))

			aerr = &ActorError{Kind: KindPanic, Recovered: r, Stack: stack}
		}
	}()

	err := fn()
	if err == nil {
		return nil
	}

	if cx.scope.ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return cx.aborted()
	}

	return &ActorError{Kind: KindResult, Err: err}
}

func (cx *Context) aborted() *ActorError {
	if aerr := cx.taskPanic.Load(); aerr != nil {
		return aerr
	}

	return &ActorError{Kind: KindAborted, Err: context.Cause(cx.scope.ctx)}
}

func (cx *Context) stopTimers() {
	cx.timersLock.Lock()
	defer cx.timersLock.Unlock()

	for id, timer := range cx.timers {
		timer.Stop()
		delete(cx.timers, id)
	}
}
