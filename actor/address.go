package actor

import (
	"reflect"

	"github.com/Ethernal-Tech/chronicle/common"
	"github.com/google/uuid"
)

const mailboxInitialCapacity = 64

// Sender is the send side of a mailbox, shared by Address and the actor's own Context.
type Sender interface {
	Send(event any) error
	IsClosed() bool
}

// mailbox is the receiving end of an actor plus everything an address needs to reach it.
type mailbox struct {
	id       string
	name     string
	queue    *common.SafeQueue[any]
	handlers *Handlers
	scope    *Scope
	metrics  *Metrics
	doneCh   chan struct{}
}

func newMailbox(name string, handlers *Handlers, scope *Scope, metrics *Metrics) *mailbox {
	return &mailbox{
		id:       uuid.NewString(),
		name:     name,
		queue:    common.NewSafeQueue[any](mailboxInitialCapacity),
		handlers: handlers,
		scope:    scope,
		metrics:  metrics,
		doneCh:   make(chan struct{}),
	}
}

func (m *mailbox) send(event any) error {
	if !m.handlers.accepts(reflect.TypeOf(event)) {
		return &SendError{Actor: m.name, Event: eventName(event), Err: ErrUnhandledEvent}
	}

	if !m.queue.Push(event) {
		return &SendError{Actor: m.name, Event: eventName(event), Err: ErrMissingReceiver}
	}

	m.metrics.eventEnqueued(m.name)

	return nil
}

// Address is a shareable handle to the mailbox of a running actor of type A.
// It does not own the actor: once the actor terminates every Send fails with ErrMissingReceiver.
type Address[A Actor] struct {
	mb *mailbox
}

var _ Sender = (*Address[Actor])(nil)

// Send enqueues the event without blocking. Events sent from one goroutine are handled in send order.
func (a *Address[A]) Send(event any) error {
	return a.mb.send(event)
}

// IsClosed reports whether the actor's run loop has exited.
func (a *Address[A]) IsClosed() bool {
	return a.mb.queue.IsClosed()
}

// Shutdown requests cancellation of the actor and all of its descendants. It does not wait.
func (a *Address[A]) Shutdown() {
	a.mb.scope.Shutdown()
}

// Done is closed after the actor and all of its descendants terminated and its report was delivered.
func (a *Address[A]) Done() <-chan struct{} {
	return a.mb.doneCh
}

// ID uniquely identifies the actor instance behind the address.
func (a *Address[A]) ID() string {
	return a.mb.id
}

func (a *Address[A]) Name() string {
	return a.mb.name
}
