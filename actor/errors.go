package actor

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingReceiver is returned when an event is sent to an actor whose run loop has exited.
	ErrMissingReceiver = errors.New("missing receiver")
	// ErrUnhandledEvent is returned when an actor has no handler for the type of the sent event.
	ErrUnhandledEvent = errors.New("unhandled event")
	// ErrUnsupervisedReport is returned by SpawnSupervised when the spawning actor
	// does not handle the Report type of the child.
	ErrUnsupervisedReport = errors.New("supervisor does not handle the child report")
	// ErrScopeClosed is returned when spawning into a scope that is shutting down.
	ErrScopeClosed = errors.New("scope is closed")
	// ErrInvalidHandlers is returned when RegisterHandlers of the spawned actor panicked.
	ErrInvalidHandlers = errors.New("invalid handler registration")
)

// SendError describes a failed delivery into an actor mailbox.
type SendError struct {
	Actor string
	Event string
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to send %s to %s: %v", e.Event, e.Actor, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// ErrorKind classifies why an actor terminated unsuccessfully.
type ErrorKind int

const (
	// KindResult is the actor's own typed failure returned from Init or a handler.
	KindResult ErrorKind = iota
	// KindPanic is an unrecoverable internal fault recovered by the runtime.
	KindPanic
	// KindAborted is an external cancellation of the actor's scope.
	KindAborted
)

func (k ErrorKind) String() string {
	switch k {
	case KindResult:
		return "result"
	case KindPanic:
		return "panic"
	case KindAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ActorError is the failure outcome of an actor run.
type ActorError struct {
	Kind ErrorKind
	// Err is the error returned by the actor for KindResult and the cancellation cause for KindAborted.
	Err error
	// Recovered and Stack are set for KindPanic.
	Recovered any
	Stack     []byte
}

func (e *ActorError) Error() string {
	switch e.Kind {
	case KindPanic:
		return fmt.Sprintf("actor panicked: %v", e.Recovered)
	case KindAborted:
		return "actor aborted"
	default:
		return fmt.Sprintf("actor failed: %v", e.Err)
	}
}

func (e *ActorError) Unwrap() error {
	return e.Err
}

func (e *ActorError) IsPanic() bool {
	return e.Kind == KindPanic
}

func (e *ActorError) IsAborted() bool {
	return e.Kind == KindAborted
}

// AsResult returns the error of a KindResult failure typed as T.
// It reports false for panics, aborts and errors of any other type.
func AsResult[T error](e *ActorError) (result T, ok bool) {
	if e == nil || e.Kind != KindResult {
		return result, false
	}

	ok = errors.As(e.Err, &result)

	return result, ok
}
