package actor

import (
	"fmt"
	"reflect"
)

// Spawn starts the actor under the given scope or actor context without supervision.
// The actor is shut down together with its parent; its report is logged and discarded,
// except that failures of actors spawned into the root scope are returned by Launch.
func Spawn[A Actor](parent Spawner, actor A) (*Address[A], error) {
	return spawn(parent.spawnScope(), actor, nil)
}

// SpawnSupervised starts the actor as a child of the running actor cx. When the child
// terminates, a Report[A] is delivered into the mailbox of cx, so the parent must have
// registered a handler for Report[A].
func SpawnSupervised[A Actor](cx *Context, actor A) (*Address[A], error) {
	if !cx.mailbox.handlers.accepts(reflect.TypeFor[Report[A]]()) {
		return nil, ErrUnsupervisedReport
	}

	return spawn(cx.scope, actor, cx.mailbox)
}

func spawn[A Actor](parent *Scope, actor A, supervisor *mailbox) (*Address[A], error) {
	// registration runs before track, a panic in it must not leave a slot in the parent
	handlers, err := registerHandlers(actor)
	if err != nil {
		return nil, err
	}

	if err := parent.track(); err != nil {
		return nil, err
	}

	scope := parent.child(nil)
	mb := newMailbox(actor.Name(), handlers, scope, parent.metrics)
	scope.logger = parent.logger.Named(actor.Name()).With("id", mb.id)

	parent.metrics.actorSpawned(mb.name)
	scope.logger.Debug("Actor spawned", "supervised", supervisor != nil)

	go runActor(parent, scope, mb, actor, supervisor)

	return &Address[A]{mb: mb}, nil
}

func registerHandlers(actor Actor) (handlers *Handlers, err error) {
	defer func() {
		if r := recover(); r != nil {
			handlers, err = nil, fmt.Errorf("%w: %s: %v", ErrInvalidHandlers, actor.Name(), r)
		}
	}()

	handlers = newHandlers()
	actor.RegisterHandlers(handlers)

	return handlers, nil
}

func runActor[A Actor](parent, scope *Scope, mb *mailbox, actor A, supervisor *mailbox) {
	// the parent slot is freed only after the report was handed over
	defer parent.untrack()
	defer close(mb.doneCh)

	cx := newContext(scope, mb, scope.logger)

	aerr := cx.run(actor)

	// no event is accepted from now on, senders observe the closed address
	if dropped := mb.queue.Close(); len(dropped) > 0 {
		scope.logger.Debug("Undelivered events dropped", "count", len(dropped))
	}

	cx.stopTimers()
	// children and background tasks terminate before this actor does
	scope.shutdownAndWait()

	report := Report[A]{Actor: actor, ID: mb.id, Err: aerr}

	parent.metrics.actorTerminated(mb.name, report.outcome())
	logReport(scope, report)

	if supervisor == nil {
		if parent.parent == nil && aerr != nil && !aerr.IsAborted() {
			parent.recordFailure(mb.name, aerr)
		}

		return
	}

	if err := supervisor.send(report); err != nil {
		scope.logger.Debug("Report not delivered, supervisor is gone", "err", err)
	}
}

func logReport[A Actor](scope *Scope, report Report[A]) {
	switch {
	case report.Err == nil:
		scope.logger.Debug("Actor completed")
	case report.Err.Kind == KindAborted:
		scope.logger.Debug("Actor aborted")
	case report.Err.Kind == KindPanic:
		scope.logger.Error("Actor terminated by panic", "panic", report.Err.Recovered)
	default:
		scope.logger.Warn("Actor terminated with error", "err", report.Err.Err)
	}
}
