package actor

// Report is the one-shot outcome of a supervised actor, delivered into the mailbox of the
// actor that spawned it. A supervisor declares a handler for Report[A] for each child type A.
type Report[A Actor] struct {
	// Actor is the terminated instance. It may be read to build a replacement, never resumed.
	Actor A
	// ID of the terminated instance, see Address.ID.
	ID string
	// Err is nil when the actor completed successfully.
	Err *ActorError
}

func (r Report[A]) Ok() bool {
	return r.Err == nil
}

func (r Report[A]) outcome() string {
	if r.Err == nil {
		return "ok"
	}

	return r.Err.Kind.String()
}
