// Package actortest runs single actors under a supervisor in tests.
package actortest

import (
	"context"
	"testing"
	"time"

	"github.com/Ethernal-Tech/chronicle/actor"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

const runTimeout = 30 * time.Second

type watcher[A actor.Actor] struct {
	child   A
	drive   func(ctx context.Context, addr *actor.Address[A])
	reports chan actor.Report[A]
}

func (w *watcher[A]) Name() string {
	return "watcher"
}

func (w *watcher[A]) RegisterHandlers(h *actor.Handlers) {
	actor.On(h, func(cx *actor.Context, r actor.Report[A]) error {
		w.reports <- r

		cx.Stop()

		return nil
	})
}

func (w *watcher[A]) Init(cx *actor.Context) error {
	addr, err := actor.SpawnSupervised(cx, w.child)
	if err != nil {
		return err
	}

	if w.drive == nil {
		return nil
	}

	return cx.Go(func(ctx context.Context) {
		w.drive(ctx, addr)
	})
}

// Run spawns child supervised and waits until it terminates. drive, if not nil, runs in the
// background with the child address; the context it receives is cancelled once the child terminated.
func Run[A actor.Actor](
	t *testing.T, child A, drive func(ctx context.Context, addr *actor.Address[A]),
) actor.Report[A] {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	w := &watcher[A]{
		child:   child,
		drive:   drive,
		reports: make(chan actor.Report[A], 1),
	}

	err := actor.Launch(ctx, actor.Options{Logger: hclog.NewNullLogger()}, func(scope *actor.Scope) error {
		_, err := actor.Spawn(scope, w)

		return err
	})
	require.NoError(t, err)

	select {
	case r := <-w.reports:
		return r
	default:
		require.FailNow(t, "actor did not terminate in time")
	}

	return actor.Report[A]{}
}
