package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

func launchWatcher[A Actor](t *testing.T, w *watcher[A]) Report[A] {
	t.Helper()

	err := Launch(context.Background(), Options{Logger: hclog.NewNullLogger()}, func(scope *Scope) error {
		_, err := Spawn(scope, w)

		return err
	})
	require.NoError(t, err)

	select {
	case r := <-w.reports:
		return r
	default:
		require.FailNow(t, "no report delivered")
	}

	return Report[A]{}
}

func TestAddress_Send(t *testing.T) {
	t.Run("fifo per sender", func(t *testing.T) {
		const count = 500

		var (
			received []int
			addr     *Address[*probe]
		)

		collect := func(i int) call {
			return func(cx *Context) error {
				received = append(received, i)
				if len(received) == count {
					cx.Stop()
				}

				return nil
			}
		}

		err := Launch(context.Background(), Options{}, func(scope *Scope) (err error) {
			addr, err = Spawn(scope, &probe{})
			if err != nil {
				return err
			}

			for i := 0; i < count; i++ {
				if err := addr.Send(collect(i)); err != nil {
					return err
				}
			}

			return nil
		})
		require.NoError(t, err)
		require.Len(t, received, count)

		for i, v := range received {
			require.Equal(t, i, v)
		}

		// terminated actor: deterministic error, no panic
		require.True(t, addr.IsClosed())

		err = addr.Send(collect(count))
		require.ErrorIs(t, err, ErrMissingReceiver)

		var sendErr *SendError

		require.ErrorAs(t, err, &sendErr)
		require.Equal(t, "probe", sendErr.Actor)
	})

	t.Run("unhandled event type", func(t *testing.T) {
		var errs []error

		err := Launch(context.Background(), Options{}, func(scope *Scope) error {
			addr, err := Spawn(scope, &probe{})
			if err != nil {
				return err
			}

			errs = append(errs, addr.Send("text"), addr.Send(nil), addr.Send(func(*Context) error { return nil }))

			return addr.Send(call(func(cx *Context) error {
				cx.Stop()

				return nil
			}))
		})
		require.NoError(t, err)
		require.Len(t, errs, 3)

		for _, e := range errs {
			require.ErrorIs(t, e, ErrUnhandledEvent)
		}
	})

	t.Run("concurrent senders", func(t *testing.T) {
		const (
			senders = 8
			each    = 200
		)

		last := make([]int, senders)
		outOfOrder := false
		total := 0

		err := Launch(context.Background(), Options{}, func(scope *Scope) error {
			addr, err := Spawn(scope, &probe{})
			if err != nil {
				return err
			}

			var wg sync.WaitGroup

			for s := 0; s < senders; s++ {
				wg.Add(1)

				go func(s int) {
					defer wg.Done()

					for i := 1; i <= each; i++ {
						_ = addr.Send(call(func(cx *Context) error {
							if last[s] != i-1 {
								outOfOrder = true
							}

							last[s] = i
							total++

							if total == senders*each {
								cx.Stop()
							}

							return nil
						}))
					}
				}(s)
			}

			wg.Wait()

			return nil
		})
		require.NoError(t, err)
		require.False(t, outOfOrder)
		require.Equal(t, senders*each, total)
	})
}

func TestReport_Outcomes(t *testing.T) {
	errInit := errors.New("init failed")
	errHandler := errors.New("handler failed")

	t.Run("init error", func(t *testing.T) {
		r := launchWatcher(t, newWatcher(&probe{init: func(*Context) error { return errInit }}))

		require.False(t, r.Ok())
		require.Equal(t, KindResult, r.Err.Kind)
		require.ErrorIs(t, r.Err, errInit)
	})

	t.Run("handler error", func(t *testing.T) {
		r := launchWatcher(t, newWatcher(&probe{}, call(func(*Context) error {
			return fmt.Errorf("wrapped: %w", errHandler)
		})))

		require.Equal(t, KindResult, r.Err.Kind)
		require.ErrorIs(t, r.Err, errHandler)
		require.NotEmpty(t, r.ID)
	})

	t.Run("handler panic", func(t *testing.T) {
		r := launchWatcher(t, newWatcher(&probe{}, call(func(*Context) error {
			panic("boom")
		})))

		require.True(t, r.Err.IsPanic())
		require.Equal(t, "boom", r.Err.Recovered)
		require.NotEmpty(t, r.Err.Stack)
		require.Nil(t, r.Err.Err)
	})

	t.Run("init panic", func(t *testing.T) {
		r := launchWatcher(t, newWatcher(&probe{init: func(*Context) error {
			var m map[string]int
			m["x"] = 1

			return nil
		}}))

		require.True(t, r.Err.IsPanic())
	})

	t.Run("stop", func(t *testing.T) {
		r := launchWatcher(t, newWatcher(&probe{}, call(func(cx *Context) error {
			cx.Stop()

			return nil
		})))

		require.True(t, r.Ok())
		require.Equal(t, "ok", r.outcome())
	})

	t.Run("shutdown", func(t *testing.T) {
		r := launchWatcher(t, newWatcher(&probe{init: func(cx *Context) error {
			cx.Shutdown()

			return nil
		}}))

		require.True(t, r.Err.IsAborted())
		require.ErrorIs(t, r.Err, errScopeShutdown)
	})

	t.Run("cancelled call is aborted", func(t *testing.T) {
		r := launchWatcher(t, newWatcher(&probe{init: func(cx *Context) error {
			cx.Shutdown()

			return fmt.Errorf("request interrupted: %w", cx.Context().Err())
		}}))

		require.True(t, r.Err.IsAborted())
	})

	t.Run("stop wins over shutdown", func(t *testing.T) {
		r := launchWatcher(t, newWatcher(&probe{init: func(cx *Context) error {
			cx.Shutdown()
			cx.Stop()

			return nil
		}}))

		require.True(t, r.Ok())
	})

	t.Run("background task panic", func(t *testing.T) {
		r := launchWatcher(t, newWatcher(&probe{init: func(cx *Context) error {
			return cx.Go(func(context.Context) {
				panic("task boom")
			})
		}}))

		require.True(t, r.Err.IsPanic())
		require.Equal(t, "task boom", r.Err.Recovered)
	})

	t.Run("typed result", func(t *testing.T) {
		r := launchWatcher(t, newWatcher(&probe{init: func(*Context) error {
			return &SendError{Actor: "x", Event: "y", Err: ErrMissingReceiver}
		}}))

		sendErr, ok := AsResult[*SendError](r.Err)
		require.True(t, ok)
		require.Equal(t, "x", sendErr.Actor)

		_, ok = AsResult[*ActorError](r.Err)
		require.False(t, ok)
	})
}

// fanout supervises n children that complete right away and counts their reports.
type fanout struct {
	n       int
	reports map[string]int
}

type settled struct{}

func (f *fanout) Name() string {
	return "fanout"
}

func (f *fanout) RegisterHandlers(h *Handlers) {
	On(h, func(cx *Context, r Report[*probe]) error {
		f.reports[r.ID]++

		if len(f.reports) == f.n {
			// give duplicates a chance to show up
			return cx.Delay(settled{}, 50*time.Millisecond)
		}

		return nil
	})
	On(h, func(cx *Context, _ settled) error {
		cx.Stop()

		return nil
	})
}

func (f *fanout) Init(cx *Context) error {
	for i := 0; i < f.n; i++ {
		if _, err := SpawnSupervised(cx, &probe{init: func(cx *Context) error {
			cx.Stop()

			return nil
		}}); err != nil {
			return err
		}
	}

	return nil
}

func TestSpawnSupervised(t *testing.T) {
	t.Run("exactly one report per child", func(t *testing.T) {
		f := &fanout{n: 50, reports: map[string]int{}}

		require.NoError(t, Launch(context.Background(), Options{}, func(scope *Scope) error {
			_, err := Spawn(scope, f)

			return err
		}))

		require.Len(t, f.reports, f.n)

		for id, count := range f.reports {
			require.Equal(t, 1, count, id)
		}
	})

	t.Run("supervisor without report handler", func(t *testing.T) {
		err := Launch(context.Background(), Options{}, func(scope *Scope) error {
			_, err := Spawn(scope, &probe{init: func(cx *Context) error {
				_, err := SpawnSupervised(cx, &probe{})

				return err
			}})

			return err
		})
		require.ErrorIs(t, err, ErrUnsupervisedReport)
	})
}

// node spawns a chain of descendants below itself.
type node struct {
	depth   int
	tree    *tree
	started chan<- struct{}
}

type tree struct {
	lock  sync.Mutex
	nodes []*Address[*node]
}

func (tr *tree) add(addr *Address[*node]) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	tr.nodes = append(tr.nodes, addr)
}

func (n *node) Name() string {
	return fmt.Sprintf("node-%d", n.depth)
}

func (n *node) RegisterHandlers(h *Handlers) {
	On(h, func(*Context, call) error {
		return nil
	})
}

func (n *node) Init(cx *Context) error {
	if n.depth > 0 {
		child, err := Spawn(cx, &node{depth: n.depth - 1, tree: n.tree, started: n.started})
		if err != nil {
			return err
		}

		n.tree.add(child)
	}

	n.started <- struct{}{}

	return nil
}

func TestScope_Shutdown(t *testing.T) {
	t.Run("cascades to every descendant", func(t *testing.T) {
		const depth = 3

		started := make(chan struct{}, depth+1)
		tr := &tree{}
		topCh := make(chan *Address[*node], 1)
		errCh := make(chan error, 1)

		go func() {
			errCh <- Launch(context.Background(), Options{}, func(scope *Scope) error {
				top, err := Spawn(scope, &node{depth: depth, tree: tr, started: started})
				if err != nil {
					return err
				}

				tr.add(top)
				topCh <- top

				return nil
			})
		}()

		top := <-topCh

		for i := 0; i <= depth; i++ {
			<-started
		}

		top.Shutdown()
		top.Shutdown()

		select {
		case <-top.Done():
		case <-time.After(5 * time.Second):
			require.FailNow(t, "shutdown did not complete")
		}

		tr.lock.Lock()
		defer tr.lock.Unlock()

		require.Len(t, tr.nodes, depth+1)

		for _, addr := range tr.nodes {
			require.True(t, addr.IsClosed(), addr.Name())

			select {
			case <-addr.Done():
			default:
				require.FailNow(t, "descendant outlived its ancestor", addr.Name())
			}

			require.ErrorIs(t, addr.Send(call(nil)), ErrMissingReceiver)
		}

		require.NoError(t, <-errCh)
	})

	t.Run("spawn into closed scope", func(t *testing.T) {
		err := Launch(context.Background(), Options{}, func(scope *Scope) error {
			scope.Shutdown()

			_, err := Spawn(scope, &probe{})

			return err
		})
		require.ErrorIs(t, err, ErrScopeClosed)
	})

	t.Run("handler registration panic", func(t *testing.T) {
		errCh := make(chan error, 1)

		go func() {
			errCh <- Launch(context.Background(), Options{}, func(scope *Scope) error {
				_, err := Spawn(scope, &probe{init: func(cx *Context) error {
					_, err := Spawn(cx, &interfaceHandler{})

					return err
				}})

				return err
			})
		}()

		select {
		case err := <-errCh:
			require.ErrorIs(t, err, ErrInvalidHandlers)
		case <-time.After(5 * time.Second):
			require.FailNow(t, "launch did not return")
		}
	})

	t.Run("launch context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		started := make(chan struct{})

		go func() {
			<-started
			cancel()
		}()

		err := Launch(ctx, Options{}, func(scope *Scope) error {
			_, err := Spawn(scope, &probe{init: func(cx *Context) error {
				close(started)

				return nil
			}})

			return err
		})
		require.NoError(t, err)
	})

	t.Run("root failures are returned", func(t *testing.T) {
		errFatal := errors.New("fatal")

		err := Launch(context.Background(), Options{}, func(scope *Scope) error {
			if _, err := Spawn(scope, &probe{init: func(*Context) error { return errFatal }}); err != nil {
				return err
			}

			_, err := Spawn(scope, &probe{init: func(cx *Context) error {
				cx.Stop()

				return nil
			}})

			return err
		})
		require.ErrorIs(t, err, errFatal)
	})
}

type tick struct{}

// ticker re-delivers tick to itself until it saw enough of them.
type ticker struct {
	interval time.Duration
	count    int
	seen     []string
	gate     chan struct{}
}

func (tk *ticker) Name() string {
	return "ticker"
}

func (tk *ticker) RegisterHandlers(h *Handlers) {
	On(h, func(cx *Context, _ tick) error {
		tk.count++
		tk.seen = append(tk.seen, "tick")

		if tk.count == 3 {
			cx.Stop()

			return nil
		}

		return cx.Delay(tick{}, tk.interval)
	})
	On(h, func(cx *Context, s string) error {
		tk.seen = append(tk.seen, s)

		if s == "first" {
			return cx.Delay(tick{}, 0)
		}

		return nil
	})
}

func (tk *ticker) Init(*Context) error {
	if tk.gate != nil {
		<-tk.gate
	}

	return nil
}

func TestContext_Delay(t *testing.T) {
	t.Run("redelivers after the interval", func(t *testing.T) {
		tk := &ticker{interval: 20 * time.Millisecond}
		start := time.Now()

		require.NoError(t, Launch(context.Background(), Options{}, func(scope *Scope) error {
			addr, err := Spawn(scope, tk)
			if err != nil {
				return err
			}

			return addr.Send(tick{})
		}))

		require.Equal(t, 3, tk.count)
		require.GreaterOrEqual(t, time.Since(start), 2*tk.interval)
	})

	t.Run("zero delay goes behind queued events", func(t *testing.T) {
		tk := &ticker{interval: time.Millisecond, gate: make(chan struct{})}

		require.NoError(t, Launch(context.Background(), Options{}, func(scope *Scope) error {
			addr, err := Spawn(scope, tk)
			if err != nil {
				return err
			}

			defer close(tk.gate)

			for _, s := range []string{"first", "second", "third"} {
				if err := addr.Send(s); err != nil {
					return err
				}
			}

			return nil
		}))

		require.Equal(t, []string{"first", "second", "third", "tick", "tick", "tick"}, tk.seen)
	})

	t.Run("unhandled and pending on shutdown", func(t *testing.T) {
		var delayErr error

		r := launchWatcher(t, newWatcher(&probe{init: func(cx *Context) error {
			delayErr = cx.Delay(42, 0)

			if err := cx.Delay(call(func(*Context) error { return errors.New("never") }), time.Hour); err != nil {
				return err
			}

			cx.Shutdown()

			return nil
		}}))

		require.ErrorIs(t, delayErr, ErrUnhandledEvent)
		require.True(t, r.Err.IsAborted())
	})
}

func TestContext_Go(t *testing.T) {
	t.Run("task reports to its actor", func(t *testing.T) {
		r := launchWatcher(t, newWatcher(&probe{init: func(cx *Context) error {
			return cx.Go(func(context.Context) {
				_ = cx.Send(call(func(cx *Context) error {
					cx.Stop()

					return nil
				}))
			})
		}}))

		require.True(t, r.Ok())
	})

	t.Run("actor waits for its tasks", func(t *testing.T) {
		var finished bool

		r := launchWatcher(t, newWatcher(&probe{init: func(cx *Context) error {
			if err := cx.Go(func(ctx context.Context) {
				<-ctx.Done()
				time.Sleep(10 * time.Millisecond)

				finished = true
			}); err != nil {
				return err
			}

			cx.Stop()

			return nil
		}}))

		require.True(t, r.Ok())
		require.True(t, finished)
	})
}
