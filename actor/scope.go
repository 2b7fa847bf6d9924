package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"go.uber.org/multierr"
)

// Scope groups running actors and background tasks under one cancellation boundary.
// Scopes form a tree: cancelling a scope cancels every descendant scope,
// and a scope only completes after every task it tracks has returned.
type Scope struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	parent *Scope

	logger  hclog.Logger
	metrics *Metrics

	lock   sync.Mutex
	closed bool
	wg     sync.WaitGroup
	failed []error
}

// Spawner is implemented by the places new actors can be spawned from: a Scope or an actor Context.
type Spawner interface {
	spawnScope() *Scope
}

var (
	_ Spawner = (*Scope)(nil)
	_ Spawner = (*Context)(nil)

	errScopeShutdown = errors.New("scope shut down")
)

func newRootScope(ctx context.Context, logger hclog.Logger, metrics *Metrics) *Scope {
	scopeCtx, cancel := context.WithCancelCause(ctx)

	return &Scope{
		ctx:     scopeCtx,
		cancel:  cancel,
		logger:  logger,
		metrics: metrics,
	}
}

func (s *Scope) child(logger hclog.Logger) *Scope {
	ctx, cancel := context.WithCancelCause(s.ctx)

	return &Scope{
		ctx:     ctx,
		cancel:  cancel,
		parent:  s,
		logger:  logger,
		metrics: s.metrics,
	}
}

func (s *Scope) spawnScope() *Scope {
	return s
}

// Context is cancelled when the scope or any of its ancestors shuts down.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Shutdown cancels the scope and all of its descendants. It is idempotent and does not wait.
func (s *Scope) Shutdown() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if !s.closed {
		s.closed = true

		s.cancel(errScopeShutdown)
	}
}

// track registers one more task in the scope. It fails once the scope is shutting down
// so that no task can start after the scope began waiting for its children.
func (s *Scope) track() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed || s.ctx.Err() != nil {
		return ErrScopeClosed
	}

	s.wg.Add(1)

	return nil
}

func (s *Scope) untrack() {
	s.wg.Done()
}

// shutdownAndWait cancels the scope and blocks until every tracked task returned.
func (s *Scope) shutdownAndWait() {
	s.Shutdown()
	s.wg.Wait()
}

// recordFailure keeps the failure of an unsupervised actor of the root scope for Launch to return.
func (s *Scope) recordFailure(name string, aerr *ActorError) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.failed = append(s.failed, fmt.Errorf("%s: %w", name, aerr))
}

func (s *Scope) failures() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	return multierr.Combine(s.failed...)
}
