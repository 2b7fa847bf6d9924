// Package launcher supervises the node actors and decides how to recover from their failures.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ethernal-Tech/chronicle/actor"
	"github.com/Ethernal-Tech/chronicle/api"
	"github.com/Ethernal-Tech/chronicle/broker"
	"github.com/Ethernal-Tech/chronicle/ledger"
	"github.com/Ethernal-Tech/chronicle/listener"
	"github.com/Ethernal-Tech/chronicle/upstream"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultRetryInterval = 5 * time.Second

// Store is the database shared by the children. Reopen replaces the connection after a failure.
type Store interface {
	ledger.Database
	Reopen(ctx context.Context) error
}

type Config struct {
	Upstream upstream.Config
	API      api.Config
	// ListenerRetryInterval is the wait before a listener that could not connect is started again.
	ListenerRetryInterval time.Duration
	// WorkerRetryInterval is the wait before a failed query worker is started again. Zero restarts it
	// right after the store was reopened.
	WorkerRetryInterval time.Duration
}

type Option func(*Launcher)

// WithRegistry registers the children metrics on reg and serves them on the query server.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(l *Launcher) {
		if reg == nil {
			return
		}

		l.brokerMetrics = broker.NewMetrics(reg)
		l.apiMetrics = api.NewMetrics(reg)
		l.gatherer = reg
	}
}

type (
	retryListener struct{}
	retryWorker   struct{}
)

// Launcher starts the broker, the listener and the query worker, and restarts them
// according to the outcome each one terminated with.
type Launcher struct {
	store  Store
	client upstream.Client
	config Config

	brokerMetrics *broker.Metrics
	apiMetrics    *api.Metrics
	gatherer      prometheus.Gatherer

	broker  *actor.Address[*broker.Broker]
	failure error
}

var _ actor.Actor = (*Launcher)(nil)

func New(store Store, client upstream.Client, config Config, opts ...Option) *Launcher {
	if config.ListenerRetryInterval <= 0 {
		config.ListenerRetryInterval = defaultRetryInterval
	}

	l := &Launcher{
		store:  store,
		client: client,
		config: config,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *Launcher) Name() string {
	return "launcher"
}

// Failure returns the child failure the node was shut down for, nil after a regular shutdown.
// It may be read once the launcher terminated.
func (l *Launcher) Failure() error {
	return l.failure
}

func (l *Launcher) RegisterHandlers(h *actor.Handlers) {
	actor.On(h, l.handleBrokerReport)
	actor.On(h, l.handleListenerReport)
	actor.On(h, l.handleWorkerReport)
	actor.On(h, func(cx *actor.Context, _ retryListener) error {
		return l.spawnListener(cx)
	})
	actor.On(h, func(cx *actor.Context, _ retryWorker) error {
		return l.spawnWorker(cx)
	})
}

func (l *Launcher) Init(cx *actor.Context) error {
	if err := l.spawnBroker(cx); err != nil {
		return err
	}

	if err := l.spawnListener(cx); err != nil {
		return err
	}

	return l.spawnWorker(cx)
}

func (l *Launcher) handleBrokerReport(cx *actor.Context, r actor.Report[*broker.Broker]) error {
	switch {
	case r.Ok():
		cx.Logger().Info("Broker completed, shutting down")
		cx.Shutdown()
	case r.Err.IsPanic(), r.Err.IsAborted():
		l.fail(cx, "broker", r.Err)
	default:
		var perr *ledger.PersistenceError
		if !errors.As(r.Err, &perr) || !perr.IsTransient() {
			l.fail(cx, "broker", r.Err)

			return nil
		}

		cx.Logger().Warn("Broker lost the database, reconnecting", "err", r.Err.Err)

		if err := l.store.Reopen(cx.Context()); err != nil {
			return fmt.Errorf("failed to reopen database: %w", err)
		}

		return l.spawnBroker(cx)
	}

	return nil
}

func (l *Launcher) handleListenerReport(cx *actor.Context, r actor.Report[*listener.Listener]) error {
	switch {
	case r.Ok():
		cx.Logger().Info("Listener completed, shutting down", "forwarded", r.Actor.Forwarded())
		cx.Shutdown()

		return nil
	case r.Err.IsPanic(), r.Err.IsAborted():
		l.fail(cx, "listener", r.Err)

		return nil
	case errors.Is(r.Err, listener.ErrMissingBroker):
		if l.broker.IsClosed() {
			// the broker report is still on its way, look again after it
			return cx.Delay(r, 0)
		}

		cx.Logger().Info("Broker was replaced, restarting listener")

		return l.spawnListener(cx)
	}

	uerr, ok := actor.AsResult[*upstream.Error](r.Err)
	if !ok {
		cx.Logger().Warn("Unhandled listener error", "err", r.Err)
		l.fail(cx, "listener", r.Err)

		return nil
	}

	switch {
	case uerr.Kind == upstream.ConnectionError:
		cx.Logger().Warn("Could not connect to node, retrying",
			"err", uerr, "interval", l.config.ListenerRetryInterval)

		return cx.Delay(retryListener{}, l.config.ListenerRetryInterval)
	case uerr.Kind == upstream.TransportFailed && uerr.IsTransient():
		cx.Logger().Warn("Connection to node dropped, restarting listener", "err", uerr)

		return l.spawnListener(cx)
	default:
		l.fail(cx, "listener", uerr)

		return nil
	}
}

func (l *Launcher) handleWorkerReport(cx *actor.Context, r actor.Report[*api.Worker]) error {
	switch {
	case r.Ok():
		cx.Logger().Info("Query worker completed, shutting down")
		cx.Shutdown()
	case r.Err.IsPanic(), r.Err.IsAborted():
		l.fail(cx, "api", r.Err)
	default:
		cx.Logger().Warn("Query worker failed, restarting", "err", r.Err.Err, "interval", l.config.WorkerRetryInterval)

		if err := l.store.Reopen(cx.Context()); err != nil {
			return fmt.Errorf("failed to reopen database: %w", err)
		}

		return cx.Delay(retryWorker{}, l.config.WorkerRetryInterval)
	}

	return nil
}

func (l *Launcher) fail(cx *actor.Context, child string, err error) {
	cx.Logger().Error("Unrecoverable failure, shutting down", "actor", child, "err", err)

	l.failure = fmt.Errorf("%s: %w", child, err)

	cx.Shutdown()
}

func (l *Launcher) spawnBroker(cx *actor.Context) error {
	addr, err := actor.SpawnSupervised(cx, broker.New(l.store, l.brokerMetrics))
	if err != nil {
		return err
	}

	l.broker = addr

	return nil
}

// spawnListener starts a listener at the current broker, resuming after the latest stored milestone.
func (l *Launcher) spawnListener(cx *actor.Context) error {
	config := l.config.Upstream

	latest, err := l.store.GetLatestMilestone(cx.Context())
	switch {
	case err == nil:
		config = config.ResumeFrom(latest)

		cx.Logger().Debug("Resuming after milestone", "index", latest.Index, "slot", latest.Slot)
	case !errors.Is(err, ledger.ErrNotFound):
		cx.Logger().Warn("Could not read the latest milestone, syncing from the configured start", "err", err)
	}

	_, err = actor.SpawnSupervised(cx, listener.New(l.client, config, l.broker))

	return err
}

func (l *Launcher) spawnWorker(cx *actor.Context) error {
	_, err := actor.SpawnSupervised(cx, api.NewWorker(l.store, l.config.API, l.gatherer, l.apiMetrics))

	return err
}
