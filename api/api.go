// Package api serves the indexed ledger over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Ethernal-Tech/chronicle/actor"
	"github.com/Ethernal-Tech/chronicle/common"
	"github.com/Ethernal-Tech/chronicle/ledger"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultListenAddress   = "localhost:8042"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

type Config struct {
	ListenAddress   string          `json:"listenAddress"`
	ReadTimeout     common.Duration `json:"readTimeout"`
	WriteTimeout    common.Duration `json:"writeTimeout"`
	ShutdownTimeout common.Duration `json:"shutdownTimeout"`
}

func DefaultConfig() Config {
	return Config{
		ListenAddress:   defaultListenAddress,
		ReadTimeout:     common.Duration(defaultReadTimeout),
		WriteTimeout:    common.Duration(defaultWriteTimeout),
		ShutdownTimeout: common.Duration(defaultShutdownTimeout),
	}
}

func (c Config) Validate() error {
	if c.ListenAddress == "" {
		return errors.New("api listen address is empty")
	}

	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		return fmt.Errorf("invalid api listen address: %w", err)
	}

	return nil
}

// Error terminates the worker when the server cannot be started or stopped serving.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("api %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type serverFailed struct {
	err error
}

// Worker is the actor running the query server.
type Worker struct {
	db       ledger.Database
	config   Config
	gatherer prometheus.Gatherer
	metrics  *Metrics

	addr atomic.Pointer[net.Addr]
}

var _ actor.Actor = (*Worker)(nil)

// NewWorker creates the query worker. gatherer backs /metrics and may be nil.
func NewWorker(db ledger.Database, config Config, gatherer prometheus.Gatherer, metrics *Metrics) *Worker {
	return &Worker{
		db:       db,
		config:   config,
		gatherer: gatherer,
		metrics:  metrics,
	}
}

func (w *Worker) Name() string {
	return "api"
}

// Addr returns the bound listen address, nil until the worker is listening.
func (w *Worker) Addr() net.Addr {
	if addr := w.addr.Load(); addr != nil {
		return *addr
	}

	return nil
}

func (w *Worker) RegisterHandlers(h *actor.Handlers) {
	actor.On(h, func(_ *actor.Context, ev serverFailed) error {
		return &Error{Op: "serve", Err: ev.err}
	})
}

func (w *Worker) Init(cx *actor.Context) error {
	listener, err := (&net.ListenConfig{}).Listen(cx.Context(), "tcp", w.config.ListenAddress)
	if err != nil {
		return &Error{Op: "listen", Err: err}
	}

	addr := listener.Addr()
	w.addr.Store(&addr)

	server := &http.Server{
		Handler:      NewRouter(w.db, w.gatherer, w.metrics, cx.Logger()),
		ReadTimeout:  w.config.ReadTimeout.Duration(),
		WriteTimeout: w.config.WriteTimeout.Duration(),
		BaseContext: func(net.Listener) context.Context {
			return cx.Context()
		},
	}

	cx.Logger().Info("Query server listening", "address", addr.String())

	if err := cx.Go(func(ctx context.Context) {
		<-ctx.Done()

		w.shutdown(cx, server)
	}); err != nil {
		_ = listener.Close()

		return err
	}

	if err := cx.Go(func(context.Context) {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = cx.Send(serverFailed{err: err})
		}
	}); err != nil {
		_ = listener.Close()

		return err
	}

	return nil
}

func (w *Worker) shutdown(cx *actor.Context, server *http.Server) {
	timeout := w.config.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		cx.Logger().Warn("Query server did not shut down gracefully", "err", err)

		_ = server.Close()
	}

	cx.Logger().Debug("Query server stopped")
}
