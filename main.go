package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Ethernal-Tech/chronicle/actor"
	"github.com/Ethernal-Tech/chronicle/config"
	"github.com/Ethernal-Tech/chronicle/launcher"
	"github.com/Ethernal-Tech/chronicle/ledger/db"
	"github.com/Ethernal-Tech/chronicle/logger"
	"github.com/Ethernal-Tech/chronicle/upstream/gouroboros"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func main() {
	if err := newRootCommand(os.Getenv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand(getenv func(string) string) *cobra.Command {
	var flags *config.Flags

	cmd := &cobra.Command{
		Use:           "chronicle",
		Short:         "Ledger indexing node",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.Resolve(getenv)
			if err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			if flags.WriteConfig != "" {
				return cfg.WriteFile(flags.WriteConfig)
			}

			return run(cmd.Context(), cfg)
		},
	}

	flags = config.NewFlags(cmd.PersistentFlags())

	return cmd
}

func run(parent context.Context, cfg config.Config) error {
	logger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := db.Open(ctx, cfg.Database, logger.Named("db"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close database", "err", err)
		}
	}()

	node := launcher.New(store, gouroboros.NewClient(logger.Named("upstream")), launcher.Config{
		Upstream:              cfg.Upstream,
		API:                   cfg.API,
		ListenerRetryInterval: cfg.ListenerRetryInterval.Duration(),
		WorkerRetryInterval:   cfg.WorkerRetryInterval.Duration(),
	}, launcher.WithRegistry(registry))

	logger.Info("Starting chronicle", "node", cfg.Upstream.NodeAddress, "db", cfg.Database.Type,
		"api", cfg.API.ListenAddress)

	err = actor.Launch(ctx, actor.Options{Logger: logger, Metrics: actor.NewMetrics(registry)},
		func(scope *actor.Scope) error {
			_, err := actor.Spawn(scope, node)

			return err
		})

	logger.Info("Chronicle stopped")

	return multierr.Combine(err, node.Failure())
}
