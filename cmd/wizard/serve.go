package main

import (
	"context"
	"fmt"
	"time"

	"github.com/amp-labs/wizard/api"
	"github.com/amp-labs/wizard/bgworker"
	"github.com/amp-labs/wizard/logger"
	"github.com/amp-labs/wizard/session"
	"github.com/amp-labs/wizard/shutdown"
	"github.com/amp-labs/wizard/statemachine"
	"github.com/amp-labs/wizard/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const janitorInterval = time.Minute

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve flow sessions over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.String("http.addr", ":8080", "listen address")
	flags.Int("actions.workers", bgworker.DefaultWorkers, "concurrent collaborator calls")
	flags.Duration("actions.timeout", statemachine.DefaultActionTimeout, "collaborator call timeout")
	flags.Duration("sessions.ttl", session.DefaultTTL, "idle session lifetime")

	return cmd
}

func (a *app) serve(parent context.Context) error {
	providers, err := telemetry.Initialize(parent, a.cfg.TelemetryConfig())
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	if handler := providers.LogHandler(); handler != nil {
		logger.ConfigureLogging(appName,
			logger.WithJSON(a.cfg.Log.JSON),
			logger.WithLevel(a.cfg.LogLevel()),
			logger.WithOutput(a.stderr),
			logger.WithHandler(handler))
	}

	ctx := shutdown.SetupHandler(parent, shutdown.DefaultGrace)
	shutdown.BeforeShutdown("telemetry", providers.Shutdown)

	catalog, err := a.catalog()
	if err != nil {
		return err
	}

	pool := bgworker.New(ctx, "actions", bgworker.Options{Workers: a.cfg.Actions.Workers})
	if err := pool.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	shutdown.BeforeShutdown("action pool", func(context.Context) error {
		pool.Stop()

		return nil
	})

	store := session.NewStore(catalog, a.cfg.Sessions.TTL,
		statemachine.WithExecutor(pool),
		statemachine.WithTimeout(a.cfg.Actions.Timeout),
		statemachine.WithSlog(logger.Get(ctx)))

	shutdown.BeforeShutdown("sessions", func(context.Context) error {
		return store.Close()
	})

	go store.Janitor(ctx, janitorInterval)

	serveCtx, stopServing := context.WithCancel(ctx)
	done := make(chan struct{})

	var serveErr error

	// Registered last so the listener closes before sessions and workers go away.
	shutdown.BeforeShutdown("http", func(context.Context) error {
		stopServing()
		<-done

		return serveErr
	})

	go func() {
		defer close(done)

		serveErr = api.New(catalog, store).Serve(serveCtx, a.cfg.HTTP.Addr)
	}()

	select {
	case <-done:
		// The server stopped on its own, most likely because the address is taken.
		shutdown.Shutdown()
		<-ctx.Done()

		return serveErr
	case <-ctx.Done():
		return nil
	}
}
