// Package shutdown coordinates process exit: signal handling plus cleanup hooks.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// DefaultGrace bounds how long hooks may take once shutdown starts.
const DefaultGrace = 10 * time.Second

// Hook releases one resource. The context expires when the grace period runs out.
type Hook func(ctx context.Context) error

type namedHook struct {
	name string
	hook Hook
}

var (
	mut     sync.Mutex    //nolint:gochecknoglobals
	hooks   []namedHook   //nolint:gochecknoglobals
	trigger chan struct{} //nolint:gochecknoglobals
)

// BeforeShutdown registers a hook. The top-level context is still alive while hooks run.
// Hooks run in reverse registration order.
func BeforeShutdown(name string, h Hook) {
	mut.Lock()
	defer mut.Unlock()

	hooks = append(hooks, namedHook{name: name, hook: h})
}

// Shutdown starts the shutdown process as if a signal had arrived. It is a no-op when no handler
// is installed or shutdown is already underway.
func Shutdown() {
	mut.Lock()
	defer mut.Unlock()

	if trigger == nil {
		return
	}

	select {
	case trigger <- struct{}{}:
	default:
	}
}

// SetupHandler installs a SIGINT/SIGTERM handler. The returned context is cancelled after every
// hook has run, which happens on a signal, on Shutdown or when parent ends.
func SetupHandler(parent context.Context, grace time.Duration) context.Context {
	if grace <= 0 {
		grace = DefaultGrace
	}

	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	mut.Lock()
	trigger = make(chan struct{}, 1)
	requested := trigger
	mut.Unlock()

	go func() {
		defer signal.Stop(signals)
		defer cancel()

		select {
		case s := <-signals:
			slog.Warn("Received " + s.String() + ", shutting down...")
		case <-requested:
			slog.Warn("Shutdown requested")
		case <-parent.Done():
		}

		mut.Lock()
		trigger = nil
		mut.Unlock()

		hookCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), grace)
		defer stop()

		if err := Run(hookCtx); err != nil {
			slog.Error("Shutdown hooks failed", "error", err)
		}
	}()

	return ctx
}

// Run executes and clears the registered hooks, newest first, and joins their errors.
func Run(ctx context.Context) error {
	mut.Lock()
	pending := hooks
	hooks = nil
	mut.Unlock()

	var errs []error

	for i := len(pending) - 1; i >= 0; i-- {
		h := pending[i]

		slog.Debug("Running shutdown hook", "hook", h.name)

		if err := h.hook(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}

	return errors.Join(errs...)
}
