// Package bgworker runs collaborator calls on a bounded worker pool.
package bgworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alitto/pond/v2"
	"github.com/amp-labs/wizard/shutdown"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultWorkers is used when Options.Workers is not positive.
const DefaultWorkers = 16

// ErrUnavailable is returned when the pool refuses a task.
var ErrUnavailable = errors.New("worker pool unavailable")

// Options sizes a Pool.
type Options struct {
	// Workers bounds how many collaborator calls run at once.
	Workers int
	// QueueSize bounds how many calls may wait. Zero means unbounded.
	QueueSize int
	// NonBlocking makes Go fail instead of waiting when the queue is full.
	NonBlocking bool
}

// Pool wraps a pond pool. It satisfies statemachine.Executor.
type Pool struct {
	name string
	pool pond.Pool
}

// New creates a pool. The pool stops with ctx or when Stop is called.
func New(ctx context.Context, name string, opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	slog.Debug("Initializing background worker pool", "pool", name, "workers", opts.Workers)

	return &Pool{
		name: name,
		pool: pond.NewPool(opts.Workers,
			pond.WithContext(ctx),
			pond.WithQueueSize(opts.QueueSize),
			pond.WithNonBlocking(opts.NonBlocking)),
	}
}

// Go queues task and returns immediately.
func (p *Pool) Go(task func()) error {
	if err := p.pool.Go(task); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, p.name, err)
	}

	return nil
}

// Submit queues task and returns a handle to wait on.
func (p *Pool) Submit(task func()) pond.Task { //nolint:ireturn
	return p.pool.Submit(task)
}

// Stop waits for queued tasks and refuses new ones.
func (p *Pool) Stop() {
	slog.Debug("Stopping background worker pool", "pool", p.name)
	p.pool.StopAndWait()
}

// Stopped reports whether the pool refuses new tasks.
func (p *Pool) Stopped() bool {
	return p.pool.Stopped()
}

// StopOnShutdown registers Stop as a shutdown hook.
func (p *Pool) StopOnShutdown() {
	shutdown.BeforeShutdown("worker pool "+p.name, func(context.Context) error {
		p.Stop()

		return nil
	})
}

// Collectors exposes the pool counters as prometheus gauges labelled with the pool name.
func (p *Pool) Collectors() []prometheus.Collector {
	labels := prometheus.Labels{"pool": p.name}

	gauge := func(name, help string, read func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "bgworker",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, read)
	}

	return []prometheus.Collector{
		gauge("running_workers", "Workers currently executing a task.", func() float64 {
			return float64(p.pool.RunningWorkers())
		}),
		gauge("waiting_tasks", "Tasks queued and not yet started.", func() float64 {
			return float64(p.pool.WaitingTasks())
		}),
		gauge("completed_tasks", "Tasks finished since the pool started.", func() float64 {
			return float64(p.pool.CompletedTasks())
		}),
	}
}

// Register adds Collectors to reg.
func (p *Pool) Register(reg prometheus.Registerer) error {
	for _, c := range p.Collectors() {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("registering %s pool metrics: %w", p.name, err)
		}
	}

	return nil
}
