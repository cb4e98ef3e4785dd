// Package session keeps live flow machines in memory, keyed by session id, and closes them once
// they sit idle past the configured TTL.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amp-labs/wizard/logger"
	"github.com/amp-labs/wizard/statemachine"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultTTL is how long an untouched session lives.
const DefaultTTL = 30 * time.Minute

var ErrNotFound = errors.New("session not found")

var (
	liveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "statemachine_sessions_live",
		Help: "Sessions currently held in memory.",
	})

	sessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_sessions_created_total",
		Help: "Sessions created, by flow.",
	}, []string{"flow"})
)

// Factory builds machines for a flow name. flows.Catalog satisfies it.
type Factory interface {
	NewMachine(name string, opts ...statemachine.Option) (*statemachine.Machine, error)
}

// Store holds machines. Expired entries are closed by Janitor or on the next lookup.
type Store struct {
	factory Factory
	ttl     time.Duration
	opts    []statemachine.Option
	cache   *cache.Cache
}

// NewStore creates a store. opts are applied to every machine it creates.
func NewStore(factory Factory, ttl time.Duration, opts ...statemachine.Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	// No built-in janitor: its goroutine only stops on finalization. See Janitor.
	c := cache.New(ttl, 0)

	c.OnEvicted(func(id string, value any) {
		m, ok := value.(*statemachine.Machine)
		if !ok {
			return
		}

		liveSessions.Dec()

		_ = m.Close()

		logger.Get(logger.WithSessionID(context.Background(), id)).Debug("Session closed",
			"flow", m.Definition().Name)
	})

	return &Store{
		factory: factory,
		ttl:     ttl,
		opts:    opts,
		cache:   c,
	}
}

// TTL returns the idle lifetime of a session.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Create builds, starts and stores a machine for flow. extra options follow the store's own.
func (s *Store) Create(ctx context.Context, flow string, extra ...statemachine.Option) (*statemachine.Machine, error) {
	id := uuid.NewString()

	opts := make([]statemachine.Option, 0, len(s.opts)+len(extra)+1)
	opts = append(opts, statemachine.WithSessionID(id))
	opts = append(opts, s.opts...)
	opts = append(opts, extra...)

	m, err := s.factory.NewMachine(flow, opts...)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithSessionID(logger.WithFlow(ctx, flow), id)

	if err := m.Start(ctx); err != nil {
		_ = m.Close()

		return nil, fmt.Errorf("starting session: %w", err)
	}

	s.cache.SetDefault(id, m)
	liveSessions.Inc()
	sessionsCreated.WithLabelValues(flow).Inc()

	logger.Get(ctx).Info("Session created")

	return m, nil
}

// Get returns a live session and extends its lifetime.
func (s *Store) Get(id string) (*statemachine.Machine, error) {
	value, ok := s.cache.Get(id)
	if !ok {
		// Closes the session if it just expired.
		s.cache.DeleteExpired()

		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	m, ok := value.(*statemachine.Machine)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	// Replace only renews an entry that is still present, so a session evicted since the lookup
	// stays gone.
	if err := s.cache.Replace(id, m, cache.DefaultExpiration); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return m, nil
}

// Delete closes and forgets a session, cancelling any action in flight.
func (s *Store) Delete(id string) error {
	if _, ok := s.cache.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.cache.Delete(id)

	return nil
}

// Len counts stored sessions, including expired ones not yet collected.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}

// Sweep closes expired sessions.
func (s *Store) Sweep() {
	s.cache.DeleteExpired()
}

// Janitor sweeps every interval until ctx ends. Run it in its own goroutine.
func (s *Store) Janitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl / 2
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Close closes every session.
func (s *Store) Close() error {
	s.cache.DeleteExpired()

	for id := range s.cache.Items() {
		s.cache.Delete(id)
	}

	return nil
}
