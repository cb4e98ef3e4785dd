// Package api exposes wizard sessions over JSON HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/amp-labs/wizard/flows"
	"github.com/amp-labs/wizard/logger"
	"github.com/amp-labs/wizard/redact"
	"github.com/amp-labs/wizard/session"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-Id"

const shutdownTimeout = 5 * time.Second

// Server routes HTTP requests to sessions.
type Server struct {
	catalog  *flows.Catalog
	store    *session.Store
	redact   redact.Func
	gatherer prometheus.Gatherer
	router   *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithRedaction replaces the field redaction applied to responses and logs.
func WithRedaction(fn redact.Func) Option {
	return func(s *Server) { s.redact = fn }
}

// WithGatherer serves metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New builds the server and its routes.
func New(catalog *flows.Catalog, store *session.Store, opts ...Option) *Server {
	s := &Server{
		catalog:  catalog,
		store:    store,
		redact:   redact.Secrets,
		gatherer: prometheus.DefaultGatherer,
		router:   mux.NewRouter(),
	}

	for _, opt := range opts {
		opt(s)
	}

	r := s.router
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/flows", s.handleListFlows).Methods(http.MethodGet)
	r.HandleFunc("/flows/{flow}", s.handleGetFlow).Methods(http.MethodGet)
	r.HandleFunc("/flows/{flow}/diagram", s.handleFlowDiagram).Methods(http.MethodGet)
	r.HandleFunc("/flows/{flow}/sessions", s.handleCreateSession).Methods(http.MethodPost)

	r.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	r.HandleFunc("/sessions/{id}/diagram", s.handleSessionDiagram).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}/fields", s.handleSetFields).Methods(http.MethodPut)
	r.HandleFunc("/sessions/{id}/transitions", s.handleTransition).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/back", s.handleBack).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/reset", s.handleReset).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/actions/{action}", s.handleRun).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/actions", s.handleCancel).Methods(http.MethodDelete)

	r.Use(requestContext, s.accessLog)

	return s
}

// Handler returns the router behind gzip compression.
func (s *Server) Handler() http.Handler {
	return gzhttp.GzipHandler(s.router)
}

// Serve listens on addr until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	return s.ServeListener(ctx, listener)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	logger.Get(ctx).Info("Starting HTTP server", "addr", listener.Addr().String())

	served := make(chan error, 1)

	go func() {
		served <- srv.Serve(listener)
	}()

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}

	logger.Get(ctx).Info("Stopping HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)

	if serveErr := <-served; !errors.Is(serveErr, http.ErrServerClosed) {
		err = errors.Join(err, serveErr)
	}

	return err
}

func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)

		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx = logger.WithRequestId(ctx, id)

		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			ctx = logger.WithMuted(ctx, true)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		log := logger.Get(r.Context())
		level := slog.LevelInfo

		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}

		log.Log(r.Context(), level, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(started))

		if log.Enabled(r.Context(), slog.LevelDebug) {
			log.Debug("HTTP request headers", "headers", redact.Headers(r.Context(), r.Header, s.redact))
		}
	})
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	code, body := describe(err)

	if code >= http.StatusInternalServerError {
		logger.Get(r.Context()).Error("Request failed", "error", err)
	}

	respondJSON(w, code, body)
}

func decode(r *http.Request, into any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}

	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}

	return nil
}
