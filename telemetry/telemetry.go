// Package telemetry wires OpenTelemetry tracing and log export over OTLP/HTTP.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

const (
	DefaultServiceName    = "wizard"
	defaultServiceVersion = "1.0.0"
	defaultTimeout        = 5 * time.Second

	// collectorEndpoint is the in-cluster collector used when running under Kubernetes.
	collectorEndpoint = "http://opentelemetry-collector.opentelemetry.svc.cluster.local:4318"
)

// Config holds the OpenTelemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the collector base URL; signal paths are appended.
	Endpoint string
	Timeout  time.Duration
	// Logs also exports slog records through the otelslog bridge.
	Logs bool
}

// DefaultEndpoint returns the collector endpoint to use when none is configured.
func DefaultEndpoint(getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}

	if getenv("KUBERNETES_SERVICE_HOST") != "" {
		return collectorEndpoint
	}

	return ""
}

func (c Config) withDefaults() Config {
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}

	if c.ServiceVersion == "" {
		c.ServiceVersion = defaultServiceVersion
	}

	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint(nil)
	}

	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}

	return c
}

func signalURL(endpoint, path string) string {
	return strings.TrimSuffix(endpoint, "/") + path
}

// Providers holds what Initialize created. A nil *Providers is valid and does nothing.
type Providers struct {
	service string
	tracer  *sdktrace.TracerProvider
	logger  *sdklog.LoggerProvider
}

// Initialize installs the global tracer provider and propagator. It returns nil providers when
// telemetry is disabled or no endpoint is known.
func Initialize(ctx context.Context, config Config) (*Providers, error) {
	config = config.withDefaults()

	if !config.Enabled {
		slog.Info("OpenTelemetry is disabled")

		return nil, nil //nolint:nilnil
	}

	if config.Endpoint == "" {
		slog.Warn("OpenTelemetry endpoint not configured, telemetry will be disabled")

		return nil, nil //nolint:nilnil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(signalURL(config.Endpoint, "/v1/traces")),
		otlptracehttp.WithTimeout(config.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	providers := &Providers{
		service: config.ServiceName,
		tracer: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		),
	}

	if config.Logs {
		logExporter, err := otlploghttp.New(ctx,
			otlploghttp.WithEndpointURL(signalURL(config.Endpoint, "/v1/logs")),
			otlploghttp.WithTimeout(config.Timeout),
		)
		if err != nil {
			return nil, errors.Join(
				fmt.Errorf("failed to create OTLP log exporter: %w", err),
				providers.tracer.Shutdown(ctx))
		}

		providers.logger = sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
			sdklog.WithResource(res),
		)
	}

	otel.SetTracerProvider(providers.tracer)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Info("OpenTelemetry initialized",
		"service", config.ServiceName,
		"version", config.ServiceVersion,
		"environment", config.Environment,
		"endpoint", config.Endpoint,
		"logs", config.Logs,
	)

	return providers, nil
}

// LogHandler returns a slog handler exporting records over OTLP, or nil when log export is off.
func (p *Providers) LogHandler() slog.Handler {
	if p == nil || p.logger == nil {
		return nil
	}

	return otelslog.NewHandler(p.service, otelslog.WithLoggerProvider(p.logger))
}

// Shutdown flushes and stops whatever Initialize started.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}

	slog.Info("Shutting down OpenTelemetry providers")

	var errs []error

	if p.logger != nil {
		errs = append(errs, p.logger.Shutdown(ctx))
	}

	errs = append(errs, p.tracer.Shutdown(ctx))

	return errors.Join(errs...)
}
