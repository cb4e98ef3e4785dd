// Package logger configures slog for the wizard binaries and carries log attributes on contexts.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amp-labs/wizard/shutdown"
)

// Default subsystem name attached to every log line.
var subsystem atomic.Value //nolint:gochecknoglobals

// configMutex serializes ConfigureLoggingWithOptions, which replaces the process-wide default.
var configMutex sync.Mutex //nolint:gochecknoglobals

type contextKey string

const (
	keyMuted     contextKey = "mute"
	keySubsystem contextKey = "subsystem"
	keySession   contextKey = "session_id"
	keyFlow      contextKey = "flow"
	keyRequest   contextKey = "request_id"
	keyValues    contextKey = "loggerValues"
)

// ErrInvalidLevel is returned by ParseLevel for unknown level names.
var ErrInvalidLevel = errors.New("invalid log level")

// Fatal logs an error message, runs the shutdown hooks and exits.
func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)

	shutdown.Shutdown()

	time.Sleep(time.Second)

	os.Exit(1)
}

// Options is used to configure logging.
type Options struct {
	Subsystem   string
	JSON        bool
	MinLevel    slog.Level
	LegacyLevel slog.Level
	Output      io.Writer

	// Extra handlers receive every record alongside the console handler (e.g. an OTLP bridge).
	Extra []slog.Handler
}

// ConfigureLoggingWithOptions installs the default logger and returns it.
func ConfigureLoggingWithOptions(opts Options) *slog.Logger {
	configMutex.Lock()
	defer configMutex.Unlock()

	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.MinLevel}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(opts.Output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(opts.Output, handlerOpts)
	}

	if len(opts.Extra) > 0 {
		handler = Tee(append([]slog.Handler{handler}, opts.Extra...)...)
	}

	handler = &slogErrorLogger{inner: handler}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	// Third party packages still using the log package end up in slog too.
	def := log.Default()
	*def = *slog.NewLogLogger(handler, opts.LegacyLevel)

	subsystem.Store(opts.Subsystem)

	return logger
}

// Option adjusts Options before ConfigureLogging applies them.
type Option func(*Options)

// WithJSON switches between JSON and text output.
func WithJSON(json bool) Option {
	return func(o *Options) { o.JSON = json }
}

// WithLevel sets the minimum level.
func WithLevel(level slog.Level) Option {
	return func(o *Options) { o.MinLevel = level }
}

// WithOutput redirects console output.
func WithOutput(w io.Writer) Option {
	return func(o *Options) { o.Output = w }
}

// WithHandler adds a handler that receives every record.
func WithHandler(h slog.Handler) Option {
	return func(o *Options) {
		if h != nil {
			o.Extra = append(o.Extra, h)
		}
	}
}

// ConfigureLogging configures logging for app with text output at info level unless options say
// otherwise.
func ConfigureLogging(app string, opts ...Option) *slog.Logger {
	options := Options{
		Subsystem:   app,
		MinLevel:    slog.LevelInfo,
		LegacyLevel: slog.LevelInfo,
		Output:      os.Stdout,
	}

	for _, o := range opts {
		o(&options)
	}

	return ConfigureLoggingWithOptions(options)
}

// ParseLevel accepts debug, info, warn/warning and error in any case.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLevel, name)
	}
}

func value(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}

	val, ok := ctx.Value(key).(string)

	return val, ok && val != ""
}

func withValue(ctx context.Context, key contextKey, val any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, key, val)
}

// WithMuted suppresses all logging done through Get on the returned context. Health checks use it.
func WithMuted(ctx context.Context, muted bool) context.Context {
	return withValue(ctx, keyMuted, muted)
}

func isMuted(ctx context.Context) bool {
	if ctx == nil {
		return false
	}

	muted, ok := ctx.Value(keyMuted).(bool)

	return ok && muted
}

// WithSubsystem overrides the configured subsystem name.
func WithSubsystem(ctx context.Context, name string) context.Context {
	return withValue(ctx, keySubsystem, name)
}

// GetSubsystem returns the subsystem from the context, falling back to the configured default.
func GetSubsystem(ctx context.Context) string {
	if sub, ok := value(ctx, keySubsystem); ok {
		return sub
	}

	if def, ok := subsystem.Load().(string); ok {
		return def
	}

	return ""
}

// WithSessionID tags log lines with a wizard session.
func WithSessionID(ctx context.Context, id string) context.Context {
	return withValue(ctx, keySession, id)
}

// GetSessionID returns the session id set by WithSessionID.
func GetSessionID(ctx context.Context) (string, bool) {
	return value(ctx, keySession)
}

// WithFlow tags log lines with a flow name.
func WithFlow(ctx context.Context, flow string) context.Context {
	return withValue(ctx, keyFlow, flow)
}

// GetFlow returns the flow name set by WithFlow.
func GetFlow(ctx context.Context) (string, bool) {
	return value(ctx, keyFlow)
}

// WithRequestId adds an HTTP request id to the context.
func WithRequestId(ctx context.Context, requestId string) context.Context {
	return withValue(ctx, keyRequest, requestId)
}

// GetRequestId returns the request id set by WithRequestId.
func GetRequestId(ctx context.Context) (string, bool) {
	return value(ctx, keyRequest)
}

type nullHandler struct{}

func (nullHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nullHandler) Handle(context.Context, slog.Record) error { return nil }
func (n nullHandler) WithAttrs([]slog.Attr) slog.Handler      { return n }
func (n nullHandler) WithGroup(string) slog.Handler           { return n }

var nullLogger = slog.New(nullHandler{}) //nolint:gochecknoglobals

// Get returns the default logger decorated with whatever the context carries.
func Get(ctx ...context.Context) *slog.Logger {
	var realCtx context.Context

	for _, c := range ctx {
		if c != nil {
			realCtx = c

			break
		}
	}

	if realCtx == nil {
		realCtx = context.Background()
	}

	if isMuted(realCtx) {
		return nullLogger
	}

	logger := slog.Default()

	if sub := GetSubsystem(realCtx); sub != "" {
		logger = logger.With("subsystem", sub)
	}

	if flow, ok := GetFlow(realCtx); ok {
		logger = logger.With("flow", flow)
	}

	if id, ok := GetSessionID(realCtx); ok {
		logger = logger.With("session_id", id)
	}

	if id, ok := GetRequestId(realCtx); ok {
		logger = logger.With("request_id", id)
	}

	if vals := getValues(realCtx); vals != nil {
		logger = logger.With(vals...)
	}

	return logger
}

// With returns a new context whose logger carries the given key-value pairs.
func With(ctx context.Context, values ...any) context.Context {
	if len(values) == 0 && ctx != nil {
		return ctx
	}

	existing := getValues(ctx)
	vals := make([]any, 0, len(existing)+len(values))
	vals = append(vals, existing...)
	vals = append(vals, values...)

	return withValue(ctx, keyValues, vals)
}

func getValues(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}

	vals, _ := ctx.Value(keyValues).([]any)

	return vals
}
