package logger

import (
	"context"
	"log/slog"
	"time"
)

// AnnotateError attaches slog key-value pairs to err. When the error is later logged through the
// configured default logger the pairs appear as top-level attributes. Returns nil for a nil err.
//
//	return logger.AnnotateError(err, "session_id", id, "action", name)
func AnnotateError(err error, args ...any) error {
	if err == nil {
		return nil
	}

	r := slog.NewRecord(time.Now(), slog.LevelDebug, "", 0)
	r.Add(args...)

	attrs := make([]slog.Attr, 0, r.NumAttrs())

	r.Attrs(func(attr slog.Attr) bool {
		attrs = append(attrs, attr)

		return true
	})

	return &annotatedError{err: err, attrs: attrs}
}

type annotatedError struct {
	err   error
	attrs []slog.Attr
}

func (a *annotatedError) Error() string { return a.err.Error() }

func (a *annotatedError) Unwrap() error { return a.err }

// Attrs collects the annotations found anywhere in err's chain, including joined errors.
func Attrs(err error) []slog.Attr {
	var out []slog.Attr

	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}

		if a, ok := e.(*annotatedError); ok { //nolint:errorlint
			out = append(out, a.attrs...)
		}

		switch u := e.(type) { //nolint:errorlint
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}

	walk(err)

	return out
}

// slogErrorLogger lifts annotations out of error-valued attributes.
type slogErrorLogger struct {
	inner slog.Handler
}

var _ slog.Handler = (*slogErrorLogger)(nil)

func (s *slogErrorLogger) Enabled(ctx context.Context, level slog.Level) bool {
	return s.inner.Enabled(ctx, level)
}

func (s *slogErrorLogger) Handle(ctx context.Context, record slog.Record) error {
	var (
		base  []slog.Attr
		extra []slog.Attr
	)

	record.Attrs(func(attr slog.Attr) bool {
		if err, ok := attr.Value.Any().(error); ok {
			if annotations := Attrs(err); len(annotations) > 0 {
				if top, ok := err.(*annotatedError); ok { //nolint:errorlint
					err = top.err
				}

				base = append(base, slog.Any(attr.Key, err))
				extra = append(extra, annotations...)

				return true
			}
		}

		base = append(base, attr)

		return true
	})

	if len(extra) == 0 {
		return s.inner.Handle(ctx, record)
	}

	r := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	r.AddAttrs(base...)
	r.AddAttrs(extra...)

	return s.inner.Handle(ctx, r)
}

func (s *slogErrorLogger) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &slogErrorLogger{inner: s.inner.WithAttrs(attrs)}
}

func (s *slogErrorLogger) WithGroup(name string) slog.Handler {
	return &slogErrorLogger{inner: s.inner.WithGroup(name)}
}
