// Package redact masks secrets before they reach logs or API responses.
package redact

import (
	"context"
	"net/http"
	"strings"
)

// Placeholder replaces fully redacted values.
const Placeholder = "[redacted]"

// PartiallyRedactString keeps the first visibleRunes characters and masks the rest with asterisks,
// or with Placeholder when truncate is set. Values no longer than visibleRunes are returned as is.
//
//	PartiallyRedactString("SCZANGBA5YHT", 1, true)  // "S[redacted]"
//	PartiallyRedactString("Bearer abc", 7, false)   // "Bearer ***"
func PartiallyRedactString(value string, visibleRunes int, truncate bool) string {
	runes := []rune(value)
	if len(runes) <= visibleRunes {
		return value
	}

	show := string(runes[:visibleRunes])

	if truncate {
		return show + Placeholder
	}

	return show + strings.Repeat("*", len(runes)-visibleRunes)
}

// Action says what happens to a value.
type Action int

const (
	ActionKeep Action = iota
	ActionRedactFully
	// ActionRedactPartialWithMask keeps a prefix and masks the rest with asterisks.
	ActionRedactPartialWithMask
	// ActionRedactPartialTruncate keeps a prefix followed by Placeholder.
	ActionRedactPartialTruncate
	ActionDelete
)

// Func decides how to treat one key-value pair. partialLength is the visible prefix for the
// partial actions.
type Func func(ctx context.Context, key, value string) (action Action, partialLength int)

// apply returns the redacted value and whether to keep the entry at all.
func apply(action Action, partialLength int, value string) (string, bool) {
	switch action {
	case ActionRedactFully:
		return Placeholder, true
	case ActionRedactPartialWithMask:
		return PartiallyRedactString(value, partialLength, false), true
	case ActionRedactPartialTruncate:
		return PartiallyRedactString(value, partialLength, true), true
	case ActionDelete:
		return "", false
	default:
		return value, true
	}
}

// Value redacts a single value. It reports false when the entry should be dropped.
func Value(ctx context.Context, key, value string, redact Func) (string, bool) {
	if redact == nil {
		return value, true
	}

	action, partialLength := redact(ctx, key, value)

	return apply(action, partialLength, value)
}

// Headers returns a redacted copy of headers. A nil redact clones them.
func Headers(ctx context.Context, headers http.Header, redact Func) http.Header {
	if headers == nil {
		return nil
	}

	if redact == nil {
		return headers.Clone()
	}

	out := make(http.Header, len(headers))

	for key, vals := range headers {
		for _, val := range vals {
			if v, keep := Value(ctx, key, val, redact); keep {
				out.Add(key, v)
			}
		}
	}

	return out
}

// Fields returns a redacted copy of a flow's fields. A nil redact clones them.
func Fields(ctx context.Context, fields map[string]string, redact Func) map[string]string {
	if fields == nil {
		return nil
	}

	out := make(map[string]string, len(fields))

	for key, val := range fields {
		if v, keep := Value(ctx, key, val, redact); keep {
			out[key] = v
		}
	}

	return out
}

// Secrets masks wallet credentials, bearer tokens and cookies. Everything else is kept.
func Secrets(_ context.Context, key, value string) (Action, int) {
	switch strings.ToLower(key) {
	case "secretkey", "secret_key":
		return ActionRedactPartialTruncate, 1
	case "seedphrase", "seed_phrase", "token", "cookie", "set-cookie":
		return ActionRedactFully, 0
	case "authorization":
		if strings.HasPrefix(value, "Bearer ") {
			return ActionRedactPartialTruncate, len("Bearer ")
		}

		return ActionRedactFully, 0
	default:
		return ActionKeep, 0
	}
}
