// Package errmodel defines the error taxonomy shared by the upstream client,
// the validators and the protocol adapter. Every failure that leaves the
// client is an *Error with one of the Kind values below.
package errmodel

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
)

// Kind tags an Error with its place in the taxonomy.
type Kind string

const (
	KindAPI            Kind = "api_error"
	KindAuthentication Kind = "authentication_error"
	KindNotFound       Kind = "not_found_error"
	KindRateLimit      Kind = "rate_limit_error"
	KindNetwork        Kind = "network_error"
	KindTimeout        Kind = "timeout_error"
	KindValidation     Kind = "validation_error"
	KindConfiguration  Kind = "configuration_error"
)

// Error is the compact error payload used across the module.
// It implements the error interface.
type Error struct {
	Kind     Kind           `json:"kind"`
	Message  string         `json:"message"`
	Status   int            `json:"status,omitempty"`
	Field    string         `json:"field,omitempty"`
	Value    any            `json:"value,omitempty"`
	Key      string         `json:"key,omitempty"`
	Response map[string]any `json:"response,omitempty"`
	Context  map[string]any `json:"context,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap exposes the transport error behind network and timeout failures.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// New constructs an error of the given kind.
func New(kind Kind, message string, ctx map[string]any) *Error {
	e := &Error{Kind: kind, Message: truncate(message, 512)}
	if len(ctx) > 0 {
		e.Context = truncateContext(ctx)
	}
	return e
}

// API reports a failed upstream call. body is the parsed response, if any.
func API(status int, message string, body map[string]any) *Error {
	e := New(KindAPI, message, nil)
	e.Status = status
	e.Response = body
	return e
}

func Authentication(message string) *Error {
	return New(KindAuthentication, message, nil)
}

func NotFound(message string) *Error {
	return New(KindNotFound, message, nil)
}

// RateLimit reports a 429. retryAfter is the raw Retry-After header, possibly empty.
func RateLimit(message, retryAfter string) *Error {
	var ctx map[string]any
	if retryAfter != "" {
		ctx = map[string]any{"retry_after": retryAfter}
	}
	return New(KindRateLimit, message, ctx)
}

func Network(message string, cause error) *Error {
	e := New(KindNetwork, message, nil)
	e.cause = cause
	return e
}

func Timeout(message string, cause error) *Error {
	e := New(KindTimeout, message, nil)
	e.cause = cause
	return e
}

// Validation reports a rejected argument before any request is made.
func Validation(field string, value any, message string) *Error {
	e := New(KindValidation, message, nil)
	e.Field = field
	e.Value = compactValue(value)
	return e
}

// Configuration reports an unusable setting at construction time.
func Configuration(key, message string) *Error {
	e := New(KindConfiguration, message, nil)
	e.Key = key
	return e
}

// Wrap attaches cause to e so errors.Is and errors.As can reach it.
func Wrap(e *Error, cause error) *Error {
	if e != nil {
		e.cause = cause
	}
	return e
}

// From converts any error into an *Error. An *Error anywhere in the chain is
// returned as-is; anything else becomes a generic API error.
func From(err error) *Error {
	var ce *Error
	if err == nil {
		return nil
	}
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Kind: KindAPI, Message: truncate("Unexpected error: "+err.Error(), 512), cause: err}
}

// KindOf returns the kind of err, or "" for nil.
func KindOf(err error) Kind {
	if ce := From(err); ce != nil {
		return ce.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var ce *Error
	return errors.As(err, &ce) && strings.EqualFold(string(ce.Kind), string(kind))
}

// HTTPStatus maps an error kind to the status used when the error is served over HTTP.
func HTTPStatus(e *Error) int {
	if e == nil {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindNetwork, KindAPI:
		return http.StatusBadGateway
	case KindConfiguration:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

// WriteHTTP writes a failure envelope to the response writer.
// It includes the trace_id if the request context carries a span.
func WriteHTTP(w http.ResponseWriter, r *http.Request, err error) {
	ce := From(err)
	if ce == nil {
		ce = &Error{Kind: KindAPI, Message: "unknown error"}
	}
	status := HTTPStatus(ce)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	traceID := ""
	if r != nil {
		if span := trace.SpanFromContext(r.Context()); span != nil {
			sc := span.SpanContext()
			if sc.HasTraceID() {
				traceID = sc.TraceID().String()
			}
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":  false,
		"message":  ce.Message,
		"error":    ce,
		"trace_id": traceID,
	})
}

// truncate trims a string to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	suffix := "..."
	if max <= 3 {
		suffix = ""
	}
	cut := max - len(suffix)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + suffix
}

// truncateContext trims long string values in the context map.
func truncateContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		out[k] = compactValue(v)
	}
	return out
}

// compactValue keeps scalars as they are and previews anything large.
func compactValue(v any) any {
	switch t := v.(type) {
	case nil, bool, int, int64, float64:
		return t
	case string:
		return truncate(t, 256)
	default:
		b, err := json.Marshal(t)
		if err != nil || len(b) == 0 {
			return t
		}
		if len(b) > 256 {
			return truncate(string(b), 256)
		}
		return t
	}
}
