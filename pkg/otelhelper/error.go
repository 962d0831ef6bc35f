package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/integra/pkg/faults"
)

const (
	ErrorKindKey      = "integra.error.kind"
	ErrorRetryableKey = "integra.error.retryable"
)

// ErrorKind names the fault kind wrapped by err: configuration, state, execution or unknown.
func ErrorKind(err error) string {
	switch {
	case faults.IsConfiguration(err):
		return "configuration"
	case faults.IsState(err):
		return "state"
	case faults.IsExecution(err):
		return "execution"
	default:
		return "unknown"
	}
}

// SetError fails the span and tags it with the fault kind of err.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.SetAttributes(
		attribute.String(ErrorKindKey, ErrorKind(err)),
		attribute.Bool(ErrorRetryableKey, faults.IsRetryable(err)),
	)
	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}
