// Package otelhelper provides distributed tracing for step executions and scheduled tasks.
package otelhelper

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Common attribute keys.
	IntegrationIDKey = "integra.integration.id"
	ClientIDKey      = "integra.client.id"
	TransactionIDKey = "integra.transaction.id"
	StepIDKey        = "integra.step.id"
	StepTypeKey      = "integra.step.type"
	TaskIDKey        = "integra.task.id"
	TaskOutcomeKey   = "integra.task.outcome"
	ClusteredKey     = "integra.task.clustered"
	ProbingKey       = "integra.probing"
	NodeIDKey        = "integra.node.id"
)

// InstrumentationName is the tracer name used when no tracer is injected.
const InstrumentationName = "github.com/dukex/integra"

// NewTracerProvider installs a global OTLP/HTTP tracer provider. Callers shut it down on exit.
func NewTracerProvider(ctx context.Context, serviceName string, attrs ...attribute.KeyValue) (*sdktrace.TracerProvider, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			append([]attribute.KeyValue{semconv.ServiceName(serviceName)}, attrs...)...,
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp, nil
}

// Tracer returns t, or the global tracer when t is nil.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func Tracer(t trace.Tracer) trace.Tracer {
	if t != nil {
		return t
	}

	return otel.Tracer(InstrumentationName)
}

// nolint:ireturn,spancheck // Returning interface is intentional for OpenTelemetry tracing
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
