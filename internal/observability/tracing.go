package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	traceScope = "aglm.taskqueue"

	spanWorkflowExecute = "aglm.workflow.execute"

	attrTaskID   = "aglm.task_id"
	attrWorkflow = "aglm.workflow"
	attrStatus   = "aglm.status"
)

// NewTracerProvider builds an sdktrace.TracerProvider exporting via OTLP
// HTTP to endpoint. If endpoint is empty, it returns a provider with no
// exporter, so spans are created but never exported, matching this
// service's "tracing is optional" stance from SPEC_FULL.md §10.3.
func NewTracerProvider(ctx context.Context, endpoint, serviceName string) (*sdktrace.TracerProvider, error) {
	if endpoint == "" {
		return sdktrace.NewTracerProvider(), nil
	}
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("observability: otlp exporter: %w", err)
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: resource: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// StartWorkflowSpan starts a span around one workflow execution.
func StartWorkflowSpan(ctx context.Context, taskID, workflow string) (context.Context, trace.Span) {
	return otel.Tracer(traceScope).Start(ctx, spanWorkflowExecute, trace.WithAttributes(
		attribute.String(attrTaskID, taskID),
		attribute.String(attrWorkflow, workflow),
	))
}

// MarkSpanResult records status on span and sets its OK/Error status.
func MarkSpanResult(span trace.Span, status string, err error) {
	if span == nil {
		return
	}
	span.SetAttributes(attribute.String(attrStatus, status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
