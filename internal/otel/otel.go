package otel

import (
	"context"
	"sync"
	"time"

	eventbus "github.com/hanpama/pluggraph/internal/eventbus"
	events "github.com/hanpama/pluggraph/internal/events"
	reqid "github.com/hanpama/pluggraph/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithInsecure()))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	sub := &subscriber{tracer: otel.Tracer("pluggraph")}
	sub.register()

	return tp.Shutdown, nil
}

type subscriber struct {
	tracer        trace.Tracer
	httpSpans     sync.Map // rid -> trace.Span
	pipelineSpans sync.Map // rid -> trace.Span
	phaseSpans    sync.Map // rid+"/"+phase -> trace.Span
}

func (s *subscriber) register() {
	eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "http.request")
		span.SetAttributes(
			semconv.HTTPMethodKey.String(e.Request.Method),
			attribute.String("http.target", e.Request.URL.Path),
		)
		s.httpSpans.Store(rid, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.httpSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
		span.End()
	})

	eventbus.Subscribe(func(ctx context.Context, e events.PipelineStart) {
		rid, _ := reqid.FromContext(ctx)
		parent := ctx
		if v, ok := s.httpSpans.Load(rid); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		}
		_, span := s.tracer.Start(parent, "graphql.operation")
		span.SetAttributes(attribute.String("graphql.operation.name", e.OperationName))
		s.pipelineSpans.Store(rid, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.PipelineFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.pipelineSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			attribute.String("graphql.operation.type", e.OperationType),
			attribute.Int("graphql.error_count", len(e.Errors)),
			attribute.Bool("graphql.short_circuited", e.ShortCircuited),
		)
		span.End()
	})

	eventbus.Subscribe(func(ctx context.Context, e events.PhaseStart) {
		rid, _ := reqid.FromContext(ctx)
		parent := ctx
		if v, ok := s.pipelineSpans.Load(rid); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		} else if v, ok := s.httpSpans.Load(rid); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		}
		_, span := s.tracer.Start(parent, "graphql.phase."+e.Phase)
		s.phaseSpans.Store(rid+"/"+e.Phase, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.PhaseFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.phaseSpans.LoadAndDelete(rid + "/" + e.Phase)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(attribute.Bool("graphql.short_circuited", e.ShortCircuited))
		span.End()
	})

	eventbus.Subscribe(func(ctx context.Context, e events.ResolverCall) {
		rid, _ := reqid.FromContext(ctx)
		parent := ctx
		if v, ok := s.pipelineSpans.Load(rid); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		}
		// The event arrives after the field resolved, so back-date the span.
		_, span := s.tracer.Start(parent, "graphql.resolve",
			trace.WithTimestamp(time.Now().Add(-e.Duration)))
		span.SetAttributes(
			attribute.String("graphql.field.parent_type", e.ObjectType),
			attribute.String("graphql.field.name", e.Field),
		)
		if e.Err != nil {
			span.RecordError(e.Err)
		}
		span.End()
	})
}
