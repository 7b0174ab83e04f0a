// Package telemetry turns run lifecycle events into OpenTelemetry spans.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"canvasflow/internal/eventbus"
	"canvasflow/internal/events"
)

// Setup configures an OTLP/gRPC exporter and attaches the bus subscriber.
// With an empty endpoint nothing is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
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

	sub := NewSubscriber(otel.Tracer("canvasflow"))
	unsub := sub.Register()

	return func(ctx context.Context) error {
		unsub()
		return tp.Shutdown(ctx)
	}, nil
}

// Subscriber keeps one open span per running block.
type Subscriber struct {
	tracer trace.Tracer
	spans  sync.Map // blockID -> trace.Span
}

func NewSubscriber(tracer trace.Tracer) *Subscriber {
	return &Subscriber{tracer: tracer}
}

// Register subscribes to the run events and returns a function that
// removes every subscription.
func (s *Subscriber) Register() func() {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.RunStarted) {
			_, span := s.tracer.Start(ctx, "canvasflow.run")
			span.SetAttributes(
				attribute.String("block.id", e.BlockID),
				attribute.String("code.language", e.Language),
			)
			s.spans.Store(e.BlockID, span)
		}),
		eventbus.Subscribe(func(_ context.Context, e events.ExecutorSpawned) {
			if v, ok := s.spans.Load(e.BlockID); ok {
				v.(trace.Span).AddEvent("executor.spawned", trace.WithAttributes(attribute.String("executor.command", e.Command)))
			}
		}),
		eventbus.Subscribe(func(_ context.Context, e events.RunFinished) {
			v, ok := s.spans.LoadAndDelete(e.BlockID)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(
				attribute.String("run.status", string(e.Status)),
				attribute.Int("run.outputs", e.Outputs),
			)
			if e.Err != nil {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, e.Err.Error())
			}
			span.End()
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.FormatFinished) {
			_, span := s.tracer.Start(ctx, "canvasflow.format")
			span.SetAttributes(attribute.String("block.id", e.BlockID))
			if e.Err != nil {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, e.Err.Error())
			}
			span.End()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
