// Package telemetry provides the optional OpenTelemetry tracer threaded
// through the ReAct loop and scheduler ticks: a span per reasoning step,
// per tool call, and per background run.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TraceConfig configures the OTLP exporter backing a Tracer. A zero-value
// TraceConfig (empty Endpoint) yields a Tracer that creates real spans
// against the process-wide no-op provider: Start/End remain safe to call
// everywhere, they simply never leave the process.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
	SamplingRate   float64
	EnableInsecure bool
}

// Tracer wraps an otel trace.Tracer. A nil *Tracer is valid everywhere in
// this package: Start returns the input context and a no-op end func.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer builds a Tracer per cfg and a shutdown func that flushes and
// closes the exporter. If cfg.Endpoint is empty, or the exporter cannot be
// constructed, NewTracer falls back to the global otel no-op provider and
// shutdown is a no-op — the caller never needs to branch on whether
// tracing is actually wired to a collector.
func NewTracer(cfg TraceConfig) (*Tracer, func(context.Context) error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "agentcore"
	}
	if cfg.Endpoint == "" {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, noopShutdown
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.EnableInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	if err != nil {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, noopShutdown
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		res = resource.Default()
	}

	sampler := sdktrace.TraceIDRatioBased(clampSamplingRate(cfg.SamplingRate))
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return &Tracer{tracer: provider.Tracer(cfg.ServiceName)}, provider.Shutdown
}

func clampSamplingRate(rate float64) float64 {
	switch {
	case rate <= 0:
		return 1.0
	case rate > 1:
		return 1.0
	default:
		return rate
	}
}

func noopShutdown(context.Context) error { return nil }

// Start begins a span named name. The returned end func records err (if
// non-nil) as the span status and always ends the span; callers defer it:
//
//	ctx, end := tracer.Start(ctx, "react.step", attribute.Int("step", n))
//	defer end(&err)
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(errp *error)) {
	if t == nil || t.tracer == nil {
		return ctx, func(*error) {}
	}
	spanCtx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return spanCtx, func(errp *error) {
		if errp != nil && *errp != nil {
			span.RecordError(*errp)
			span.SetStatus(codes.Error, (*errp).Error())
		}
		span.End()
	}
}
