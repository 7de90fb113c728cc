package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TraceConfig configures the tracer provider wrapping every outward
// suspension point: broker calls, outbound fetch, sub-agent IPC, approval
// waits.
//
// Only go.opentelemetry.io/otel's core and sdk packages are linked, so
// spans are recorded by the SDK's sampler and processors but exported
// nowhere by default; a deployment that wants an OTLP backend registers
// its own exporter against the *sdktrace.TracerProvider this constructor
// returns.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
	SamplingRate   float64
}

// NewTracerProvider builds an SDK tracer provider and installs it as the
// global otel provider. Call once at process startup.
func NewTracerProvider(cfg TraceConfig) (*sdktrace.TracerProvider, func(context.Context) error) {
	rate := cfg.SamplingRate
	if rate <= 0 {
		rate = 1.0
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(rate)),
	)
	otel.SetTracerProvider(provider)
	return provider, provider.Shutdown
}

// Tracer is the span-creation entrypoint every suspension-point caller uses.
type Tracer struct {
	tracer trace.Tracer
}

func NewTracer(name string) *Tracer {
	return &Tracer{tracer: otel.Tracer(name)}
}

// StartSpan begins a span around one outward suspension point (a broker
// call, an outbound fetch, a sub-agent IPC round trip, an approval wait).
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
