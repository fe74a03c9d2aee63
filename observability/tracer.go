package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/nitai/version"
)

// TracerConfig configures the tracer provider built by InitTracer.
type TracerConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// SampleRate is the sampling rate (0.0 to 1.0).
	SampleRate float64
}

// DefaultTracerConfig returns sensible defaults for development.
func DefaultTracerConfig(serviceName string) TracerConfig {
	return TracerConfig{
		ServiceName:    serviceName,
		ServiceVersion: version.String(),
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// InitTracer installs a global tracer provider batching spans to exporter.
func InitTracer(cfg TracerConfig, exporter sdktrace.SpanExporter) *sdktrace.TracerProvider {
	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource(cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp
}

func newResource(service, version, environment string) *resource.Resource {
	return resource.NewSchemaless(
		attribute.String(AttrServiceName, service),
		attribute.String("service.version", version),
		attribute.String("deployment.environment", environment),
	)
}

func nopMeter() metric.Meter {
	return noop.NewMeterProvider().Meter(InstrumentationName)
}

// Tracer returns nitai's tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName, trace.WithInstrumentationVersion(version.String()))
}

// StartSpan starts a client span.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// EndSpan records err, if any, and ends the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Span names.
const (
	SpanHTTPRequest   = "http.request"
	SpanWebSocketDial = "websocket.dial"
	SpanResolve       = "dns.resolve"
)

// Attribute keys.
const (
	AttrServiceName = "service.name"
	AttrMethod      = "http.request.method"
	AttrURL         = "url.full"
	AttrStatus      = "http.response.status_code"
	AttrProtocol    = "network.protocol.version"
	AttrPoolKey     = "nitai.pool_key"
	AttrAttempt     = "nitai.attempt"
	AttrHost        = "server.address"
)
