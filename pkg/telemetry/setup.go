package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Init wires the global tracer provider from the config and returns a
// shutdown hook that flushes pending spans. Call it once at startup, only
// when Config.Enabled().
func Init(config Config) (func(context.Context) error, error) {
	exporter, err := config.exporter()
	if err != nil {
		return nil, err
	}

	res, err := config.resource()
	if err != nil {
		return nil, err
	}

	provider := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exporter),
		tracesdk.WithResource(res),
		tracesdk.WithSampler(tracesdk.AlwaysSample()),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return provider.Shutdown, nil
}

// resource identifies this agent instance in the trace backend. The SDK
// defaults (host, process) are merged with our service identity.
func (c Config) resource() (*resource.Resource, error) {
	if c.Service == "" {
		return nil, errors.New("telemetry service name is not set")
	}

	identity := []attribute.KeyValue{semconv.ServiceNameKey.String(c.Service)}
	if c.ID != "" {
		identity = append(identity, semconv.ServiceInstanceIDKey.String(c.ID))
	}

	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, identity...),
	)
}

// exporter picks the span exporter: OTLP wins when both are configured,
// Jaeger is the fallback.
func (c Config) exporter() (tracesdk.SpanExporter, error) {
	if c.OTLP.Host != "" {
		return c.OTLP.exporter()
	}
	if c.JaegerURL != "" {
		return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(c.JaegerURL)))
	}
	return nil, errors.New("telemetry enabled but no exporter endpoint is configured")
}

func (o OTLP) exporter() (*otlptrace.Exporter, error) {
	// otlptracehttp takes a bare host[:port]; it does not validate the
	// value up front, and a malformed one only surfaces as logged send
	// failures long after startup. Reject it here instead.
	if strings.Contains(o.Host, "://") || strings.Contains(o.Host, "/") {
		return nil, fmt.Errorf("OTLP host %q must be a bare host[:port], without scheme or path", o.Host)
	}

	options := []otlptracehttp.Option{otlptracehttp.WithEndpoint(o.Host)}
	if !o.Secure {
		options = append(options, otlptracehttp.WithInsecure())
	}

	return otlptrace.New(context.Background(), otlptracehttp.NewClient(options...))
}
