package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const defaultTracesEndpoint = "http://localhost:4318/v1/traces"

// Endpoint is a parsed OTLP/HTTP traces endpoint.
type Endpoint struct {
	Host     string
	Path     string
	Insecure bool
}

// ParseEndpoint accepts a full URL or a bare host:port.
func ParseEndpoint(raw string) Endpoint {
	if raw == "" {
		raw = defaultTracesEndpoint
	}
	ep := Endpoint{Host: "localhost:4318", Path: "/v1/traces", Insecure: true}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		ep.Host = raw
		return ep
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ep
	}
	if u.Host != "" {
		ep.Host = u.Host
	}
	if u.Path != "" {
		ep.Path = u.Path
	}
	ep.Insecure = u.Scheme == "http"
	return ep
}

// InitTracer installs a global tracer provider exporting over OTLP/HTTP. The
// returned function flushes and shuts the provider down.
func InitTracer(ctx context.Context, serviceName, version string) (func(context.Context) error, error) {
	ep := ParseEndpoint(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"))

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(ep.Host),
		otlptracehttp.WithURLPath(ep.Path),
	}
	if ep.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}
