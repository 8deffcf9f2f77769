// Package tracing sets up an OpenTelemetry tracer for a single CLI run.
package tracing

import (
	"context"
	"fmt"
	"strings"

	"github.com/buildkite/netbox-secrets/logger"
	"github.com/buildkite/netbox-secrets/version"
	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/contrib/propagators/b3"
	"go.opentelemetry.io/contrib/propagators/jaeger"
	"go.opentelemetry.io/contrib/propagators/ot"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	ddotel "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/opentelemetry"
	ddtracer "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

const (
	BackendNone          = ""
	BackendOpenTelemetry = "opentelemetry"
	BackendDatadog       = "datadog"
)

// ValidBackends lists the values accepted for Config.Backend.
var ValidBackends = []string{BackendNone, BackendOpenTelemetry, BackendDatadog}

const instrumentationName = "github.com/buildkite/netbox-secrets"

type Config struct {
	Backend     string
	ServiceName string

	// Env reads OTEL_EXPORTER_OTLP_PROTOCOL and the parent trace context.
	// A nil Env is an empty environment.
	Env func(string) (string, bool)
}

// Stopper flushes and shuts down whatever Start set up.
type Stopper func()

func noopStopper() {}

// Start returns a tracer for cfg.Backend and a context carrying the parent
// span found in the environment, if any. The returned Stopper must be called
// before the process exits so spans are flushed.
func Start(ctx context.Context, l logger.Logger, cfg Config) (context.Context, trace.Tracer, Stopper, error) {
	switch cfg.Backend {
	case BackendNone:
		return ctx, noop.NewTracerProvider().Tracer(instrumentationName), noopStopper, nil

	case BackendOpenTelemetry:
		return startOpenTelemetry(ctx, l, cfg)

	case BackendDatadog:
		return startDatadog(ctx, l, cfg)

	default:
		return ctx, nil, noopStopper, fmt.Errorf("invalid tracing backend %q, must be one of %q", cfg.Backend, ValidBackends)
	}
}

func startOpenTelemetry(ctx context.Context, l logger.Logger, cfg Config) (context.Context, trace.Tracer, Stopper, error) {
	protocol, _ := lookupEnv(cfg.Env, "OTEL_EXPORTER_OTLP_PROTOCOL")
	if protocol == "" {
		protocol = "grpc"
	}

	var exporter sdktrace.SpanExporter
	var err error
	switch protocol {
	case "grpc":
		exporter, err = otlptracegrpc.New(ctx)
	case "http/protobuf", "http":
		exporter, err = otlptracehttp.New(ctx)
	default:
		return ctx, nil, noopStopper, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
	if err != nil {
		return ctx, nil, noopStopper, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}

	l.Debug("Tracing with OpenTelemetry over %s", protocol)

	resources := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(version.Version()),
	)
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resources),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(Propagator())

	tracer := tracerProvider.Tracer(
		instrumentationName,
		trace.WithInstrumentationVersion(version.Version()),
		trace.WithSchemaURL(semconv.SchemaURL),
	)

	stop := func() {
		ctx := context.Background()
		if err := tracerProvider.ForceFlush(ctx); err != nil {
			l.Warn("Flushing traces: %v", err)
		}
		_ = tracerProvider.Shutdown(ctx)
	}

	return ContextFromEnv(ctx, cfg.Env), tracer, stop, nil
}

func startDatadog(ctx context.Context, l logger.Logger, cfg Config) (context.Context, trace.Tracer, Stopper, error) {
	l.Debug("Tracing with Datadog")

	provider := ddotel.NewTracerProvider(
		ddtracer.WithService(cfg.ServiceName),
		ddtracer.WithServiceVersion(version.Version()),
		ddtracer.WithLogStartup(false),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(Propagator())

	stop := func() {
		if err := provider.Shutdown(); err != nil {
			l.Warn("Stopping Datadog tracer: %v", err)
		}
	}

	tracer := provider.Tracer(instrumentationName, trace.WithInstrumentationVersion(version.Version()))
	return ContextFromEnv(ctx, cfg.Env), tracer, stop, nil
}

// Propagator understands W3C trace context and baggage, plus the B3, Jaeger,
// OpenTracing and AWS X-Ray formats.
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
		b3.New(b3.WithInjectEncoding(b3.B3MultipleHeader|b3.B3SingleHeader)),
		&jaeger.Jaeger{},
		&ot.OT{},
		&xray.Propagator{},
	)
}

// ContextFromEnv extracts a parent span from environment variables named
// after the propagation headers, e.g. TRACEPARENT or X_B3_TRACEID. This lets
// the process that runs netbox-secrets link the lookup to its own trace.
func ContextFromEnv(ctx context.Context, env func(string) (string, bool)) context.Context {
	p := Propagator()
	carrier := propagation.MapCarrier{}
	for _, field := range p.Fields() {
		if v, ok := lookupEnv(env, EnvName(field)); ok && v != "" {
			carrier.Set(field, v)
		}
	}
	if len(carrier) == 0 {
		return ctx
	}
	return p.Extract(ctx, carrier)
}

// EnvName returns the environment variable a propagation header is read from.
func EnvName(field string) string {
	return strings.ToUpper(strings.ReplaceAll(field, "-", "_"))
}

func lookupEnv(env func(string) (string, bool), key string) (string, bool) {
	if env == nil {
		return "", false
	}
	return env(key)
}
