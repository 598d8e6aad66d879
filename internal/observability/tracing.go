package observability

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"agentloop/internal/shared/config"
)

const (
	defaultServiceName    = "agentloop"
	defaultOTLPEndpoint   = "localhost:4318"
	defaultZipkinEndpoint = "http://localhost:9411/api/v2/spans"
)

// TracerProvider wraps the OpenTelemetry SDK provider, or a noop provider
// when tracing is disabled.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracerProvider builds the exporter named by cfg and installs the
// provider globally so engine spans reach it.
func NewTracerProvider(cfg config.TracingConfig, version string) (*TracerProvider, error) {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	if !cfg.Enabled {
		return &TracerProvider{tracer: noop.NewTracerProvider().Tracer(serviceName)}, nil
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 || sampleRate > 1.0 {
		sampleRate = 1.0
	}

	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	)
	otel.SetTracerProvider(provider)

	return &TracerProvider{provider: provider, tracer: provider.Tracer(serviceName)}, nil
}

func newExporter(cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	switch strings.ToLower(strings.TrimSpace(cfg.Exporter)) {
	case "", "otlp":
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(context.Background(), opts...)
	case "zipkin":
		if endpoint == "" {
			endpoint = defaultZipkinEndpoint
		}
		return zipkin.New(endpoint)
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}
}

// Enabled reports whether spans are exported.
func (tp *TracerProvider) Enabled() bool {
	return tp != nil && tp.provider != nil
}

// Tracer returns the service tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	if tp == nil || tp.tracer == nil {
		return noop.NewTracerProvider().Tracer(defaultServiceName)
	}
	return tp.tracer
}

// Shutdown flushes pending spans.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp == nil || tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}
