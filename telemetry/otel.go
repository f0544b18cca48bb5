package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/tripmind/tripmind/core"
)

// Provider owns the OTel tracer setup for the process.
type Provider struct {
	tracer        trace.Tracer
	traceProvider *sdktrace.TracerProvider
}

// Init bootstraps OpenTelemetry for the process. With an OTLP endpoint
// (argument or OTEL_EXPORTER_OTLP_ENDPOINT) spans export over gRPC;
// otherwise they go to stdout, which keeps local development traceable
// without a collector.
func Init(ctx context.Context, serviceName, endpoint string, logger core.Logger) (*Provider, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	if endpoint != "" {
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
	} else {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	exporterKind := "stdout"
	if endpoint != "" {
		exporterKind = "otlp_grpc"
	}
	logger.Info("Telemetry initialized", map[string]interface{}{
		"service":  serviceName,
		"endpoint": endpoint,
		"exporter": exporterKind,
	})

	return &Provider{
		tracer:        tp.Tracer(serviceName),
		traceProvider: tp,
	}, nil
}

// Tracer returns the provider's tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Shutdown flushes pending spans and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.traceProvider.Shutdown(ctx)
}
