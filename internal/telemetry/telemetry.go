// Package telemetry wires the OpenTelemetry tracer provider.
//
// Tracing is disabled by default; packages create spans through the
// global otel.Tracer, which stays a no-op until Init installs a real
// provider. Telemetry failures degrade, they never crash the service.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/infrad/internal/config"
)

// Telemetry holds the installed providers for shutdown.
type Telemetry struct {
	tracerProvider *trace.TracerProvider
	logger         *zap.Logger
}

// Init sets up tracing from config. When disabled it returns a usable
// no-op instance and leaves the global provider untouched.
func Init(ctx context.Context, cfg config.TelemetryConfig, logger *zap.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Telemetry{logger: logger}
	if !cfg.Enabled {
		return t, nil
	}

	// Standalone resource; resource.Default() carries a different
	// semconv schema URL and the merge would conflict.
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	)

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.AlwaysSample())),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.tracerProvider = tp
	logger.Info("telemetry enabled",
		zap.String("service_name", cfg.ServiceName),
		zap.String("otlp_endpoint", cfg.OTLPEndpoint),
	)
	return t, nil
}

// Shutdown flushes and stops the tracer provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.tracerProvider == nil {
		return nil
	}
	if err := t.tracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("trace provider shutdown: %w", err)
	}
	return nil
}

// Enabled reports whether a real provider was installed.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.tracerProvider != nil
}
