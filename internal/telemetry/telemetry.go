// Package telemetry wires the process-wide OpenTelemetry tracer and
// meter providers. Instruments throughout the identity core are created
// against the global providers at package init time (see e.g.
// internal/ledger's ledgerMetrics), so they start as no-ops and begin
// exporting the moment Init runs — the same delegating-provider pattern
// the teacher's internal/storage/dolt package relies on.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	stdoutmetric "go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Exporter selects where traces/metrics are sent.
type Exporter string

const (
	ExporterStdout Exporter = "stdout"
	ExporterOTLP   Exporter = "otlp"
	ExporterNone   Exporter = "none"
)

// Config controls telemetry bootstrap.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Exporter       Exporter
	OTLPEndpoint   string // host:port, only used when Exporter == ExporterOTLP
}

// Shutdown flushes and stops the configured providers.
type Shutdown func(context.Context) error

// Init configures the global trace and meter providers per cfg. It
// returns a Shutdown func the caller must invoke on process exit.
// Exporter == ExporterNone leaves the global no-op providers in place,
// which is the correct behavior for unit tests.
func Init(ctx context.Context, cfg Config) (Shutdown, error) {
	if cfg.Exporter == ExporterNone || cfg.Exporter == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	var (
		traceExp sdktrace.SpanExporter
		meterExp metric.Exporter
	)

	switch cfg.Exporter {
	case ExporterStdout:
		traceExp, err = stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
		if err != nil {
			return nil, fmt.Errorf("telemetry: stdout trace exporter: %w", err)
		}
		meterExp, err = stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("telemetry: stdout metric exporter: %w", err)
		}
	case ExporterOTLP:
		meterExp, err = otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint), otlpmetrichttp.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("telemetry: otlp metric exporter: %w", err)
		}
		// Only metrics go to the OTLP collector; traces still go to the
		// stdout exporter (written to stderr), since no OTLP trace
		// exporter is wired here.
		traceExp, err = stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
		if err != nil {
			return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
		}
	default:
		return nil, fmt.Errorf("telemetry: unknown exporter %q", cfg.Exporter)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	mp := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(meterExp, metric.WithInterval(15*time.Second))),
		metric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return err
		}
		return mp.Shutdown(ctx)
	}, nil
}
