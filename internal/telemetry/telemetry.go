// Package telemetry wires OpenTelemetry tracing and metrics for rl.
//
// Nothing is exported unless telemetry.enabled is true; the default
// installs no-op providers.
//
//	telemetry.enabled: true             RL_TELEMETRY_ENABLED
//	telemetry.otlp-endpoint: host:4318  push metrics over OTLP/HTTP
//	OTEL_SERVICE_NAME=rl                service.name override
//
// Without an endpoint, spans and metrics are written to stderr.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const defaultScope = "github.com/revledger/revledger"

const (
	otlpInterval   = 30 * time.Second
	stderrInterval = 15 * time.Second
)

// Config selects exporters.
type Config struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
	Version      string
}

type providers struct {
	tracer *sdktrace.TracerProvider
	meter  *sdkmetric.MeterProvider
}

var active atomic.Pointer[providers]

// Enabled reports whether Init installed real providers.
func Enabled() bool {
	return active.Load() != nil
}

// Init installs the global tracer and meter providers.
func Init(ctx context.Context, cfg Config) error {
	if !cfg.Enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	spans, err := stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return fmt.Errorf("telemetry: span exporter: %w", err)
	}
	reader, err := newMetricReader(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: metric reader: %w", err)
	}

	p := &providers{
		tracer: sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(spans),
		),
		meter: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		),
	}
	otel.SetTracerProvider(p.tracer)
	otel.SetMeterProvider(p.meter)
	active.Store(p)
	return nil
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	name := cfg.ServiceName
	if env := os.Getenv("OTEL_SERVICE_NAME"); env != "" {
		name = env
	}
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
			semconv.ServiceVersionKey.String(cfg.Version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
}

// newMetricReader pushes to the OTLP endpoint when one is configured and to
// stderr otherwise.
func newMetricReader(ctx context.Context, endpoint string) (sdkmetric.Reader, error) {
	if endpoint != "" {
		exp, err := buildOTLPMetricExporter(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(otlpInterval)), nil
	}
	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(stderrInterval)), nil
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = defaultScope
	}
	return otel.Tracer(name)
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	if name == "" {
		name = defaultScope
	}
	return otel.Meter(name)
}

// Shutdown flushes pending spans and metrics. It is safe to call more than
// once.
func Shutdown(ctx context.Context) error {
	p := active.Swap(nil)
	if p == nil {
		return nil
	}
	return errors.Join(p.tracer.Shutdown(ctx), p.meter.Shutdown(ctx))
}
