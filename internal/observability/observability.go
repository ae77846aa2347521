// Package observability bootstraps the process-wide OpenTelemetry tracer
// and meter providers used by indexservice, the query stack and the binlog
// pipeline.
package observability

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config selects how traces and metrics leave the process.
type Config struct {
	ServiceName string
	// OTLPEndpoint, when set, ships traces and metrics via OTLP/HTTP instead
	// of the stdout exporters.
	OTLPEndpoint string
}

// Providers bundles the constructed tracer and meter providers plus a
// Shutdown hook flushing both on exit.
type Providers struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	shutdown       []func(context.Context) error
}

// Shutdown flushes and closes every configured exporter.
func (p *Providers) Shutdown(ctx context.Context) error {
	var firstErr error
	for _, fn := range p.shutdown {
		if err := fn(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Setup builds and installs the global tracer/meter providers, returning a
// Providers handle for later Shutdown.
func Setup(ctx context.Context, cfg Config) (*Providers, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	p := &Providers{}

	if cfg.OTLPEndpoint != "" {
		spanExp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint), otlptracehttp.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("observability: otlp trace exporter: %w", err)
		}
		metricExp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint), otlpmetrichttp.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("observability: otlp metric exporter: %w", err)
		}

		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(spanExp), sdktrace.WithResource(res))
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)), sdkmetric.WithResource(res))
		p.TracerProvider, p.MeterProvider = tp, mp
		p.shutdown = append(p.shutdown, tp.Shutdown, mp.Shutdown)
	} else {
		spanExp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("observability: stdout trace exporter: %w", err)
		}
		metricExp, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("observability: stdout metric exporter: %w", err)
		}

		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(spanExp), sdktrace.WithResource(res))
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)), sdkmetric.WithResource(res))
		p.TracerProvider, p.MeterProvider = tp, mp
		p.shutdown = append(p.shutdown, tp.Shutdown, mp.Shutdown)
	}

	otel.SetTracerProvider(p.TracerProvider)
	otel.SetMeterProvider(p.MeterProvider)
	log.Printf("observability: providers ready (otlp=%v)", cfg.OTLPEndpoint != "")
	return p, nil
}

// Tracer is a small convenience wrapper so callers don't have to import
// otel directly for the common case.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Meter is the metric counterpart of Tracer.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}
