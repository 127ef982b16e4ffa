// Package telemetry wires OpenTelemetry tracing and metrics for migration runs.
//
// Nothing is exported unless telemetry is enabled in the config
// (telemetry.enabled or J2G_TELEMETRY_ENABLED). When enabled, spans are
// pretty printed to the given writer and metrics go to an OTLP/HTTP
// collector when an endpoint is known, otherwise to the writer as well.
//
//	telemetry:
//	  enabled: true
//	  stdout: true             # also print metrics when an endpoint is set
//	  endpoint: localhost:4318 # or OTEL_EXPORTER_OTLP_METRICS_ENDPOINT
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
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

const instrumentationScope = "github.com/jira2gitlab/j2g"

// Options selects the exporters Init installs.
type Options struct {
	Enabled bool
	// Stdout prints metrics to Writer even when an OTLP endpoint is set.
	Stdout   bool
	Endpoint string
	// Writer receives stdout exporter output; os.Stderr when nil.
	Writer io.Writer

	ServiceName string
	Version     string
}

// endpoint returns the configured collector, falling back to the OTEL env vars.
func (o Options) endpoint() string {
	return firstNonEmpty(
		o.Endpoint,
		os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"),
		os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	)
}

// Providers owns the installed SDK providers.
type Providers struct {
	shutdown []func(context.Context) error
}

// Shutdown flushes pending spans and metrics. It is safe on a nil or
// disabled Providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, fn := range p.shutdown {
		errs = append(errs, fn(ctx))
	}
	p.shutdown = nil
	return errors.Join(errs...)
}

// Init installs global providers. A disabled config installs no-op
// providers, so instruments created afterwards cost nothing.
func Init(ctx context.Context, opts Options) (*Providers, error) {
	if !opts.Enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return &Providers{}, nil
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(opts.ServiceName),
			semconv.ServiceVersionKey.String(opts.Version),
		),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp),
	)

	readers, err := metricReaders(ctx, w, opts)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		mpOpts = append(mpOpts, sdkmetric.WithReader(r))
	}
	mp := sdkmetric.NewMeterProvider(mpOpts...)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	return &Providers{shutdown: []func(context.Context) error{tp.Shutdown, mp.Shutdown}}, nil
}

func metricReaders(ctx context.Context, w io.Writer, opts Options) ([]sdkmetric.Reader, error) {
	var readers []sdkmetric.Reader
	endpoint := opts.endpoint()
	if endpoint != "" {
		exp, err := newOTLPMetricExporter(ctx, endpoint)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(30*time.Second)))
	}
	if opts.Stdout || endpoint == "" {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("stdout metric exporter: %w", err)
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second)))
	}
	return readers, nil
}

// Tracer returns a tracer from the global provider.
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter returns a meter from the global provider.
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
