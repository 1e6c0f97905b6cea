// Package telemetry wires the OpenTelemetry providers the bus records
// metrics against. Without an OTLP endpoint everything stays noop; with one,
// metrics and traces export over OTLP/HTTP and the returned shutdown
// flushes both.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	apimetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/coachpo/hookbus/config"
)

const (
	defaultService = "hookbus"
	exportInterval = 15 * time.Second
)

// Providers groups the provider handles Init registered globally.
type Providers struct {
	MeterProvider  apimetric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Shutdown flushes and stops whatever Init started.
type Shutdown func(context.Context) error

// Init installs the global OpenTelemetry providers from the configuration.
// An empty endpoint installs noop providers and a no-op shutdown.
func Init(ctx context.Context, cfg config.TelemetryConfig) (Providers, Shutdown, error) {
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	if endpoint == "" {
		return installNoop(), func(context.Context) error { return nil }, nil
	}

	host, insecure, err := endpointHost(endpoint)
	if err != nil {
		return Providers{}, nil, err
	}

	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = defaultService
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(service)))
	if err != nil {
		return Providers{}, nil, fmt.Errorf("create resource: %w", err)
	}

	mp, err := newMeterProvider(ctx, host, insecure, res)
	if err != nil {
		return Providers{}, nil, err
	}
	tp, err := newTracerProvider(ctx, host, insecure, res)
	if err != nil {
		return Providers{}, nil, errors.Join(err, mp.Shutdown(ctx))
	}

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	shutdown := func(ctx context.Context) error {
		return errors.Join(mp.Shutdown(ctx), tp.Shutdown(ctx))
	}
	return Providers{MeterProvider: mp, TracerProvider: tp}, shutdown, nil
}

func installNoop() Providers {
	p := Providers{
		MeterProvider:  noop.NewMeterProvider(),
		TracerProvider: nooptrace.NewTracerProvider(),
	}
	otel.SetMeterProvider(p.MeterProvider)
	otel.SetTracerProvider(p.TracerProvider)
	return p
}

func newMeterProvider(ctx context.Context, host string, insecure bool, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(host)}
	if insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exp, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(exportInterval))
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res)), nil
}

func newTracerProvider(ctx context.Context, host string, insecure bool, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(host)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res)), nil
}

// endpointHost extracts the host:port an exporter should dial. Anything but
// an https scheme is treated as plaintext.
func endpointHost(raw string) (string, bool, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse otlp endpoint: %w", err)
	}
	host := parsed.Host
	if host == "" {
		host = raw
	}
	return host, parsed.Scheme != "https", nil
}
