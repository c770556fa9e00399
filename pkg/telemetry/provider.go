// ABOUTME: OpenTelemetry provider implementation with metric and trace provider setup
// ABOUTME: Handles provider lifecycle, resource attributes, sampling, and instrument caching

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/KevoDB/filestats"

// TelemetryProvider implements the Telemetry interface using the OpenTelemetry SDK.
type TelemetryProvider struct {
	config         Config
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          metric.Meter
	tracer         oteltrace.Tracer

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram

	promServer *http.Server
}

// New creates a telemetry instance for cfg. Disabled telemetry yields a no-op.
func New(cfg Config) (Telemetry, error) {
	if !cfg.Enabled {
		return NewNoop(), nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	return newProvider(cfg)
}

// newProvider builds the SDK providers. Extra readers are attached in
// addition to the configured exporters.
func newProvider(cfg Config, extra ...sdkmetric.Reader) (*TelemetryProvider, error) {
	res := sdkresource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	mr, err := createMetricReaders(cfg)
	if err != nil {
		return nil, err
	}
	spanExporters, err := createTraceExporters(cfg)
	if err != nil {
		return nil, err
	}

	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range append(mr.readers, extra...) {
		meterOpts = append(meterOpts, sdkmetric.WithReader(r))
	}

	traceOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	}
	for _, exp := range spanExporters {
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exp,
			sdktrace.WithBatchTimeout(cfg.BatchTimeout),
			sdktrace.WithExportTimeout(cfg.ExportTimeout),
			sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
			sdktrace.WithMaxExportBatchSize(cfg.MaxExportBatchSize),
		))
	}

	p := &TelemetryProvider{
		config:         cfg,
		meterProvider:  sdkmetric.NewMeterProvider(meterOpts...),
		tracerProvider: sdktrace.NewTracerProvider(traceOpts...),
		counters:       make(map[string]metric.Int64Counter),
		histograms:     make(map[string]metric.Float64Histogram),
	}
	p.meter = p.meterProvider.Meter(instrumentationName)
	p.tracer = p.tracerProvider.Tracer(instrumentationName)

	if mr.promHandler != nil {
		if err := p.servePrometheus(mr.promHandler); err != nil {
			p.Shutdown(context.Background())
			return nil, err
		}
	}

	return p, nil
}

func (p *TelemetryProvider) servePrometheus(handler http.Handler) error {
	ln, err := net.Listen("tcp", p.config.PrometheusAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", p.config.PrometheusAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	p.promServer = &http.Server{Handler: mux}

	go func() {
		if err := p.promServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			otelErrorHandler(err)
		}
	}()
	return nil
}

// otelErrorHandler is where asynchronous exporter failures end up.
var otelErrorHandler = func(err error) {}

// RecordHistogram records value in the histogram called name.
func (p *TelemetryProvider) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	h, err := p.histogram(name)
	if err != nil {
		otelErrorHandler(err)
		return
	}
	h.Record(orBackground(ctx), value, metric.WithAttributes(attrs...))
}

// RecordCounter adds value to the counter called name.
func (p *TelemetryProvider) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
	c, err := p.counter(name)
	if err != nil {
		otelErrorHandler(err)
		return
	}
	c.Add(orBackground(ctx), value, metric.WithAttributes(attrs...))
}

// StartSpan starts a span from the provider's tracer.
func (p *TelemetryProvider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	return p.tracer.Start(orBackground(ctx), name, oteltrace.WithAttributes(attrs...))
}

// Shutdown flushes pending telemetry and stops the providers and the
// Prometheus endpoint. The first error encountered is returned.
func (p *TelemetryProvider) Shutdown(ctx context.Context) error {
	ctx = orBackground(ctx)
	var errs []error

	if p.promServer != nil {
		errs = append(errs, p.promServer.Shutdown(ctx))
	}
	errs = append(errs,
		p.tracerProvider.Shutdown(ctx),
		p.meterProvider.Shutdown(ctx),
	)

	return errors.Join(errs...)
}

func (p *TelemetryProvider) counter(name string) (metric.Int64Counter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.counters[name]; ok {
		return c, nil
	}
	c, err := p.meter.Int64Counter(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	p.counters[name] = c
	return c, nil
}

func (p *TelemetryProvider) histogram(name string) (metric.Float64Histogram, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.histograms[name]; ok {
		return h, nil
	}
	h, err := p.meter.Float64Histogram(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	p.histograms[name] = h
	return h, nil
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
