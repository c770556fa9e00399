// ABOUTME: OpenTelemetry exporter factory creating metric readers and trace exporters (Prometheus, OTLP, stdout)
// ABOUTME: The Prometheus reader is paired with an HTTP handler serving its private registry

package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// metricReaders bundles the readers built from a Config together with the
// handler that serves Prometheus scrapes, if one was configured.
type metricReaders struct {
	readers     []sdkmetric.Reader
	promHandler http.Handler
}

// createMetricReaders creates metric readers based on configuration.
func createMetricReaders(cfg Config) (*metricReaders, error) {
	out := &metricReaders{}

	for _, exporterName := range cfg.Exporters {
		switch exporterName {
		case ExporterPrometheus:
			registry := prometheus.NewRegistry()
			exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
			if err != nil {
				return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
			}
			out.readers = append(out.readers, exporter)
			out.promHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

		case ExporterStdout:
			exporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
			if err != nil {
				return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
			}
			out.readers = append(out.readers, sdkmetric.NewPeriodicReader(exporter,
				sdkmetric.WithInterval(cfg.BatchTimeout),
				sdkmetric.WithTimeout(cfg.ExportTimeout),
			))

		default:
			// otlp carries traces only in this setup
			continue
		}
	}

	return out, nil
}

// createTraceExporters creates trace exporters based on configuration.
func createTraceExporters(cfg Config) ([]sdktrace.SpanExporter, error) {
	var exporters []sdktrace.SpanExporter

	for _, exporterName := range cfg.Exporters {
		switch exporterName {
		case ExporterOTLP:
			exporter, err := otlptracegrpc.New(
				context.Background(),
				otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithTimeout(cfg.ExportTimeout),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
			}
			exporters = append(exporters, exporter)

		case ExporterStdout:
			exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
			if err != nil {
				return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
			}
			exporters = append(exporters, exporter)

		default:
			// prometheus does not carry traces
			continue
		}
	}

	return exporters, nil
}
