// ABOUTME: Configuration structures for telemetry setup including exporters, sampling, and validation
// ABOUTME: Supports environment variable overrides and provides defaults for all telemetry options

package telemetry

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Exporter names accepted in Config.Exporters
const (
	ExporterStdout     = "stdout"
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
)

// Config holds all configuration for telemetry providers and exporters.
type Config struct {
	ServiceName    string `json:"service_name" yaml:"service_name"`
	ServiceVersion string `json:"service_version" yaml:"service_version"`

	// Enabled controls whether telemetry is active
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Exporters lists the exporters to use (stdout, prometheus, otlp).
	// An empty list records into the providers without exporting.
	Exporters []string `json:"exporters" yaml:"exporters"`

	// SampleRate controls trace sampling (0.0 to 1.0)
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate"`

	// PrometheusAddr is the listen address of the /metrics endpoint
	PrometheusAddr string `json:"prometheus_addr" yaml:"prometheus_addr"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint (host:port)
	OTLPEndpoint string `json:"otlp_endpoint" yaml:"otlp_endpoint"`

	ExportTimeout      time.Duration `json:"export_timeout" yaml:"export_timeout"`
	BatchTimeout       time.Duration `json:"batch_timeout" yaml:"batch_timeout"`
	MaxQueueSize       int           `json:"max_queue_size" yaml:"max_queue_size"`
	MaxExportBatchSize int           `json:"max_export_batch_size" yaml:"max_export_batch_size"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:        "filestats",
		ServiceVersion:     "development",
		Enabled:            true,
		Exporters:          []string{ExporterStdout},
		SampleRate:         1.0,
		PrometheusAddr:     "localhost:9090",
		OTLPEndpoint:       "localhost:4317",
		ExportTimeout:      30 * time.Second,
		BatchTimeout:       5 * time.Second,
		MaxQueueSize:       2048,
		MaxExportBatchSize: 512,
	}
}

// LoadFromEnv loads configuration from environment variables, overriding current values.
func (c *Config) LoadFromEnv() {
	if val := os.Getenv("FILESTATS_TELEMETRY_SERVICE_NAME"); val != "" {
		c.ServiceName = val
	}

	if val := os.Getenv("FILESTATS_TELEMETRY_SERVICE_VERSION"); val != "" {
		c.ServiceVersion = val
	}

	if val := os.Getenv("FILESTATS_TELEMETRY_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Enabled = enabled
		}
	}

	if val, ok := os.LookupEnv("FILESTATS_TELEMETRY_EXPORTERS"); ok {
		c.Exporters = c.Exporters[:0]
		for _, name := range strings.Split(val, ",") {
			if name = strings.TrimSpace(name); name != "" {
				c.Exporters = append(c.Exporters, name)
			}
		}
	}

	if val := os.Getenv("FILESTATS_TELEMETRY_SAMPLE_RATE"); val != "" {
		if rate, err := strconv.ParseFloat(val, 64); err == nil {
			c.SampleRate = rate
		}
	}

	if val := os.Getenv("FILESTATS_TELEMETRY_PROMETHEUS_ADDR"); val != "" {
		c.PrometheusAddr = val
	}

	if val := os.Getenv("FILESTATS_TELEMETRY_OTLP_ENDPOINT"); val != "" {
		c.OTLPEndpoint = val
	}

	if val := os.Getenv("FILESTATS_TELEMETRY_EXPORT_TIMEOUT"); val != "" {
		if timeout, err := time.ParseDuration(val); err == nil {
			c.ExportTimeout = timeout
		}
	}

	if val := os.Getenv("FILESTATS_TELEMETRY_BATCH_TIMEOUT"); val != "" {
		if timeout, err := time.ParseDuration(val); err == nil {
			c.BatchTimeout = timeout
		}
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name cannot be empty")
	}

	if c.ServiceVersion == "" {
		return fmt.Errorf("service_version cannot be empty")
	}

	if c.SampleRate < 0.0 || c.SampleRate > 1.0 {
		return fmt.Errorf("sample_rate must be between 0.0 and 1.0, got %f", c.SampleRate)
	}

	if c.ExportTimeout <= 0 {
		return fmt.Errorf("export_timeout must be positive, got %s", c.ExportTimeout)
	}

	if c.BatchTimeout <= 0 {
		return fmt.Errorf("batch_timeout must be positive, got %s", c.BatchTimeout)
	}

	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("max_queue_size must be positive, got %d", c.MaxQueueSize)
	}

	if c.MaxExportBatchSize <= 0 || c.MaxExportBatchSize > c.MaxQueueSize {
		return fmt.Errorf("max_export_batch_size must be in (0, max_queue_size], got %d", c.MaxExportBatchSize)
	}

	for _, exporter := range c.Exporters {
		switch exporter {
		case ExporterStdout, ExporterOTLP:
		case ExporterPrometheus:
			if c.PrometheusAddr == "" {
				return fmt.Errorf("prometheus exporter requires prometheus_addr")
			}
		default:
			return fmt.Errorf("invalid exporter: %s, valid options are: stdout, prometheus, otlp", exporter)
		}
	}

	return nil
}

// HasExporter returns true if the specified exporter is configured.
func (c *Config) HasExporter(name string) bool {
	for _, exporter := range c.Exporters {
		if exporter == name {
			return true
		}
	}
	return false
}
