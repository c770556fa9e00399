// ABOUTME: Tests for telemetry configuration validation, environment variable loading, and default values
// ABOUTME: Ensures configuration behaves correctly with valid and invalid inputs

package telemetry

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ServiceName != "filestats" {
		t.Errorf("Expected default service name 'filestats', got '%s'", cfg.ServiceName)
	}

	if !cfg.Enabled {
		t.Error("Expected telemetry to be enabled by default")
	}

	if len(cfg.Exporters) != 1 || cfg.Exporters[0] != ExporterStdout {
		t.Errorf("Expected default exporters ['stdout'], got %v", cfg.Exporters)
	}

	if cfg.SampleRate != 1.0 {
		t.Errorf("Expected default sample rate 1.0, got %f", cfg.SampleRate)
	}

	if cfg.ExportTimeout != 30*time.Second {
		t.Errorf("Expected default export timeout 30s, got %s", cfg.ExportTimeout)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid default config", func(c *Config) {}, false},
		{"no exporters", func(c *Config) { c.Exporters = nil }, false},
		{"empty service name", func(c *Config) { c.ServiceName = "" }, true},
		{"empty service version", func(c *Config) { c.ServiceVersion = "" }, true},
		{"sample rate negative", func(c *Config) { c.SampleRate = -0.1 }, true},
		{"sample rate too high", func(c *Config) { c.SampleRate = 1.1 }, true},
		{"invalid exporter", func(c *Config) { c.Exporters = []string{"jaeger"} }, true},
		{"prometheus without address", func(c *Config) {
			c.Exporters = []string{ExporterPrometheus}
			c.PrometheusAddr = ""
		}, true},
		{"zero export timeout", func(c *Config) { c.ExportTimeout = 0 }, true},
		{"zero batch timeout", func(c *Config) { c.BatchTimeout = 0 }, true},
		{"batch larger than queue", func(c *Config) { c.MaxExportBatchSize = c.MaxQueueSize + 1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigLoadFromEnv(t *testing.T) {
	t.Setenv("FILESTATS_TELEMETRY_SERVICE_NAME", "test-service")
	t.Setenv("FILESTATS_TELEMETRY_SERVICE_VERSION", "2.0.0")
	t.Setenv("FILESTATS_TELEMETRY_ENABLED", "false")
	t.Setenv("FILESTATS_TELEMETRY_EXPORTERS", "prometheus, otlp")
	t.Setenv("FILESTATS_TELEMETRY_SAMPLE_RATE", "0.5")
	t.Setenv("FILESTATS_TELEMETRY_PROMETHEUS_ADDR", ":9464")
	t.Setenv("FILESTATS_TELEMETRY_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("FILESTATS_TELEMETRY_EXPORT_TIMEOUT", "60s")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	if cfg.ServiceName != "test-service" {
		t.Errorf("Expected service name 'test-service', got '%s'", cfg.ServiceName)
	}
	if cfg.ServiceVersion != "2.0.0" {
		t.Errorf("Expected service version '2.0.0', got '%s'", cfg.ServiceVersion)
	}
	if cfg.Enabled {
		t.Error("Expected telemetry to be disabled")
	}
	if len(cfg.Exporters) != 2 || cfg.Exporters[0] != "prometheus" || cfg.Exporters[1] != "otlp" {
		t.Errorf("Expected exporters [prometheus otlp], got %v", cfg.Exporters)
	}
	if cfg.SampleRate != 0.5 {
		t.Errorf("Expected sample rate 0.5, got %f", cfg.SampleRate)
	}
	if cfg.PrometheusAddr != ":9464" {
		t.Errorf("Expected prometheus addr ':9464', got '%s'", cfg.PrometheusAddr)
	}
	if cfg.OTLPEndpoint != "collector:4317" {
		t.Errorf("Expected OTLP endpoint 'collector:4317', got '%s'", cfg.OTLPEndpoint)
	}
	if cfg.ExportTimeout != 60*time.Second {
		t.Errorf("Expected export timeout 60s, got %s", cfg.ExportTimeout)
	}
}

func TestConfigLoadFromEnvEmptyExporters(t *testing.T) {
	t.Setenv("FILESTATS_TELEMETRY_EXPORTERS", "")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()
	if len(cfg.Exporters) != 0 {
		t.Errorf("Expected no exporters, got %v", cfg.Exporters)
	}
}

func TestConfigLoadFromEnvInvalidValues(t *testing.T) {
	t.Setenv("FILESTATS_TELEMETRY_ENABLED", "invalid")
	t.Setenv("FILESTATS_TELEMETRY_SAMPLE_RATE", "invalid")
	t.Setenv("FILESTATS_TELEMETRY_BATCH_TIMEOUT", "soon")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	def := DefaultConfig()
	if cfg.Enabled != def.Enabled {
		t.Error("Invalid boolean should not change the value")
	}
	if cfg.SampleRate != def.SampleRate {
		t.Error("Invalid sample rate should not change the value")
	}
	if cfg.BatchTimeout != def.BatchTimeout {
		t.Error("Invalid duration should not change the value")
	}
}

func TestConfigHasExporter(t *testing.T) {
	cfg := Config{
		Exporters: []string{"prometheus", "stdout"},
	}

	if !cfg.HasExporter("prometheus") {
		t.Error("Expected HasExporter('prometheus') to return true")
	}
	if !cfg.HasExporter("stdout") {
		t.Error("Expected HasExporter('stdout') to return true")
	}
	if cfg.HasExporter("otlp") {
		t.Error("Expected HasExporter('otlp') to return false")
	}
}
