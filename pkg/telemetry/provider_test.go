// ABOUTME: Tests for telemetry provider creation and configuration handling
// ABOUTME: Validates provider initialization, instrument caching, and no-op fallback behavior

package telemetry

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestNew(t *testing.T) {
	quiet := DefaultConfig()
	quiet.Exporters = nil

	tests := []struct {
		name        string
		cfg         Config
		expectNoop  bool
		expectError bool
	}{
		{
			name:       "disabled telemetry returns noop",
			cfg:        Config{Enabled: false},
			expectNoop: true,
		},
		{
			name: "invalid config returns error",
			cfg: Config{
				Enabled:     true,
				ServiceName: "",
			},
			expectError: true,
		},
		{
			name: "valid config returns provider",
			cfg:  quiet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tel, err := New(tt.cfg)

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			_, isNoop := tel.(*NoopTelemetry)
			if isNoop != tt.expectNoop {
				t.Errorf("noop = %v, want %v", isNoop, tt.expectNoop)
			}

			tel.RecordHistogram(context.Background(), "test", 1.0)
			tel.RecordCounter(context.Background(), "test", 1)
			if err := tel.Shutdown(context.Background()); err != nil {
				t.Errorf("Shutdown failed: %v", err)
			}
		})
	}
}

func TestNewWithInvalidConfigs(t *testing.T) {
	invalidConfigs := []Config{
		{Enabled: true, ServiceName: ""},
		{Enabled: true, ServiceName: "test", ServiceVersion: ""},
		{Enabled: true, ServiceName: "test", ServiceVersion: "1.0.0", SampleRate: -0.1},
		{Enabled: true, ServiceName: "test", ServiceVersion: "1.0.0", SampleRate: 1.1},
	}

	for i, cfg := range invalidConfigs {
		t.Run(fmt.Sprintf("invalid_config_%d", i), func(t *testing.T) {
			tel, err := New(cfg)
			if err == nil {
				t.Error("Expected error for invalid config but got none")
			}
			if tel != nil {
				t.Error("Expected nil telemetry for invalid config but got instance")
			}
		})
	}
}

func TestProviderRecordsWithAttributes(t *testing.T) {
	tel, reader, err := NewInMemory()
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	defer tel.Shutdown(context.Background())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		tel.RecordCounter(ctx, "filestats.export.total", 1,
			attribute.String(AttrStatus, StatusSuccess))
	}
	tel.RecordCounter(ctx, "filestats.export.total", 1,
		attribute.String(AttrStatus, StatusNotTracked))

	snap, err := Collect(ctx, reader)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := snap.Counter("filestats.export.total"); got != 4 {
		t.Errorf("total = %d, want 4", got)
	}
	if got := snap.Counter("filestats.export.total", attribute.String(AttrStatus, StatusSuccess)); got != 3 {
		t.Errorf("success = %d, want 3", got)
	}
	if len(tel.counters) != 1 {
		t.Errorf("cached counters = %d, want 1", len(tel.counters))
	}
}

func TestProviderStartSpan(t *testing.T) {
	tel, _, err := NewInMemory()
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	defer tel.Shutdown(context.Background())

	ctx, span := tel.StartSpan(context.Background(), "registry.export",
		attribute.String(AttrFileName, "a.parquet"))
	defer span.End()

	if !span.SpanContext().IsValid() {
		t.Error("expected a recording span with a valid span context")
	}
	if ctx == context.Background() {
		t.Error("expected a derived context")
	}
}

func TestProviderPrometheusEndpoint(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot reserve a port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := DefaultConfig()
	cfg.Exporters = []string{ExporterPrometheus}
	cfg.PrometheusAddr = addr

	tel, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tel.Shutdown(context.Background())

	tel.RecordCounter(context.Background(), "filestats.resize.total", 2)

	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "filestats_resize_total") {
		t.Errorf("scrape output missing counter:\n%s", body)
	}
}
