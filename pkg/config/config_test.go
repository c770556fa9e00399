package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KevoDB/filestats/pkg/filestats"
)

func TestNewDefaultConfig(t *testing.T) {
	dataDir := "/tmp/fstat"
	cfg := NewDefaultConfig(dataDir)

	if cfg.Version != CurrentConfigVersion {
		t.Errorf("expected version %d, got %d", CurrentConfigVersion, cfg.Version)
	}

	if cfg.SnapshotDir != filepath.Join(dataDir, "snapshots") {
		t.Errorf("expected snapshot dir %s, got %s", filepath.Join(dataDir, "snapshots"), cfg.SnapshotDir)
	}

	if cfg.MinRangeShift != filestats.DefaultMinRangeShift {
		t.Errorf("expected min range shift %d, got %d", filestats.DefaultMinRangeShift, cfg.MinRangeShift)
	}

	if cfg.MaxRangeCount != filestats.DefaultMaxRangeCount {
		t.Errorf("expected max range count %d, got %d", filestats.DefaultMaxRangeCount, cfg.MaxRangeCount)
	}

	if cfg.SnapshotCodec != "zstd" {
		t.Errorf("expected zstd snapshots, got %q", cfg.SnapshotCodec)
	}

	if cfg.SnapshotInterval != 0 {
		t.Errorf("expected periodic snapshots to be off, got %s", cfg.SnapshotInterval)
	}

	if cfg.Telemetry.Enabled {
		t.Error("expected telemetry to be disabled by default")
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
		{"defaults", func(c *Config) {}, false},
		{"zero version", func(c *Config) { c.Version = 0 }, true},
		{"shift too large", func(c *Config) { c.MinRangeShift = 49 }, true},
		{"largest shift", func(c *Config) { c.MinRangeShift = 48 }, false},
		{"single range", func(c *Config) { c.MaxRangeCount = 1 }, true},
		{"two ranges", func(c *Config) { c.MaxRangeCount = 2 }, false},
		{"export limit below header", func(c *Config) { c.ExportBufferLimit = filestats.ExportHeaderSize - 1 }, true},
		{"unknown codec", func(c *Config) { c.SnapshotCodec = "lz4" }, true},
		{"no codec", func(c *Config) { c.SnapshotCodec = "" }, false},
		{"negative interval", func(c *Config) { c.SnapshotInterval = -time.Second }, true},
		{"interval without dir", func(c *Config) {
			c.SnapshotInterval = time.Minute
			c.SnapshotDir = ""
		}, true},
		{"negative retain", func(c *Config) { c.SnapshotRetain = -1 }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"broken telemetry when enabled", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.SampleRate = 2
		}, true},
		{"broken telemetry when disabled", func(c *Config) { c.Telemetry.SampleRate = 2 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig(t.TempDir())
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadConfigJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fstat.json")
	data := `{"version": 1, "min_range_shift": 12, "max_range_count": 256, "snapshot_codec": "snappy"}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.MinRangeShift != 12 || cfg.MaxRangeCount != 256 {
		t.Errorf("expected geometry 12/256, got %d/%d", cfg.MinRangeShift, cfg.MaxRangeCount)
	}
	if cfg.SnapshotCodec != "snappy" {
		t.Errorf("expected snappy, got %q", cfg.SnapshotCodec)
	}
	// unset fields keep their defaults
	if cfg.SnapshotDir != filepath.Join(dir, "snapshots") {
		t.Errorf("expected default snapshot dir, got %s", cfg.SnapshotDir)
	}
	if cfg.ExportBufferLimit != filestats.DefaultExportBufferLimit {
		t.Errorf("expected default export limit, got %d", cfg.ExportBufferLimit)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fstat.yml")
	data := "version: 1\nmax_range_count: 64\nsnapshot_interval: 30s\nsnapshot_retain: 3\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.MaxRangeCount != 64 {
		t.Errorf("expected max range count 64, got %d", cfg.MaxRangeCount)
	}
	if cfg.SnapshotInterval != 30*time.Second {
		t.Errorf("expected 30s interval, got %s", cfg.SnapshotInterval)
	}
	if cfg.SnapshotRetain != 3 {
		t.Errorf("expected retain 3, got %d", cfg.SnapshotRetain)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected debug, got %s", cfg.LogLevel)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadConfig(filepath.Join(dir, "missing.json")); !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("expected ErrConfigNotFound, got %v", err)
	}

	garbled := filepath.Join(dir, "garbled.json")
	if err := os.WriteFile(garbled, []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadConfig(garbled); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("max_range_count: 1\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadConfig(invalid); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FILESTATS_MIN_RANGE_SHIFT", "16")
	t.Setenv("FILESTATS_MAX_RANGE_COUNT", "4096")
	t.Setenv("FILESTATS_SNAPSHOT_DIR", "/var/lib/fstat")
	t.Setenv("FILESTATS_SNAPSHOT_CODEC", "none")
	t.Setenv("FILESTATS_SNAPSHOT_INTERVAL", "5m")
	t.Setenv("FILESTATS_LISTEN_ADDR", ":7000")
	t.Setenv("FILESTATS_LOG_LEVEL", "warn")
	t.Setenv("FILESTATS_TELEMETRY_SERVICE_NAME", "fstat-test")

	cfg := NewDefaultConfig(t.TempDir())
	cfg.LoadFromEnv()

	if cfg.MinRangeShift != 16 {
		t.Errorf("expected shift 16, got %d", cfg.MinRangeShift)
	}
	if cfg.MaxRangeCount != 4096 {
		t.Errorf("expected count 4096, got %d", cfg.MaxRangeCount)
	}
	if cfg.SnapshotDir != "/var/lib/fstat" {
		t.Errorf("expected snapshot dir override, got %s", cfg.SnapshotDir)
	}
	if cfg.SnapshotCodec != "none" {
		t.Errorf("expected codec none, got %s", cfg.SnapshotCodec)
	}
	if cfg.SnapshotInterval != 5*time.Minute {
		t.Errorf("expected 5m interval, got %s", cfg.SnapshotInterval)
	}
	if cfg.ListenAddr != ":7000" {
		t.Errorf("expected listen addr :7000, got %s", cfg.ListenAddr)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("expected warn, got %s", cfg.LogLevel)
	}
	if cfg.Telemetry.ServiceName != "fstat-test" {
		t.Errorf("expected telemetry service name override, got %s", cfg.Telemetry.ServiceName)
	}
}

func TestLoadFromEnvInvalidValues(t *testing.T) {
	t.Setenv("FILESTATS_MIN_RANGE_SHIFT", "wide")
	t.Setenv("FILESTATS_SNAPSHOT_INTERVAL", "often")

	cfg := NewDefaultConfig(t.TempDir())
	cfg.LoadFromEnv()

	if cfg.MinRangeShift != filestats.DefaultMinRangeShift {
		t.Error("invalid shift should not change the value")
	}
	if cfg.SnapshotInterval != 0 {
		t.Error("invalid duration should not change the value")
	}
}

func TestSaveAndLoad(t *testing.T) {
	for _, name := range []string{"fstat.json", "fstat.yaml"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "conf", name)

			cfg := NewDefaultConfig(dir)
			cfg.MaxRangeCount = 512
			cfg.SnapshotInterval = 10 * time.Second
			cfg.SnapshotCodec = "snappy"

			if err := cfg.Save(path); err != nil {
				t.Fatalf("failed to save config: %v", err)
			}
			if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
				t.Error("temporary file left behind")
			}

			loaded, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("failed to load config: %v", err)
			}
			if loaded.MaxRangeCount != 512 {
				t.Errorf("expected max range count 512, got %d", loaded.MaxRangeCount)
			}
			if loaded.SnapshotInterval != 10*time.Second {
				t.Errorf("expected 10s interval, got %s", loaded.SnapshotInterval)
			}
			if loaded.SnapshotCodec != "snappy" {
				t.Errorf("expected snappy, got %s", loaded.SnapshotCodec)
			}
		})
	}
}

func TestSaveInvalid(t *testing.T) {
	cfg := NewDefaultConfig(t.TempDir())
	cfg.MaxRangeCount = 0

	path := filepath.Join(t.TempDir(), "fstat.json")
	if err := cfg.Save(path); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("invalid config should not be written")
	}
}

func TestUpdate(t *testing.T) {
	cfg := NewDefaultConfig(t.TempDir())
	cfg.Update(func(c *Config) {
		c.MaxRangeCount = 32
		c.ListenAddr = "127.0.0.1:9000"
	})

	if cfg.MaxRangeCount != 32 {
		t.Errorf("expected max range count 32, got %d", cfg.MaxRangeCount)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("expected listen addr override, got %s", cfg.ListenAddr)
	}
}
