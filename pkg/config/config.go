package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/KevoDB/filestats/pkg/common/log"
	"github.com/KevoDB/filestats/pkg/filestats"
	"github.com/KevoDB/filestats/pkg/snapshot"
	"github.com/KevoDB/filestats/pkg/telemetry"
)

const (
	CurrentConfigVersion = 1

	// maxRangeShift keeps block sizes representable in a uint64 offset space
	maxRangeShift = 48
)

var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrConfigNotFound = errors.New("config file not found")
)

// Config is the service configuration for the statistics registry, the
// snapshot archive and the gRPC endpoint.
type Config struct {
	Version int `json:"version" yaml:"version"`

	// Collector geometry
	MinRangeShift     uint   `json:"min_range_shift" yaml:"min_range_shift"`
	MaxRangeCount     uint64 `json:"max_range_count" yaml:"max_range_count"`
	ExportBufferLimit int    `json:"export_buffer_limit" yaml:"export_buffer_limit"`

	// Snapshot archive
	SnapshotDir      string        `json:"snapshot_dir" yaml:"snapshot_dir"`
	SnapshotCodec    string        `json:"snapshot_codec" yaml:"snapshot_codec"`
	SnapshotInterval time.Duration `json:"snapshot_interval" yaml:"snapshot_interval"`
	SnapshotRetain   int           `json:"snapshot_retain" yaml:"snapshot_retain"`

	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
	LogLevel   string `json:"log_level" yaml:"log_level"`

	Telemetry telemetry.Config `json:"telemetry" yaml:"telemetry"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config with recommended default values.
// Snapshots are stored below dataDir.
func NewDefaultConfig(dataDir string) *Config {
	tel := telemetry.DefaultConfig()
	tel.Enabled = false

	return &Config{
		Version: CurrentConfigVersion,

		MinRangeShift:     filestats.DefaultMinRangeShift,
		MaxRangeCount:     filestats.DefaultMaxRangeCount,
		ExportBufferLimit: filestats.DefaultExportBufferLimit,

		SnapshotDir:      filepath.Join(dataDir, "snapshots"),
		SnapshotCodec:    snapshot.CodecZstd.String(),
		SnapshotInterval: 0, // periodic export disabled
		SnapshotRetain:   8,

		ListenAddr: "localhost:50061",
		LogLevel:   "info",

		Telemetry: tel,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}

	if c.MinRangeShift > maxRangeShift {
		return fmt.Errorf("%w: min_range_shift must be at most %d, got %d", ErrInvalidConfig, maxRangeShift, c.MinRangeShift)
	}

	if c.MaxRangeCount < 2 {
		return fmt.Errorf("%w: max_range_count must be at least 2, got %d", ErrInvalidConfig, c.MaxRangeCount)
	}

	if c.ExportBufferLimit < filestats.ExportHeaderSize {
		return fmt.Errorf("%w: export_buffer_limit must be at least %d bytes", ErrInvalidConfig, filestats.ExportHeaderSize)
	}

	if _, err := snapshot.ParseCodec(c.SnapshotCodec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.SnapshotInterval < 0 {
		return fmt.Errorf("%w: snapshot_interval cannot be negative", ErrInvalidConfig)
	}

	if c.SnapshotInterval > 0 && c.SnapshotDir == "" {
		return fmt.Errorf("%w: periodic snapshots require snapshot_dir", ErrInvalidConfig)
	}

	if c.SnapshotRetain < 0 {
		return fmt.Errorf("%w: snapshot_retain cannot be negative", ErrInvalidConfig)
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Telemetry.Enabled {
		if err := c.Telemetry.Validate(); err != nil {
			return fmt.Errorf("%w: telemetry: %v", ErrInvalidConfig, err)
		}
	}

	return nil
}

// LoadConfig reads a JSON or YAML (by extension) config file on top of the
// defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := NewDefaultConfig(filepath.Dir(path))
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv applies FILESTATS_* environment overrides.
func (c *Config) LoadFromEnv() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if val := os.Getenv("FILESTATS_MIN_RANGE_SHIFT"); val != "" {
		if v, err := strconv.ParseUint(val, 10, 8); err == nil {
			c.MinRangeShift = uint(v)
		}
	}

	if val := os.Getenv("FILESTATS_MAX_RANGE_COUNT"); val != "" {
		if v, err := strconv.ParseUint(val, 10, 64); err == nil {
			c.MaxRangeCount = v
		}
	}

	if val := os.Getenv("FILESTATS_SNAPSHOT_DIR"); val != "" {
		c.SnapshotDir = val
	}

	if val := os.Getenv("FILESTATS_SNAPSHOT_CODEC"); val != "" {
		c.SnapshotCodec = val
	}

	if val := os.Getenv("FILESTATS_SNAPSHOT_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.SnapshotInterval = d
		}
	}

	if val := os.Getenv("FILESTATS_LISTEN_ADDR"); val != "" {
		c.ListenAddr = val
	}

	if val := os.Getenv("FILESTATS_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}

	c.Telemetry.LoadFromEnv()
}

// Save writes the configuration to path atomically, as YAML or JSON by extension.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename config: %w", err)
	}

	return nil
}

// Update applies the given function to modify the configuration
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
