// ABOUTME: Collector and registry telemetry interface with OpenTelemetry-backed and no-op implementations
// ABOUTME: Records geometry changes, export sizes and latency, enable/disable calls and lookups

package filestats

import (
	"context"
	"time"

	"github.com/KevoDB/filestats/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// FileStatsMetrics defines the telemetry operations of collectors and the registry.
// All metrics are optional - implementations can safely be no-op.
type FileStatsMetrics interface {
	telemetry.ComponentMetrics

	// RecordResize records a geometry recomputation. reallocated is false
	// when the block count and shift were unchanged.
	RecordResize(ctx context.Context, file string, blockCount uint64, blockShift uint, reallocated bool)

	// RecordExport records one export attempt.
	RecordExport(ctx context.Context, file string, bytes int, duration time.Duration, err error)

	// RecordEnable records an enable or disable request.
	RecordEnable(ctx context.Context, file string, enable bool, created bool)

	// RecordLookup records a registry lookup.
	RecordLookup(ctx context.Context, found bool)
}

type fileStatsMetrics struct {
	tel telemetry.Telemetry
}

// NewFileStatsMetrics creates a metrics implementation on top of tel.
// If tel is nil, returns a no-op implementation.
func NewFileStatsMetrics(tel telemetry.Telemetry) FileStatsMetrics {
	if tel == nil {
		return &noopFileStatsMetrics{}
	}
	return &fileStatsMetrics{tel: tel}
}

// NewNoopFileStatsMetrics creates a no-op implementation for testing.
func NewNoopFileStatsMetrics() FileStatsMetrics {
	return &noopFileStatsMetrics{}
}

func (m *fileStatsMetrics) RecordResize(ctx context.Context, file string, blockCount uint64, blockShift uint, reallocated bool) {
	m.tel.RecordCounter(ctx, "filestats.resize.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentCollector),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeResize),
		attribute.Bool("reallocated", reallocated),
	)

	if reallocated {
		m.tel.RecordHistogram(ctx, "filestats.resize.block_count", float64(blockCount),
			attribute.String(telemetry.AttrComponent, telemetry.ComponentCollector),
			attribute.String(telemetry.AttrFileName, file),
			attribute.Int("block_shift", int(blockShift)),
		)
	}
}

func (m *fileStatsMetrics) RecordExport(ctx context.Context, file string, bytes int, duration time.Duration, err error) {
	status := telemetry.StatusSuccess
	if err != nil {
		status = telemetry.StatusError
	}

	m.tel.RecordHistogram(ctx, "filestats.export.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentCollector),
		attribute.String(telemetry.AttrStatus, status),
	)

	m.tel.RecordCounter(ctx, "filestats.export.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentCollector),
		attribute.String(telemetry.AttrFileName, file),
		attribute.String(telemetry.AttrStatus, status),
	)

	if err == nil {
		telemetry.RecordBytes(ctx, m.tel, "filestats.export.bytes", int64(bytes),
			attribute.String(telemetry.AttrComponent, telemetry.ComponentCollector),
		)
	}
}

func (m *fileStatsMetrics) RecordEnable(ctx context.Context, file string, enable bool, created bool) {
	op := telemetry.OpTypeEnable
	if !enable {
		op = telemetry.OpTypeDisable
	}

	m.tel.RecordCounter(ctx, "filestats.registry.enable.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentRegistry),
		attribute.String(telemetry.AttrOperationType, op),
		attribute.String(telemetry.AttrFileName, file),
		attribute.Bool("created", created),
	)
}

func (m *fileStatsMetrics) RecordLookup(ctx context.Context, found bool) {
	status := telemetry.StatusSuccess
	if !found {
		status = telemetry.StatusNotTracked
	}

	m.tel.RecordCounter(ctx, "filestats.registry.lookup.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentRegistry),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeLookup),
		attribute.String(telemetry.AttrStatus, status),
	)
}

func (m *fileStatsMetrics) Close() error {
	return nil
}

// noopFileStatsMetrics is used when telemetry is disabled.
type noopFileStatsMetrics struct{}

func (n *noopFileStatsMetrics) RecordResize(ctx context.Context, file string, blockCount uint64, blockShift uint, reallocated bool) {
}

func (n *noopFileStatsMetrics) RecordExport(ctx context.Context, file string, bytes int, duration time.Duration, err error) {
}

func (n *noopFileStatsMetrics) RecordEnable(ctx context.Context, file string, enable bool, created bool) {
}

func (n *noopFileStatsMetrics) RecordLookup(ctx context.Context, found bool) {}

func (n *noopFileStatsMetrics) Close() error {
	return nil
}
