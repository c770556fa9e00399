package filestats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/KevoDB/filestats/pkg/telemetry"
)

func TestNoopFileStatsMetrics(t *testing.T) {
	m := NewFileStatsMetrics(nil)
	ctx := context.Background()

	m.RecordResize(ctx, "a.db", 16, 6, true)
	m.RecordExport(ctx, "a.db", 100, 0, nil)
	m.RecordEnable(ctx, "a.db", true, true)
	m.RecordLookup(ctx, false)
	require.NoError(t, m.Close())
	require.NoError(t, NewNoopFileStatsMetrics().Close())
}

func TestFileStatsMetricsRecorded(t *testing.T) {
	tel, reader, err := telemetry.NewInMemory()
	require.NoError(t, err)
	defer tel.Shutdown(context.Background())

	r := newTestRegistry(
		WithRegistryMetrics(NewFileStatsMetrics(tel)),
		WithCollectorOptions(WithRangeShift(6), WithMaxRangeCount(64)),
	)

	c := r.EnableCollector("a.db", true)
	c.Resize(1000)
	c.Resize(1000)
	r.EnableCollector("a.db", false)
	r.TracksFile("a.db")
	r.TracksFile("b.db")
	_, _, err = r.ExportStatistics("a.db")
	require.NoError(t, err)

	snap, err := telemetry.Collect(context.Background(), reader)
	require.NoError(t, err)

	require.Equal(t, int64(2), snap.Counter("filestats.resize.total"))
	require.Equal(t, int64(1), snap.Counter("filestats.resize.total", attribute.Bool("reallocated", false)))
	require.Equal(t, uint64(1), snap.HistogramCount("filestats.resize.block_count"))

	require.Equal(t, int64(1), snap.Counter("filestats.registry.enable.total", attribute.Bool("created", true)))
	require.Equal(t, int64(1), snap.Counter("filestats.registry.enable.total",
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeDisable)))

	require.Equal(t, int64(1), snap.Counter("filestats.registry.lookup.total",
		attribute.String(telemetry.AttrStatus, telemetry.StatusNotTracked)))

	require.Equal(t, int64(1), snap.Counter("filestats.export.total",
		attribute.String(telemetry.AttrStatus, telemetry.StatusSuccess)))
	require.Equal(t, int64(ExportSize(16)), snap.Counter("filestats.export.bytes"))
	require.Equal(t, uint64(1), snap.HistogramCount("filestats.export.duration"))
}
