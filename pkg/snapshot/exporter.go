package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/KevoDB/filestats/pkg/common/log"
	"github.com/KevoDB/filestats/pkg/filestats"
	"github.com/KevoDB/filestats/pkg/stats"
	"github.com/KevoDB/filestats/pkg/telemetry"
)

// Exporter archives the statistics of every tracked file of a registry.
type Exporter struct {
	registry *filestats.Registry
	store    *Store
	interval time.Duration
	logger   log.Logger
	tel      telemetry.Telemetry
	stats    stats.Collector
}

// ExporterOptions configures an Exporter. Zero values select defaults.
type ExporterOptions struct {
	Interval  time.Duration
	Logger    log.Logger
	Telemetry telemetry.Telemetry
	Stats     stats.Collector
}

// NewExporter creates an exporter writing registry exports into store.
func NewExporter(registry *filestats.Registry, store *Store, opts ExporterOptions) *Exporter {
	e := &Exporter{
		registry: registry,
		store:    store,
		interval: opts.Interval,
		logger:   opts.Logger,
		tel:      opts.Telemetry,
		stats:    opts.Stats,
	}
	if e.interval <= 0 {
		e.interval = time.Minute
	}
	if e.logger == nil {
		e.logger = log.GetDefaultLogger().WithField("component", "exporter")
	}
	if e.tel == nil {
		e.tel = telemetry.NewNoop()
	}
	if e.stats == nil {
		e.stats = stats.NewAtomicCollector()
	}
	return e
}

// Save archives the current statistics of name. ok is false when the file
// is not tracked.
func (e *Exporter) Save(ctx context.Context, name string) (path string, ok bool, err error) {
	start := time.Now()
	ctx, span := e.tel.StartSpan(ctx, "filestats.snapshot.save",
		attribute.String(telemetry.AttrFileName, name),
		attribute.String(telemetry.AttrCodec, e.store.codec.String()),
	)
	defer span.End()

	buf, ok, err := e.registry.ExportStatistics(name)
	if err != nil || !ok {
		e.record(ctx, start, err, ok)
		return "", ok, err
	}
	defer e.registry.ReleaseExport(buf)

	path, err = e.store.Write(name, buf)
	if err == nil {
		_, err = e.store.Prune(name)
	}
	e.record(ctx, start, err, true)
	if err != nil {
		span.RecordError(err)
		return "", true, err
	}

	telemetry.RecordBytes(ctx, e.tel, "filestats.snapshot.raw_bytes", int64(len(buf)),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSnapshot),
	)
	return path, true, nil
}

func (e *Exporter) record(ctx context.Context, start time.Time, err error, tracked bool) {
	status := telemetry.StatusSuccess
	switch {
	case err != nil:
		status = telemetry.StatusError
		e.stats.TrackError("snapshot_save")
	case !tracked:
		status = telemetry.StatusNotTracked
		e.stats.TrackMiss(stats.OpSave)
	default:
		e.stats.TrackOperationWithLatency(stats.OpSave, uint64(time.Since(start).Nanoseconds()))
	}

	e.tel.RecordCounter(ctx, "filestats.snapshot.save.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSnapshot),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeSave),
		attribute.String(telemetry.AttrStatus, status),
	)
	telemetry.RecordDuration(ctx, e.tel, "filestats.snapshot.save.duration", start,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSnapshot),
	)
}

// ExportAll saves every tracked file and returns how many were written.
// Files that fail are logged and skipped; the joined errors are returned.
func (e *Exporter) ExportAll(ctx context.Context) (int, error) {
	var (
		saved int
		errs  []error
	)
	for _, name := range e.registry.Names() {
		if err := ctx.Err(); err != nil {
			return saved, err
		}

		_, ok, err := e.Save(ctx, name)
		if err != nil {
			e.logger.Warn("Failed to save snapshot of %s: %v", name, err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if ok {
			saved++
		}
	}
	return saved, errors.Join(errs...)
}

// Run exports on every interval tick until ctx is cancelled, then performs
// a final export. It returns ctx.Err().
func (e *Exporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("Exporting statistics to %s every %s", e.store.Dir(), e.interval)

	for {
		select {
		case <-ticker.C:
			if n, err := e.ExportAll(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("Periodic export finished with errors (%d saved): %v", n, err)
			}
		case <-ctx.Done():
			if _, err := e.ExportAll(context.Background()); err != nil {
				e.logger.Error("Final export finished with errors: %v", err)
			}
			return ctx.Err()
		}
	}
}
