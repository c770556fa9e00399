package filestats

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/KevoDB/filestats/pkg/common/log"
	"github.com/KevoDB/filestats/pkg/stats"
)

// Registry maps file names to collectors. Every operation runs under a
// single mutex; exports are produced while holding it.
type Registry struct {
	mu         sync.Mutex
	collectors map[string]*Collector

	collectorOpts []CollectorOption
	alloc         Allocator
	metrics       FileStatsMetrics
	stats         stats.Collector
	logger        log.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger log.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithStatsCollector sets where operation counts are tracked.
func WithStatsCollector(sc stats.Collector) RegistryOption {
	return func(r *Registry) {
		r.stats = sc
	}
}

// WithRegistryMetrics sets the telemetry sink shared by the registry and its collectors.
func WithRegistryMetrics(m FileStatsMetrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithSharedAllocator sets the export allocator shared by all collectors.
func WithSharedAllocator(alloc Allocator) RegistryOption {
	return func(r *Registry) {
		r.alloc = alloc
	}
}

// WithCollectorOptions sets options applied to every collector the registry creates.
func WithCollectorOptions(opts ...CollectorOption) RegistryOption {
	return func(r *Registry) {
		r.collectorOpts = append(r.collectorOpts, opts...)
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		collectors: make(map[string]*Collector),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.alloc == nil {
		r.alloc = NewBufferPool(DefaultExportBufferLimit)
	}
	if r.metrics == nil {
		r.metrics = NewNoopFileStatsMetrics()
	}
	if r.stats == nil {
		r.stats = stats.NewAtomicCollector()
	}
	if r.logger == nil {
		r.logger = log.GetDefaultLogger().WithField("component", "registry")
	}
	return r
}

// TracksFile reports whether a collector exists for name.
func (r *Registry) TracksFile(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.collectors[name]
	r.trackLookup(stats.OpTracks, ok)
	return ok
}

// FindCollector returns the collector for name without creating one.
func (r *Registry) FindCollector(name string) (*Collector, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.collectors[name]
	r.trackLookup(stats.OpFind, ok)
	return c, ok
}

// EnableCollector activates or deactivates the collector for name. A
// missing collector is created (empty and active) only when enable is
// true; disabling an untracked file returns nil.
func (r *Registry) EnableCollector(name string, enable bool) *Collector {
	r.mu.Lock()
	defer r.mu.Unlock()

	op := stats.OpEnable
	if !enable {
		op = stats.OpDisable
	}
	r.stats.TrackOperation(op)

	if c, ok := r.collectors[name]; ok {
		c.Activate(enable)
		r.metrics.RecordEnable(context.Background(), name, enable, false)
		return c
	}
	if !enable {
		r.stats.TrackMiss(op)
		return nil
	}

	opts := make([]CollectorOption, 0, len(r.collectorOpts)+3)
	opts = append(opts, WithAllocator(r.alloc), WithMetrics(r.metrics))
	opts = append(opts, r.collectorOpts...)
	opts = append(opts, withName(name))

	c := NewCollector(opts...)
	c.Activate(true)
	r.collectors[name] = c
	r.stats.TrackFiles(len(r.collectors))
	r.metrics.RecordEnable(context.Background(), name, enable, true)

	r.logger.Debug("Started collecting statistics for %s", name)
	return c
}

// ExportStatistics exports the collector for name. ok is false when the
// file is not tracked.
func (r *Registry) ExportStatistics(name string) ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.collectors[name]
	if !ok {
		r.stats.TrackMiss(stats.OpExport)
		return nil, false, nil
	}

	start := time.Now()
	buf, err := c.ExportStatistics()
	if err != nil {
		r.stats.TrackError("export_allocation")
		r.logger.Warn("Failed to export statistics for %s: %v", name, err)
		return nil, true, err
	}

	r.stats.TrackOperationWithLatency(stats.OpExport, uint64(time.Since(start).Nanoseconds()))
	r.stats.TrackExportedBytes(uint64(len(buf)))
	return buf, true, nil
}

// ReleaseExport hands a buffer returned by ExportStatistics back to the
// shared allocator. The buffer must not be used afterwards.
func (r *Registry) ReleaseExport(buf []byte) {
	if rel, ok := r.alloc.(releaser); ok && buf != nil {
		rel.Release(buf)
	}
}

// RemoveCollector drops the registry's reference to name. Holders of the
// collector can keep using it.
func (r *Registry) RemoveCollector(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.TrackOperation(stats.OpRemove)
	if _, ok := r.collectors[name]; !ok {
		r.stats.TrackMiss(stats.OpRemove)
		return false
	}
	delete(r.collectors, name)
	r.stats.TrackFiles(len(r.collectors))
	return true
}

// Names returns the tracked file names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.collectors))
	for name := range r.collectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of tracked files.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.collectors)
}

// Close drops every collector. The registry stays usable and behaves as empty.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.collectors); n > 0 {
		r.logger.Info("Dropping statistics for %d files", n)
	}
	r.collectors = make(map[string]*Collector)
	r.stats.TrackFiles(0)
	return nil
}

// GetStats returns the registry's operation statistics.
func (r *Registry) GetStats() map[string]interface{} {
	return r.stats.GetStats()
}

// GetStatsFiltered returns the registry's statistics with keys starting with prefix.
func (r *Registry) GetStatsFiltered(prefix string) map[string]interface{} {
	return r.stats.GetStatsFiltered(prefix)
}

func (r *Registry) trackLookup(op stats.OperationType, found bool) {
	r.stats.TrackOperation(op)
	if !found {
		r.stats.TrackMiss(op)
	}
	r.metrics.RecordLookup(context.Background(), found)
}

var _ stats.Provider = (*Registry)(nil)
