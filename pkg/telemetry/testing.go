// ABOUTME: Telemetry constructors for tests: disabled telemetry and an in-memory provider
// ABOUTME: The in-memory provider exposes a manual reader so tests can assert recorded metrics

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// NewForTesting returns a no-op telemetry instance for use in tests.
func NewForTesting() Telemetry {
	return NewNoop()
}

// NewInMemory returns a real provider with no exporters whose metrics can
// be collected from the returned manual reader.
func NewInMemory() (*TelemetryProvider, *sdkmetric.ManualReader, error) {
	cfg := DefaultConfig()
	cfg.Exporters = nil

	reader := sdkmetric.NewManualReader()
	p, err := newProvider(cfg, reader)
	if err != nil {
		return nil, nil, err
	}
	return p, reader, nil
}

// Snapshot is a flattened view of one collection from a manual reader.
type Snapshot struct {
	rm metricdata.ResourceMetrics
}

// Collect gathers everything recorded so far.
func Collect(ctx context.Context, reader *sdkmetric.ManualReader) (*Snapshot, error) {
	s := &Snapshot{}
	if err := reader.Collect(ctx, &s.rm); err != nil {
		return nil, err
	}
	return s, nil
}

// Counter sums every data point of the named int64 counter, optionally
// restricted to points carrying all of attrs.
func (s *Snapshot) Counter(name string, attrs ...attribute.KeyValue) int64 {
	var total int64
	for _, sm := range s.rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if hasAll(dp.Attributes, attrs) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

// HistogramCount returns how many values the named histogram recorded.
func (s *Snapshot) HistogramCount(name string, attrs ...attribute.KeyValue) uint64 {
	var total uint64
	for _, sm := range s.rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			h, ok := m.Data.(metricdata.Histogram[float64])
			if !ok {
				continue
			}
			for _, dp := range h.DataPoints {
				if hasAll(dp.Attributes, attrs) {
					total += dp.Count
				}
			}
		}
	}
	return total
}

func hasAll(set attribute.Set, attrs []attribute.KeyValue) bool {
	for _, kv := range attrs {
		v, ok := set.Value(kv.Key)
		if !ok || v.Type() != kv.Value.Type() || v.Emit() != kv.Value.Emit() {
			return false
		}
	}
	return true
}
