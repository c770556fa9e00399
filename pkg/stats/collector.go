package stats

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// OperationType defines the type of operation being tracked
type OperationType string

// Registry and collector operation types
const (
	OpEnable  OperationType = "enable"
	OpDisable OperationType = "disable"
	OpFind    OperationType = "find"
	OpTracks  OperationType = "tracks"
	OpExport  OperationType = "export"
	OpRemove  OperationType = "remove"
	OpResize  OperationType = "resize"
	OpSave    OperationType = "save"
)

// AtomicCollector provides statistics collection with minimal contention
// using atomic operations for thread safety
type AtomicCollector struct {
	// counts and misses are created lazily, the mutex only guards map growth
	counts   map[OperationType]*atomic.Uint64
	misses   map[OperationType]*atomic.Uint64
	countsMu sync.RWMutex

	lastOpTime   map[OperationType]time.Time
	lastOpTimeMu sync.RWMutex

	exportedBytes atomic.Uint64
	trackedFiles  atomic.Int64

	errors   map[string]*atomic.Uint64
	errorsMu sync.RWMutex

	latencies   map[OperationType]*LatencyTracker
	latenciesMu sync.RWMutex
}

// LatencyTracker maintains running statistics about operation latencies
type LatencyTracker struct {
	count atomic.Uint64
	sum   atomic.Uint64 // nanoseconds
	max   atomic.Uint64
	min   atomic.Uint64 // zero until the first sample
}

// NewAtomicCollector creates a new atomic statistics collector
func NewAtomicCollector() *AtomicCollector {
	return &AtomicCollector{
		counts:     make(map[OperationType]*atomic.Uint64),
		misses:     make(map[OperationType]*atomic.Uint64),
		lastOpTime: make(map[OperationType]time.Time),
		errors:     make(map[string]*atomic.Uint64),
		latencies:  make(map[OperationType]*LatencyTracker),
	}
}

// TrackOperation increments the counter for the specified operation type
func (c *AtomicCollector) TrackOperation(op OperationType) {
	c.getOrCreate(c.counts, op).Add(1)

	c.lastOpTimeMu.Lock()
	c.lastOpTime[op] = time.Now()
	c.lastOpTimeMu.Unlock()
}

// TrackMiss records an operation that found no collector for the file name
func (c *AtomicCollector) TrackMiss(op OperationType) {
	c.getOrCreate(c.misses, op).Add(1)
}

// TrackOperationWithLatency tracks an operation and its latency
func (c *AtomicCollector) TrackOperationWithLatency(op OperationType, latencyNs uint64) {
	c.TrackOperation(op)

	tracker := c.getOrCreateLatencyTracker(op)
	tracker.count.Add(1)
	tracker.sum.Add(latencyNs)

	for {
		current := tracker.max.Load()
		if latencyNs <= current || tracker.max.CompareAndSwap(current, latencyNs) {
			break
		}
	}

	for {
		current := tracker.min.Load()
		if current != 0 && latencyNs >= current {
			break
		}
		if tracker.min.CompareAndSwap(current, latencyNs) {
			break
		}
	}
}

// TrackError increments the counter for the specified error type
func (c *AtomicCollector) TrackError(errorType string) {
	c.errorsMu.RLock()
	counter, exists := c.errors[errorType]
	c.errorsMu.RUnlock()

	if !exists {
		c.errorsMu.Lock()
		if counter, exists = c.errors[errorType]; !exists {
			counter = &atomic.Uint64{}
			c.errors[errorType] = counter
		}
		c.errorsMu.Unlock()
	}

	counter.Add(1)
}

// TrackExportedBytes adds the size of an exported snapshot
func (c *AtomicCollector) TrackExportedBytes(bytes uint64) {
	c.exportedBytes.Add(bytes)
}

// TrackFiles records the number of files currently tracked
func (c *AtomicCollector) TrackFiles(n int) {
	c.trackedFiles.Store(int64(n))
}

// GetStats returns all statistics as a map
func (c *AtomicCollector) GetStats() map[string]interface{} {
	stats := make(map[string]interface{})

	c.countsMu.RLock()
	for op, counter := range c.counts {
		stats[string(op)+"_ops"] = counter.Load()
	}
	for op, counter := range c.misses {
		stats[string(op)+"_misses"] = counter.Load()
	}
	c.countsMu.RUnlock()

	c.lastOpTimeMu.RLock()
	for op, timestamp := range c.lastOpTime {
		stats["last_"+string(op)+"_time"] = timestamp.UnixNano()
	}
	c.lastOpTimeMu.RUnlock()

	stats["exported_bytes"] = c.exportedBytes.Load()
	stats["tracked_files"] = c.trackedFiles.Load()

	c.errorsMu.RLock()
	errorStats := make(map[string]uint64, len(c.errors))
	for errType, counter := range c.errors {
		errorStats[errType] = counter.Load()
	}
	c.errorsMu.RUnlock()
	stats["errors"] = errorStats

	c.latenciesMu.RLock()
	for op, tracker := range c.latencies {
		count := tracker.count.Load()
		if count == 0 {
			continue
		}

		latencyStats := map[string]interface{}{
			"count":  count,
			"avg_ns": tracker.sum.Load() / count,
		}
		if min := tracker.min.Load(); min != 0 {
			latencyStats["min_ns"] = min
		}
		if max := tracker.max.Load(); max != 0 {
			latencyStats["max_ns"] = max
		}

		stats[string(op)+"_latency"] = latencyStats
	}
	c.latenciesMu.RUnlock()

	return stats
}

// GetStatsFiltered returns statistics filtered by prefix
func (c *AtomicCollector) GetStatsFiltered(prefix string) map[string]interface{} {
	allStats := c.GetStats()
	filtered := make(map[string]interface{})

	for key, value := range allStats {
		if strings.HasPrefix(key, prefix) {
			filtered[key] = value
		}
	}

	return filtered
}

func (c *AtomicCollector) getOrCreate(m map[OperationType]*atomic.Uint64, op OperationType) *atomic.Uint64 {
	c.countsMu.RLock()
	counter, exists := m[op]
	c.countsMu.RUnlock()

	if !exists {
		c.countsMu.Lock()
		if counter, exists = m[op]; !exists {
			counter = &atomic.Uint64{}
			m[op] = counter
		}
		c.countsMu.Unlock()
	}

	return counter
}

func (c *AtomicCollector) getOrCreateLatencyTracker(op OperationType) *LatencyTracker {
	c.latenciesMu.RLock()
	tracker, exists := c.latencies[op]
	c.latenciesMu.RUnlock()

	if !exists {
		c.latenciesMu.Lock()
		if tracker, exists = c.latencies[op]; !exists {
			tracker = &LatencyTracker{}
			c.latencies[op] = tracker
		}
		c.latenciesMu.Unlock()
	}

	return tracker
}
