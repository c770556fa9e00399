package stats

// Provider defines the interface for components that provide statistics
type Provider interface {
	// GetStats returns all statistics
	GetStats() map[string]interface{}

	// GetStatsFiltered returns statistics filtered by prefix
	GetStatsFiltered(prefix string) map[string]interface{}
}

// Collector interface defines methods for collecting statistics
type Collector interface {
	Provider

	TrackOperation(op OperationType)
	TrackOperationWithLatency(op OperationType, latencyNs uint64)

	// TrackMiss records a lookup against an untracked file
	TrackMiss(op OperationType)

	TrackError(errorType string)
	TrackExportedBytes(bytes uint64)
	TrackFiles(n int)
}

var _ Collector = (*AtomicCollector)(nil)
