package filestats

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// EventKind identifies one of the six I/O event categories a collector counts.
type EventKind uint8

const (
	FileWrite EventKind = iota
	FileReadCold
	FileReadAhead
	FileReadCached
	PageAccess
	PageLoad

	numEventKinds
)

var eventKindNames = [numEventKinds]string{
	FileWrite:      "file_write",
	FileReadCold:   "file_read_cold",
	FileReadAhead:  "file_read_ahead",
	FileReadCached: "file_read_cached",
	PageAccess:     "page_access",
	PageLoad:       "page_load",
}

// EventKinds lists every event kind in declaration order.
func EventKinds() []EventKind {
	kinds := make([]EventKind, numEventKinds)
	for i := range kinds {
		kinds[i] = EventKind(i)
	}
	return kinds
}

func (k EventKind) String() string {
	if k < numEventKinds {
		return eventKindNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", k)
}

// ParseEventKind accepts the names produced by String, case-insensitively.
func ParseEventKind(name string) (EventKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range eventKindNames {
		if n == name {
			return EventKind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", name)
}

// BlockStatistics holds the raw counters of one block. Each counter is
// updated atomically; the group as a whole is not.
type BlockStatistics struct {
	FileWrite      atomic.Uint64
	FileReadCold   atomic.Uint64
	FileReadAhead  atomic.Uint64
	FileReadCached atomic.Uint64
	PageAccess     atomic.Uint64
	PageLoad       atomic.Uint64
}

func (b *BlockStatistics) counter(kind EventKind) *atomic.Uint64 {
	switch kind {
	case FileWrite:
		return &b.FileWrite
	case FileReadCold:
		return &b.FileReadCold
	case FileReadAhead:
		return &b.FileReadAhead
	case FileReadCached:
		return &b.FileReadCached
	case PageAccess:
		return &b.PageAccess
	case PageLoad:
		return &b.PageLoad
	}
	return nil
}

// Snapshot copies the current counter values.
func (b *BlockStatistics) Snapshot() BlockCounters {
	return BlockCounters{
		FileWrite:      b.FileWrite.Load(),
		FileReadCold:   b.FileReadCold.Load(),
		FileReadAhead:  b.FileReadAhead.Load(),
		FileReadCached: b.FileReadCached.Load(),
		PageAccess:     b.PageAccess.Load(),
		PageLoad:       b.PageLoad.Load(),
	}
}

// BlockCounters is a point-in-time copy of a block's counters.
type BlockCounters struct {
	FileWrite      uint64
	FileReadCold   uint64
	FileReadAhead  uint64
	FileReadCached uint64
	PageAccess     uint64
	PageLoad       uint64
}

// Get returns the counter for kind.
func (b BlockCounters) Get(kind EventKind) uint64 {
	switch kind {
	case FileWrite:
		return b.FileWrite
	case FileReadCold:
		return b.FileReadCold
	case FileReadAhead:
		return b.FileReadAhead
	case FileReadCached:
		return b.FileReadCached
	case PageAccess:
		return b.PageAccess
	case PageLoad:
		return b.PageLoad
	}
	return 0
}

// Totals are the whole-file byte counters of a collector.
type Totals struct {
	BytesFileReadCold   uint64
	BytesFileReadAhead  uint64
	BytesFileReadCached uint64
	BytesFileWrite      uint64
	BytesPageAccess     uint64
	BytesPageLoad       uint64
}

// Get returns the total for kind.
func (t Totals) Get(kind EventKind) uint64 {
	switch kind {
	case FileWrite:
		return t.BytesFileWrite
	case FileReadCold:
		return t.BytesFileReadCold
	case FileReadAhead:
		return t.BytesFileReadAhead
	case FileReadCached:
		return t.BytesFileReadCached
	case PageAccess:
		return t.BytesPageAccess
	case PageLoad:
		return t.BytesPageLoad
	}
	return 0
}
