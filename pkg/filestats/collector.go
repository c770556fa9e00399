// Package filestats records per-file I/O heat maps. A Collector divides a
// file into at most a bounded number of power-of-two sized blocks and counts
// six kinds of events per block, alongside whole-file byte totals. A
// Registry maps file names to collectors.
package filestats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultMinRangeShift makes the smallest block 8 KiB
	DefaultMinRangeShift = 13
	// DefaultMaxRangeCount bounds the number of blocks per file
	DefaultMaxRangeCount = 1024

	// MaxRangeShift is the largest minimum shift a collector accepts
	MaxRangeShift = 48
)

// Collector holds the statistics of one file. Recording and exporting
// share a read lock; Resize takes the write lock to swap the block array.
type Collector struct {
	name     string
	minShift uint
	maxCount uint64
	alloc    Allocator
	metrics  FileStatsMetrics

	mu         sync.RWMutex
	blockShift uint
	blocks     []BlockStatistics

	active atomic.Bool
	totals [numEventKinds]atomic.Uint64
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithRangeShift sets the minimum block shift. Values above MaxRangeShift are clamped.
func WithRangeShift(shift uint) CollectorOption {
	return func(c *Collector) {
		if shift > MaxRangeShift {
			shift = MaxRangeShift
		}
		c.minShift = shift
	}
}

// WithMaxRangeCount sets the block count bound. Values below 2 are raised to 2.
func WithMaxRangeCount(count uint64) CollectorOption {
	return func(c *Collector) {
		if count < 2 {
			count = 2
		}
		c.maxCount = count
	}
}

// WithAllocator sets the allocator used for exports.
func WithAllocator(alloc Allocator) CollectorOption {
	return func(c *Collector) {
		if alloc != nil {
			c.alloc = alloc
		}
	}
}

// WithMetrics sets the telemetry sink.
func WithMetrics(m FileStatsMetrics) CollectorOption {
	return func(c *Collector) {
		if m != nil {
			c.metrics = m
		}
	}
}

// withName labels the collector's metrics; set by the registry.
func withName(name string) CollectorOption {
	return func(c *Collector) {
		c.name = name
	}
}

// NewCollector creates an inactive collector with no blocks. Call Resize
// with the file size before recording.
func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{
		minShift: DefaultMinRangeShift,
		maxCount: DefaultMaxRangeCount,
		alloc:    NewBufferPool(DefaultExportBufferLimit),
		metrics:  NewNoopFileStatsMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.blockShift = c.minShift
	return c
}

// geometry computes the block count and shift covering size bytes.
func geometry(size uint64, minShift uint, maxCount uint64) (uint64, uint) {
	shift := minShift
	count := size >> shift
	if count < 1 {
		count = 1
	}

	for count > maxCount {
		count >>= 1
		shift++
	}

	// Cover the tail of the file
	if !covers(count, shift, size) {
		count++
	}

	// The extra block pushed us over the bound: double the block size once
	if count > maxCount {
		shift++
		count = ceilShift(size, shift)
	}

	return count, shift
}

func covers(count uint64, shift uint, size uint64) bool {
	if size == 0 {
		return true
	}
	return count > (size-1)>>shift
}

func ceilShift(size uint64, shift uint) uint64 {
	if size == 0 {
		return 1
	}
	return ((size - 1) >> shift) + 1
}

// Resize recomputes the geometry for a file of size bytes. When the block
// count or shift changes, all per-block counters are discarded. Totals are kept.
func (c *Collector) Resize(size uint64) {
	count, shift := geometry(size, c.minShift, c.maxCount)

	c.mu.Lock()
	reallocated := count != uint64(len(c.blocks)) || shift != c.blockShift
	if reallocated {
		c.blocks = make([]BlockStatistics, count)
		c.blockShift = shift
	}
	c.mu.Unlock()

	c.metrics.RecordResize(context.Background(), c.name, count, shift, reallocated)
}

// Activate turns recording on or off.
func (c *Collector) Activate(active bool) {
	c.active.Store(active)
}

// Active reports whether events are being recorded.
func (c *Collector) Active() bool {
	return c.active.Load()
}

// BlockShift returns log2 of the current block size.
func (c *Collector) BlockShift() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blockShift
}

// BlockSize returns the current block size in bytes.
func (c *Collector) BlockSize() uint64 {
	return uint64(1) << c.BlockShift()
}

// BlockCount returns the current number of blocks.
func (c *Collector) BlockCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// BlockIndex returns the block holding offset, clamped to the last block.
// ok is false when the collector has no blocks.
func (c *Collector) BlockIndex(offset uint64) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return 0, false
	}
	return c.clampLocked(offset >> c.blockShift), true
}

func (c *Collector) clampLocked(idx uint64) int {
	if last := uint64(len(c.blocks) - 1); idx > last {
		return int(last)
	}
	return int(idx)
}

// Block returns a copy of the counters of block i.
func (c *Collector) Block(i int) (BlockCounters, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.blocks) {
		return BlockCounters{}, false
	}
	return c.blocks[i].Snapshot(), true
}

// Totals returns the whole-file byte counters.
func (c *Collector) Totals() Totals {
	return Totals{
		BytesFileReadCold:   c.totals[FileReadCold].Load(),
		BytesFileReadAhead:  c.totals[FileReadAhead].Load(),
		BytesFileReadCached: c.totals[FileReadCached].Load(),
		BytesFileWrite:      c.totals[FileWrite].Load(),
		BytesPageAccess:     c.totals[PageAccess].Load(),
		BytesPageLoad:       c.totals[PageLoad].Load(),
	}
}

// Record counts an event of kind covering [offset, offset+length). The
// total for kind grows by length and every overlapped block gets one hit.
// A zero length touches the block holding offset. Offsets past the end of
// the file land in the last block. Inactive collectors ignore events.
func (c *Collector) Record(kind EventKind, offset, length uint64) {
	if kind >= numEventKinds || !c.active.Load() {
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	c.totals[kind].Add(length)
	if len(c.blocks) == 0 {
		return
	}

	first := offset >> c.blockShift
	last := first
	if length > 0 {
		end := offset + length - 1
		if end < offset {
			end = math.MaxUint64
		}
		last = end >> c.blockShift
	}

	lo, hi := c.clampLocked(first), c.clampLocked(last)
	for i := lo; i <= hi; i++ {
		c.blocks[i].counter(kind).Add(1)
	}
}

// RecordFileWrite counts a write of length bytes at offset.
func (c *Collector) RecordFileWrite(offset, length uint64) {
	c.Record(FileWrite, offset, length)
}

// RecordFileReadCold counts a read that went to storage.
func (c *Collector) RecordFileReadCold(offset, length uint64) {
	c.Record(FileReadCold, offset, length)
}

// RecordFileReadAhead counts speculatively prefetched bytes.
func (c *Collector) RecordFileReadAhead(offset, length uint64) {
	c.Record(FileReadAhead, offset, length)
}

// RecordFileReadCached counts a read served from cache.
func (c *Collector) RecordFileReadCached(offset, length uint64) {
	c.Record(FileReadCached, offset, length)
}

// RecordPageAccess counts an access to a mapped page.
func (c *Collector) RecordPageAccess(offset, length uint64) {
	c.Record(PageAccess, offset, length)
}

// RecordPageLoad counts a page brought into memory.
func (c *Collector) RecordPageLoad(offset, length uint64) {
	c.Record(PageLoad, offset, length)
}

// ExportStatistics encodes the collector into a fresh buffer from its
// allocator. See DecodeExport for the layout.
func (c *Collector) ExportStatistics() ([]byte, error) {
	start := time.Now()

	c.mu.RLock()
	buf, err := c.exportLocked()
	c.mu.RUnlock()

	c.metrics.RecordExport(context.Background(), c.name, len(buf), time.Since(start), err)
	return buf, err
}

func (c *Collector) exportLocked() ([]byte, error) {
	size := ExportSize(len(c.blocks))

	buf, err := c.alloc.Allocate(size)
	if err != nil {
		if errors.Is(err, ErrAllocationFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}
	if len(buf) != size {
		return nil, fmt.Errorf("%w: allocator returned %d bytes, want %d", ErrAllocationFailed, len(buf), size)
	}

	encodeExport(buf, c.Totals(), uint64(1)<<c.blockShift, c.blocks)
	return buf, nil
}

// release hands an export buffer back to the allocator when it supports reuse.
func (c *Collector) release(buf []byte) {
	if r, ok := c.alloc.(releaser); ok {
		r.Release(buf)
	}
}
