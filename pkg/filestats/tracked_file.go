package filestats

import (
	"io"
	"sync/atomic"
)

// ReaderWriterAt is the file surface a TrackedFile instruments.
type ReaderWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// TrackedFile reports the reads and writes made through it to a collector.
// Reads are counted as cold reads. Writes past the known end of the file
// grow the collector's geometry.
type TrackedFile struct {
	file      ReaderWriterAt
	collector *Collector
	size      atomic.Uint64
}

// NewTrackedFile wraps file, which is currently size bytes long, and sizes
// the collector accordingly.
func NewTrackedFile(file ReaderWriterAt, size uint64, collector *Collector) *TrackedFile {
	tf := &TrackedFile{
		file:      file,
		collector: collector,
	}
	tf.size.Store(size)
	collector.Resize(size)
	return tf
}

// Collector returns the collector the file reports into.
func (tf *TrackedFile) Collector() *Collector {
	return tf.collector
}

// Size returns the largest end offset seen so far.
func (tf *TrackedFile) Size() uint64 {
	return tf.size.Load()
}

// ReadAt reads from the underlying file and records the bytes actually read.
func (tf *TrackedFile) ReadAt(p []byte, off int64) (int, error) {
	n, err := tf.file.ReadAt(p, off)
	if n > 0 && off >= 0 {
		tf.collector.RecordFileReadCold(uint64(off), uint64(n))
	}
	return n, err
}

// WriteAt writes to the underlying file and records the bytes actually written.
func (tf *TrackedFile) WriteAt(p []byte, off int64) (int, error) {
	n, err := tf.file.WriteAt(p, off)
	if n <= 0 || off < 0 {
		return n, err
	}

	end := uint64(off) + uint64(n)
	if tf.grow(end) {
		tf.collector.Resize(tf.size.Load())
	}
	tf.collector.RecordFileWrite(uint64(off), uint64(n))
	return n, err
}

// grow raises the known size to end and reports whether it changed.
func (tf *TrackedFile) grow(end uint64) bool {
	for {
		cur := tf.size.Load()
		if end <= cur {
			return false
		}
		if tf.size.CompareAndSwap(cur, end) {
			return true
		}
	}
}
