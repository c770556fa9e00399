package filestats

import (
	"encoding/binary"
	"fmt"
)

const (
	// ExportHeaderSize is six uint64 totals followed by the uint32 block size
	ExportHeaderSize = 6*8 + 4
	// ExportRecordSize is the encoded size of one block
	ExportRecordSize = 3
)

// Header field offsets
const (
	offReadCold   = 0
	offReadAhead  = 8
	offReadCached = 16
	offWrite      = 24
	offPageAccess = 32
	offPageLoad   = 40
	offBlockSize  = 48
)

// ExportSize returns the encoded length of an export with blockCount blocks.
func ExportSize(blockCount int) int {
	return ExportHeaderSize + blockCount*ExportRecordSize
}

func encodeExport(buf []byte, totals Totals, blockSize uint64, blocks []BlockStatistics) {
	binary.LittleEndian.PutUint64(buf[offReadCold:], totals.BytesFileReadCold)
	binary.LittleEndian.PutUint64(buf[offReadAhead:], totals.BytesFileReadAhead)
	binary.LittleEndian.PutUint64(buf[offReadCached:], totals.BytesFileReadCached)
	binary.LittleEndian.PutUint64(buf[offWrite:], totals.BytesFileWrite)
	binary.LittleEndian.PutUint64(buf[offPageAccess:], totals.BytesPageAccess)
	binary.LittleEndian.PutUint64(buf[offPageLoad:], totals.BytesPageLoad)
	binary.LittleEndian.PutUint32(buf[offBlockSize:], uint32(blockSize))

	out := buf[ExportHeaderSize:]
	for i := range blocks {
		b := &blocks[i]
		o := out[i*ExportRecordSize : (i+1)*ExportRecordSize]
		o[0] = packNibbles(b.FileWrite.Load(), b.FileReadCold.Load())
		o[1] = packNibbles(b.FileReadAhead.Load(), b.FileReadCached.Load())
		o[2] = packNibbles(b.PageAccess.Load(), b.PageLoad.Load())
	}
}

// BlockLevels are the six nibble levels of one exported block.
type BlockLevels [numEventKinds]uint8

// Level returns the magnitude level recorded for kind.
func (l BlockLevels) Level(kind EventKind) uint8 {
	if kind >= numEventKinds {
		return 0
	}
	return l[kind]
}

// ExportedStatistics is a decoded export.
type ExportedStatistics struct {
	Totals    Totals
	BlockSize uint32
	Blocks    []BlockLevels
}

// DecodeExport parses a buffer produced by ExportStatistics.
func DecodeExport(buf []byte) (*ExportedStatistics, error) {
	if len(buf) < ExportHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrInvalidExport, len(buf))
	}
	body := buf[ExportHeaderSize:]
	if len(body)%ExportRecordSize != 0 {
		return nil, fmt.Errorf("%w: body of %d bytes is not a whole number of blocks", ErrInvalidExport, len(body))
	}

	es := &ExportedStatistics{
		Totals: Totals{
			BytesFileReadCold:   binary.LittleEndian.Uint64(buf[offReadCold:]),
			BytesFileReadAhead:  binary.LittleEndian.Uint64(buf[offReadAhead:]),
			BytesFileReadCached: binary.LittleEndian.Uint64(buf[offReadCached:]),
			BytesFileWrite:      binary.LittleEndian.Uint64(buf[offWrite:]),
			BytesPageAccess:     binary.LittleEndian.Uint64(buf[offPageAccess:]),
			BytesPageLoad:       binary.LittleEndian.Uint64(buf[offPageLoad:]),
		},
		BlockSize: binary.LittleEndian.Uint32(buf[offBlockSize:]),
		Blocks:    make([]BlockLevels, len(body)/ExportRecordSize),
	}

	for i := range es.Blocks {
		o := body[i*ExportRecordSize:]
		var l BlockLevels
		l[FileWrite], l[FileReadCold] = o[0]&0x0f, o[0]>>4
		l[FileReadAhead], l[FileReadCached] = o[1]&0x0f, o[1]>>4
		l[PageAccess], l[PageLoad] = o[2]&0x0f, o[2]>>4
		es.Blocks[i] = l
	}

	return es, nil
}

// HotBlocks returns the indices of blocks whose level for kind is at least minLevel.
func (es *ExportedStatistics) HotBlocks(kind EventKind, minLevel uint8) []int {
	var hot []int
	for i, l := range es.Blocks {
		if l.Level(kind) >= minLevel {
			hot = append(hot, i)
		}
	}
	return hot
}
