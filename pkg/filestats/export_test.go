package filestats

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExportLayout(t *testing.T) {
	c := NewCollector(WithRangeShift(6), WithMaxRangeCount(64))
	c.Activate(true)
	c.Resize(256)

	c.RecordFileReadCold(0, 1)
	c.RecordFileReadAhead(64, 2)
	for i := 0; i < 3; i++ {
		c.RecordFileReadCached(64, 3)
	}
	for i := 0; i < 7; i++ {
		c.RecordFileWrite(128, 4)
	}
	c.RecordPageAccess(192, 5)
	c.RecordPageLoad(192, 6)

	buf, err := c.ExportStatistics()
	require.NoError(t, err)
	require.Len(t, buf, 52+4*3)

	le := binary.LittleEndian
	require.Equal(t, uint64(1), le.Uint64(buf[0:]))
	require.Equal(t, uint64(2), le.Uint64(buf[8:]))
	require.Equal(t, uint64(9), le.Uint64(buf[16:]))
	require.Equal(t, uint64(28), le.Uint64(buf[24:]))
	require.Equal(t, uint64(5), le.Uint64(buf[32:]))
	require.Equal(t, uint64(6), le.Uint64(buf[40:]))
	require.Equal(t, uint32(64), le.Uint32(buf[48:]))

	want := []byte{
		0x10, 0x00, 0x00, // cold=1 in the high nibble
		0x00, 0x21, 0x00, // ahead=1 low, cached=3 high
		0x03, 0x00, 0x00, // write=7 low
		0x00, 0x00, 0x11, // access=1 low, load=1 high
	}
	require.Equal(t, want, buf[52:])
}

func TestExportEmptyCollector(t *testing.T) {
	c := NewCollector()
	buf, err := c.ExportStatistics()
	require.NoError(t, err)
	require.Len(t, buf, ExportHeaderSize)
	require.Equal(t, uint32(1<<DefaultMinRangeShift), binary.LittleEndian.Uint32(buf[48:]))
}

func TestExportLengthMatchesBlockCount(t *testing.T) {
	for _, n := range []uint64{0, 1, 8191, 8192, 1 << 20, 1 << 30, 1 << 40} {
		c := NewCollector()
		c.Resize(n)
		buf, err := c.ExportStatistics()
		require.NoError(t, err)
		require.Equal(t, ExportSize(c.BlockCount()), len(buf), "size %d", n)
	}
}

func TestExportBlockSizeTruncates(t *testing.T) {
	c := NewCollector(WithRangeShift(32))
	c.Resize(1 << 33)
	buf, err := c.ExportStatistics()
	require.NoError(t, err)
	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(buf[48:]))
}

func TestDecodeExport(t *testing.T) {
	c := NewCollector(WithRangeShift(6), WithMaxRangeCount(64))
	c.Activate(true)
	c.Resize(1000)
	for i := 0; i < 100; i++ {
		c.RecordFileReadCold(640, 64)
	}
	c.RecordFileReadCold(0, 1)

	buf, err := c.ExportStatistics()
	require.NoError(t, err)

	es, err := DecodeExport(buf)
	require.NoError(t, err)
	require.Equal(t, c.Totals(), es.Totals)
	require.Equal(t, uint32(64), es.BlockSize)
	require.Len(t, es.Blocks, 16)
	require.Equal(t, asNibble(100), es.Blocks[10].Level(FileReadCold))
	require.Equal(t, uint8(1), es.Blocks[0].Level(FileReadCold))
	require.Equal(t, uint8(0), es.Blocks[10].Level(FileWrite))

	require.Equal(t, []int{10}, es.HotBlocks(FileReadCold, 4))
	require.Equal(t, []int{0, 10}, es.HotBlocks(FileReadCold, 1))
	require.Empty(t, es.HotBlocks(PageLoad, 1))
}

func TestDecodeExportRejectsMalformed(t *testing.T) {
	_, err := DecodeExport(make([]byte, ExportHeaderSize-1))
	require.ErrorIs(t, err, ErrInvalidExport)

	_, err = DecodeExport(make([]byte, ExportHeaderSize+2))
	require.ErrorIs(t, err, ErrInvalidExport)

	es, err := DecodeExport(make([]byte, ExportHeaderSize))
	require.NoError(t, err)
	require.Empty(t, es.Blocks)
}
