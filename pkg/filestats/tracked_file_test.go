package filestats

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrackedFile(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "data.bin"))
	require.NoError(t, err)
	defer f.Close()

	c := NewCollector(WithRangeShift(6), WithMaxRangeCount(64))
	c.Activate(true)
	tf := NewTrackedFile(f, 0, c)
	require.Equal(t, 1, c.BlockCount())

	payload := make([]byte, 1000)
	n, err := tf.WriteAt(payload, 0)
	require.NoError(t, err)
	require.Equal(t, 1000, n)
	require.Equal(t, uint64(1000), tf.Size())
	require.Equal(t, 16, c.BlockCount())

	for i := 0; i < c.BlockCount(); i++ {
		b, _ := c.Block(i)
		require.Equal(t, uint64(1), b.FileWrite, "block %d", i)
	}

	// Reads past the end only record what was read
	buf := make([]byte, 100)
	n, err = tf.ReadAt(buf, 960)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 40, n)

	require.Equal(t, uint64(40), c.Totals().BytesFileReadCold)
	b, _ := c.Block(15)
	require.Equal(t, uint64(1), b.FileReadCold)

	// Overwriting inside the file keeps the geometry
	_, err = tf.WriteAt(payload[:10], 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), tf.Size())
	b, _ = c.Block(0)
	require.Equal(t, uint64(2), b.FileWrite)
	require.Same(t, c, tf.Collector())
}

func TestTrackedFileInitialSize(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "data.bin"))
	require.NoError(t, err)
	defer f.Close()

	c := NewCollector(WithRangeShift(6), WithMaxRangeCount(64))
	NewTrackedFile(f, 4096, c)
	require.Equal(t, 64, c.BlockCount())
}
