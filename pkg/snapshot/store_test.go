package snapshot

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/KevoDB/filestats/pkg/common/log"
)

func newTestStore(t *testing.T, codec Codec, retain int) *Store {
	t.Helper()

	s, err := OpenStore(StoreOptions{
		Dir:    filepath.Join(t.TempDir(), "snapshots"),
		Codec:  codec,
		Retain: retain,
		Logger: log.NewStandardLogger(log.WithOutput(&bytes.Buffer{})),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	// Deterministic, strictly increasing timestamps
	base := time.Unix(1700000000, 0)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

func TestOpenStoreValidation(t *testing.T) {
	_, err := OpenStore(StoreOptions{})
	require.Error(t, err)

	_, err = OpenStore(StoreOptions{Dir: t.TempDir(), Codec: Codec(5)})
	require.ErrorIs(t, err, ErrUnknownCodec)

	_, err = OpenStore(StoreOptions{Dir: t.TempDir(), Retain: -1})
	require.Error(t, err)
}

func TestStoreWriteRead(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecSnappy, CodecZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			s := newTestStore(t, codec, 0)
			data := append(make([]byte, 52), bytes.Repeat([]byte{0x31}, 300)...)

			path, err := s.Write("a.db", data)
			require.NoError(t, err)
			require.Equal(t, ".fss", filepath.Ext(path))

			_, err = os.Stat(path + ".tmp")
			require.True(t, os.IsNotExist(err))

			snap, err := s.Read(path)
			require.NoError(t, err)
			require.Equal(t, "a.db", snap.Name)
			require.Equal(t, codec, snap.Codec)
			require.Equal(t, data, snap.Data)
		})
	}
}

func TestStoreListAndLatest(t *testing.T) {
	s := newTestStore(t, CodecZstd, 0)

	_, err := s.Latest("a.db")
	require.ErrorIs(t, err, ErrNotFound)

	for i := byte(1); i <= 3; i++ {
		_, err := s.Write("a.db", []byte{i})
		require.NoError(t, err)
	}
	_, err = s.Write("b.db", []byte{9})
	require.NoError(t, err)

	entries, err := s.List("a.db")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		require.True(t, entries[i-1].Timestamp.Before(entries[i].Timestamp))
	}

	latest, err := s.Latest("a.db")
	require.NoError(t, err)
	require.Equal(t, []byte{3}, latest.Data)

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, "a.db", all[0].Name)
	require.Equal(t, "b.db", all[3].Name)
}

func TestStoreSkipsCorruptFiles(t *testing.T) {
	s := newTestStore(t, CodecNone, 0)

	path, err := s.Write("a.db", []byte{1, 2, 3})
	require.NoError(t, err)

	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	buf[len(buf)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, buf, 0644))

	_, err = s.Read(path)
	require.ErrorIs(t, err, ErrCorrupt)

	// The header is intact, so the entry is still listed
	entries, err := s.List("a.db")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, os.WriteFile(path, []byte("junk"), 0644))
	entries, err = s.List("a.db")
	require.NoError(t, err)
	require.Empty(t, entries)

	_, err = s.Read(filepath.Join(s.Dir(), "missing.fss"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStorePrune(t *testing.T) {
	s := newTestStore(t, CodecSnappy, 2)

	for i := byte(1); i <= 5; i++ {
		_, err := s.Write("a.db", []byte{i})
		require.NoError(t, err)
	}
	_, err := s.Write("b.db", []byte{1})
	require.NoError(t, err)

	removed, err := s.Prune("a.db")
	require.NoError(t, err)
	require.Equal(t, 3, removed)

	entries, err := s.List("a.db")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	latest, err := s.Latest("a.db")
	require.NoError(t, err)
	require.Equal(t, []byte{5}, latest.Data)

	removed, err = s.Prune("b.db")
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestStoreClosed(t *testing.T) {
	s := newTestStore(t, CodecZstd, 1)
	path, err := s.Write("a.db", []byte{1})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Write("a.db", []byte{2})
	require.ErrorIs(t, err, ErrClosed)
	_, err = s.Read(path)
	require.ErrorIs(t, err, ErrClosed)
}
