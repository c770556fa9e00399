package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gofrs/flock"

	"github.com/KevoDB/filestats/pkg/common/log"
)

const (
	fileExt      = ".fss"
	lockFileName = ".lock"
)

// StoreOptions configures a Store.
type StoreOptions struct {
	// Dir holds the snapshot files; it is created if missing
	Dir string
	// Codec compresses new snapshots
	Codec Codec
	// Retain is how many snapshots per file Prune keeps; 0 keeps everything
	Retain int
	Logger log.Logger
}

// Entry describes a snapshot file on disk.
type Entry struct {
	Name      string
	Path      string
	Timestamp time.Time
	Size      int64
}

// Store is a directory of snapshot archives. Writers in other processes
// are excluded with a lock file in the directory.
type Store struct {
	dir    string
	codec  Codec
	retain int
	logger log.Logger

	mu     sync.Mutex
	lock   *flock.Flock
	comp   *compressor
	closed bool

	now func() time.Time
}

// OpenStore opens or creates the snapshot directory.
func OpenStore(opts StoreOptions) (*Store, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("snapshot directory is required")
	}
	if opts.Codec > CodecZstd {
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, opts.Codec)
	}
	if opts.Retain < 0 {
		return nil, fmt.Errorf("retain cannot be negative: %d", opts.Retain)
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	comp, err := newCompressor()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.GetDefaultLogger().WithField("component", "snapshot")
	}

	return &Store{
		dir:    opts.Dir,
		codec:  opts.Codec,
		retain: opts.Retain,
		logger: logger,
		lock:   flock.New(filepath.Join(opts.Dir, lockFileName)),
		comp:   comp,
		now:    time.Now,
	}, nil
}

// Dir returns the snapshot directory.
func (s *Store) Dir() string {
	return s.dir
}

// Write archives data as the latest snapshot of name and returns its path.
func (s *Store) Write(name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}

	snap := &Snapshot{
		Name:      name,
		Timestamp: s.now(),
		Codec:     s.codec,
		Data:      data,
	}

	payload, err := s.comp.compress(data, s.codec)
	if err != nil {
		return "", err
	}
	buf, err := encodeArchive(snap, payload)
	if err != nil {
		return "", err
	}

	if err := s.lock.Lock(); err != nil {
		return "", fmt.Errorf("failed to lock snapshot directory: %w", err)
	}
	defer s.lock.Unlock()

	path := filepath.Join(s.dir, snapshotFileName(name, snap.Timestamp))
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, buf, 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to rename snapshot: %w", err)
	}

	s.logger.Debug("Wrote snapshot of %s (%d bytes, %s)", name, len(buf), s.codec)
	return path, nil
}

// Read loads and verifies the snapshot at path.
func (s *Store) Read(path string) (*Snapshot, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	snap, err := decodeArchive(buf, s.comp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return snap, nil
}

// List returns the snapshots of name, oldest first.
func (s *Store) List(name string) ([]Entry, error) {
	pattern := filepath.Join(s.dir, fmt.Sprintf("%016x-*%s", xxhash.Sum64String(name), fileExt))
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(paths))
	for _, path := range paths {
		buf, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read snapshot: %w", err)
		}

		h, err := decodeHeader(buf)
		if err != nil {
			s.logger.Warn("Skipping unreadable snapshot %s: %v", filepath.Base(path), err)
			continue
		}
		if h.name != name {
			continue
		}

		entries = append(entries, Entry{
			Name:      h.name,
			Path:      path,
			Timestamp: h.timestamp,
			Size:      int64(len(buf)),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// All returns every snapshot in the directory ordered by file name, then age.
func (s *Store) All() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() || !isSnapshotFile(de.Name()) {
			continue
		}
		path := filepath.Join(s.dir, de.Name())
		buf, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		h, err := decodeHeader(buf)
		if err != nil {
			s.logger.Warn("Skipping unreadable snapshot %s: %v", de.Name(), err)
			continue
		}
		entries = append(entries, Entry{
			Name:      h.name,
			Path:      path,
			Timestamp: h.timestamp,
			Size:      int64(len(buf)),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// Latest returns the newest snapshot of name.
func (s *Store) Latest(name string) (*Snapshot, error) {
	entries, err := s.List(name)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.Read(entries[len(entries)-1].Path)
}

// Prune removes all but the newest Retain snapshots of name and returns
// how many files were removed.
func (s *Store) Prune(name string) (int, error) {
	if s.retain == 0 {
		return 0, nil
	}

	entries, err := s.List(name)
	if err != nil {
		return 0, err
	}
	if len(entries) <= s.retain {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	if err := s.lock.Lock(); err != nil {
		return 0, fmt.Errorf("failed to lock snapshot directory: %w", err)
	}
	defer s.lock.Unlock()

	removed := 0
	for _, e := range entries[:len(entries)-s.retain] {
		if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove snapshot: %w", err)
		}
		removed++
	}

	if removed > 0 {
		s.logger.Debug("Pruned %d snapshots of %s", removed, name)
	}
	return removed, nil
}

// Close releases the compressor. Later calls fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.comp.close()
	return nil
}

func snapshotFileName(name string, ts time.Time) string {
	return fmt.Sprintf("%016x-%s%s", xxhash.Sum64String(name), strconv.FormatInt(ts.UnixNano(), 10), fileExt)
}

// isSnapshotFile reports whether a directory entry looks like a snapshot.
func isSnapshotFile(name string) bool {
	return strings.HasSuffix(name, fileExt) && !strings.HasPrefix(name, ".")
}
