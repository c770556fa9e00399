package snapshot

import "errors"

var (
	// ErrUnknownCodec is returned when an unsupported compression codec is specified
	ErrUnknownCodec = errors.New("unknown compression codec")
	// ErrCorrupt is returned when a snapshot file fails validation
	ErrCorrupt = errors.New("corrupt snapshot")
	// ErrNotFound is returned when no snapshot exists for a file
	ErrNotFound = errors.New("snapshot not found")
	// ErrClosed is returned when using a closed store
	ErrClosed = errors.New("snapshot store closed")
)
