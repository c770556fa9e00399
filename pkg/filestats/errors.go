package filestats

import "errors"

var (
	// ErrAllocationFailed is returned when the buffer for an export could not be obtained
	ErrAllocationFailed = errors.New("export buffer allocation failed")
	// ErrInvalidExport is returned when decoding a buffer that is not an export
	ErrInvalidExport = errors.New("invalid statistics export")
)
