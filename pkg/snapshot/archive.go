package snapshot

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	// Magic marks a snapshot file ("FSTARCH1")
	Magic = uint64(0x4653544152434831)
	// CurrentVersion is the current archive format version
	CurrentVersion = uint32(1)

	// magic, version, codec, name length
	fixedPrefixSize = 8 + 4 + 1 + 2
	// timestamp, raw length, payload length
	fixedMiddleSize = 8 + 4 + 4
	checksumSize    = 8
)

// Snapshot is one archived export of a file's statistics.
type Snapshot struct {
	Name      string
	Timestamp time.Time
	Codec     Codec
	// Data is the raw export as produced by the collector
	Data []byte
}

// encodeArchive lays out a snapshot with an already compressed payload.
func encodeArchive(s *Snapshot, payload []byte) ([]byte, error) {
	if len(s.Name) > math.MaxUint16 {
		return nil, fmt.Errorf("file name of %d bytes is too long", len(s.Name))
	}
	if uint64(len(s.Data)) > math.MaxUint32 || uint64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("export of %d bytes is too large", len(s.Data))
	}

	size := fixedPrefixSize + len(s.Name) + fixedMiddleSize + len(payload) + checksumSize
	buf := make([]byte, size)

	binary.LittleEndian.PutUint64(buf[0:], Magic)
	binary.LittleEndian.PutUint32(buf[8:], CurrentVersion)
	buf[12] = byte(s.Codec)
	binary.LittleEndian.PutUint16(buf[13:], uint16(len(s.Name)))
	off := fixedPrefixSize
	off += copy(buf[off:], s.Name)

	binary.LittleEndian.PutUint64(buf[off:], uint64(s.Timestamp.UnixNano()))
	binary.LittleEndian.PutUint32(buf[off+8:], uint32(len(s.Data)))
	binary.LittleEndian.PutUint32(buf[off+12:], uint32(len(payload)))
	off += fixedMiddleSize
	off += copy(buf[off:], payload)

	binary.LittleEndian.PutUint64(buf[off:], xxhash.Sum64(s.Data))
	return buf, nil
}

// header is everything in an archive except the payload bytes.
type header struct {
	codec     Codec
	name      string
	timestamp time.Time
	rawLen    int
	payload   []byte
	checksum  uint64
}

func decodeHeader(buf []byte) (*header, error) {
	if len(buf) < fixedPrefixSize {
		return nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}
	if magic := binary.LittleEndian.Uint64(buf[0:]); magic != Magic {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrCorrupt, magic)
	}
	if version := binary.LittleEndian.Uint32(buf[8:]); version != CurrentVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}

	h := &header{codec: Codec(buf[12])}
	if h.codec > CodecZstd {
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, h.codec)
	}

	nameLen := int(binary.LittleEndian.Uint16(buf[13:]))
	off := fixedPrefixSize
	if len(buf) < off+nameLen+fixedMiddleSize {
		return nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}
	h.name = string(buf[off : off+nameLen])
	off += nameLen

	h.timestamp = time.Unix(0, int64(binary.LittleEndian.Uint64(buf[off:])))
	h.rawLen = int(binary.LittleEndian.Uint32(buf[off+8:]))
	payloadLen := int(binary.LittleEndian.Uint32(buf[off+12:]))
	off += fixedMiddleSize

	if len(buf) != off+payloadLen+checksumSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrCorrupt, off+payloadLen+checksumSize, len(buf))
	}
	h.payload = buf[off : off+payloadLen]
	h.checksum = binary.LittleEndian.Uint64(buf[off+payloadLen:])

	return h, nil
}

func decodeArchive(buf []byte, c *compressor) (*Snapshot, error) {
	h, err := decodeHeader(buf)
	if err != nil {
		return nil, err
	}

	data, err := c.decompress(h.payload, h.codec, h.rawLen)
	if err != nil {
		return nil, err
	}
	if len(data) != h.rawLen {
		return nil, fmt.Errorf("%w: expected %d raw bytes, got %d", ErrCorrupt, h.rawLen, len(data))
	}
	if sum := xxhash.Sum64(data); sum != h.checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	return &Snapshot{
		Name:      h.name,
		Timestamp: h.timestamp,
		Codec:     h.codec,
		Data:      data,
	}, nil
}
