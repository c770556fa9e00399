package snapshot

import (
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

// Codec identifies how a snapshot payload is compressed.
type Codec uint8

const (
	CodecNone Codec = iota
	CodecSnappy
	CodecZstd
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecSnappy:
		return "snappy"
	case CodecZstd:
		return "zstd"
	}
	return fmt.Sprintf("Codec(%d)", uint8(c))
}

// ParseCodec accepts "none", "snappy" or "zstd", case-insensitively.
// An empty name means CodecNone.
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CodecNone, nil
	case "snappy":
		return CodecSnappy, nil
	case "zstd":
		return CodecZstd, nil
	}
	return CodecNone, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

// compressor holds the zstd state shared by a store's reads and writes.
type compressor struct {
	mu  sync.Mutex
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCompressor() (*compressor, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ZSTD encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to create ZSTD decoder: %w", err)
	}

	return &compressor{enc: enc, dec: dec}, nil
}

func (c *compressor) compress(data []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecNone:
		return data, nil
	case CodecSnappy:
		return snappy.Encode(nil, data), nil
	case CodecZstd:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.enc.EncodeAll(data, nil), nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
}

func (c *compressor) decompress(data []byte, codec Codec, rawLen int) ([]byte, error) {
	switch codec {
	case CodecNone:
		return data, nil
	case CodecSnappy:
		n, err := snappy.DecodedLen(data)
		if err != nil || n != rawLen {
			return nil, fmt.Errorf("%w: bad snappy payload", ErrCorrupt)
		}
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return out, nil
	case CodecZstd:
		c.mu.Lock()
		defer c.mu.Unlock()
		out, err := c.dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
}

func (c *compressor) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enc != nil {
		c.enc.Close()
		c.enc = nil
	}
	if c.dec != nil {
		c.dec.Close()
		c.dec = nil
	}
}
