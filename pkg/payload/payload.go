package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec names a compression algorithm.
type Codec string

const (
	CodecGzip Codec = "gzip"
	CodecZstd Codec = "zstd"
)

// maxDecodedSize bounds Decode output so a corrupt payload cannot exhaust memory.
const maxDecodedSize = 256 << 20

var (
	ErrEmptyBulk    = errors.New("no blocks to encode")
	ErrUnknownCodec = errors.New("unknown compression codec")
)

// ParseCodec returns the codec named s.
func ParseCodec(s string) (Codec, error) {
	switch c := Codec(s); c {
	case CodecGzip, CodecZstd:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCodec, s)
	}
}

// Builder turns raw block bulks into compressed batch payloads. Build is
// deterministic: the same blocks always produce the same bytes.
type Builder struct {
	codec Codec
	zenc  *zstd.Encoder
	zdec  *zstd.Decoder
}

// NewBuilder returns a Builder for codec. Close releases zstd resources.
func NewBuilder(codec Codec) (*Builder, error) {
	b := &Builder{codec: codec}
	switch codec {
	case CodecGzip:
	case CodecZstd:
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderConcurrency(1),
			zstd.WithEncoderLevel(zstd.SpeedDefault),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(maxDecodedSize),
		)
		if err != nil {
			_ = enc.Close()
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		b.zenc, b.zdec = enc, dec
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, codec)
	}
	return b, nil
}

// Codec returns the builder's codec.
func (b *Builder) Codec() Codec {
	return b.codec
}

// Build frames blocks as a JSON array of base64 strings and compresses it.
// It returns the payload and the size of the uncompressed frame.
func (b *Builder) Build(blocks [][]byte) ([]byte, int, error) {
	if len(blocks) == 0 {
		return nil, 0, ErrEmptyBulk
	}
	frame, err := json.Marshal(blocks)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to frame blocks: %w", err)
	}

	switch b.codec {
	case CodecZstd:
		return b.zenc.EncodeAll(frame, make([]byte, 0, len(frame)/2)), len(frame), nil
	default:
		var buf bytes.Buffer
		zw, err := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		if _, err := zw.Write(frame); err != nil {
			return nil, 0, fmt.Errorf("failed to compress blocks: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, 0, fmt.Errorf("failed to compress blocks: %w", err)
		}
		return buf.Bytes(), len(frame), nil
	}
}

// Decode reverses Build and returns the raw blocks.
func (b *Builder) Decode(payload []byte) ([][]byte, error) {
	var frame []byte
	switch b.codec {
	case CodecZstd:
		out, err := b.zdec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress payload: %w", err)
		}
		frame = out
	default:
		zr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to decompress payload: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(io.LimitReader(zr, maxDecodedSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to decompress payload: %w", err)
		}
		if len(out) > maxDecodedSize {
			return nil, fmt.Errorf("decompressed payload exceeds %d bytes", maxDecodedSize)
		}
		frame = out
	}

	var blocks [][]byte
	if err := json.Unmarshal(frame, &blocks); err != nil {
		return nil, fmt.Errorf("failed to unframe blocks: %w", err)
	}
	return blocks, nil
}

// Close releases codec resources.
func (b *Builder) Close() {
	if b.zenc != nil {
		_ = b.zenc.Close()
	}
	if b.zdec != nil {
		b.zdec.Close()
	}
}
