package payload

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlocks(n int) [][]byte {
	blocks := make([][]byte, n)
	for i := range blocks {
		blocks[i] = bytes.Repeat([]byte(fmt.Sprintf("block-%d;", i)), 32)
	}
	return blocks
}

func TestParseCodec(t *testing.T) {
	t.Parallel()

	c, err := ParseCodec("gzip")
	require.NoError(t, err)
	assert.Equal(t, CodecGzip, c)

	c, err = ParseCodec("zstd")
	require.NoError(t, err)
	assert.Equal(t, CodecZstd, c)

	_, err = ParseCodec("brotli")
	require.ErrorIs(t, err, ErrUnknownCodec)
}

func TestNewBuilder_UnknownCodec(t *testing.T) {
	t.Parallel()

	_, err := NewBuilder(Codec("lz4"))
	require.ErrorIs(t, err, ErrUnknownCodec)
}

func TestBuilder_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, codec := range []Codec{CodecGzip, CodecZstd} {
		t.Run(string(codec), func(t *testing.T) {
			t.Parallel()

			b, err := NewBuilder(codec)
			require.NoError(t, err)
			defer b.Close()

			blocks := testBlocks(50)
			payload, rawSize, err := b.Build(blocks)
			require.NoError(t, err)
			assert.Less(t, len(payload), rawSize, "repetitive blocks should compress")

			decoded, err := b.Decode(payload)
			require.NoError(t, err)
			assert.Equal(t, blocks, decoded)
		})
	}
}

func TestBuilder_Deterministic(t *testing.T) {
	t.Parallel()

	for _, codec := range []Codec{CodecGzip, CodecZstd} {
		t.Run(string(codec), func(t *testing.T) {
			t.Parallel()

			first, err := NewBuilder(codec)
			require.NoError(t, err)
			defer first.Close()
			second, err := NewBuilder(codec)
			require.NoError(t, err)
			defer second.Close()

			blocks := testBlocks(10)
			a, _, err := first.Build(blocks)
			require.NoError(t, err)
			again, _, err := first.Build(blocks)
			require.NoError(t, err)
			b, _, err := second.Build(blocks)
			require.NoError(t, err)

			assert.Equal(t, a, again)
			assert.Equal(t, a, b)
		})
	}
}

func TestBuilder_EmptyBulk(t *testing.T) {
	t.Parallel()

	b, err := NewBuilder(CodecGzip)
	require.NoError(t, err)

	_, _, err = b.Build(nil)
	require.ErrorIs(t, err, ErrEmptyBulk)
}

func TestBuilder_DecodeGarbage(t *testing.T) {
	t.Parallel()

	for _, codec := range []Codec{CodecGzip, CodecZstd} {
		b, err := NewBuilder(codec)
		require.NoError(t, err)
		_, err = b.Decode([]byte("not a payload"))
		require.Error(t, err, codec)
		b.Close()
	}
}
