package settlement

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		size       int
		wantPrefix []byte
	}{
		{name: "empty", size: 0, wantPrefix: []byte{0x00}},
		{name: "single byte length", size: 127, wantPrefix: []byte{0x7f}},
		{name: "two byte length boundary", size: 128, wantPrefix: []byte{0x80, 0x01}},
		{name: "two byte length", size: 300, wantPrefix: []byte{0xac, 0x02}},
		{name: "three byte length", size: 16384, wantPrefix: []byte{0x80, 0x80, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data := bytes.Repeat([]byte{0xab}, tt.size)
			got, err := EncodeBytes(data, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrefix, got[:len(tt.wantPrefix)])
			assert.Equal(t, data, got[len(tt.wantPrefix):])
		})
	}
}

func TestEncodeBytes_Limit(t *testing.T) {
	t.Parallel()

	// One length byte plus 100 data bytes.
	out, err := EncodeBytes(make([]byte, 100), 101)
	require.NoError(t, err)
	assert.Len(t, out, 101)

	_, err = EncodeBytes(make([]byte, 100), 100)
	require.ErrorIs(t, err, ErrPayloadTooLarge)

	// 200 needs a two-byte length prefix.
	_, err = EncodeBytes(make([]byte, 200), 201)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
	_, err = EncodeBytes(make([]byte, 200), 202)
	require.NoError(t, err)
}
