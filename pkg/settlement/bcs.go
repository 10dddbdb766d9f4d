package settlement

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrPayloadTooLarge is returned when a payload exceeds the serialization budget.
var ErrPayloadTooLarge = errors.New("payload exceeds serialization budget")

// EncodeBytes serializes data as a BCS vector<u8>: a ULEB128 length followed by
// the bytes. A positive limit caps the serialized size, length prefix included.
func EncodeBytes(data []byte, limit int) ([]byte, error) {
	out := make([]byte, 0, binary.MaxVarintLen64+len(data))
	out = binary.AppendUvarint(out, uint64(len(data)))
	if limit > 0 && len(out)+len(data) > limit {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(out)+len(data), limit)
	}
	return append(out, data...), nil
}
