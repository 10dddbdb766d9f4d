package utils

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// StripHexPrefix removes a leading 0x or 0X.
func StripHexPrefix(hexStr string) string {
	if len(hexStr) >= 2 && (hexStr[0:2] == "0x" || hexStr[0:2] == "0X") {
		return hexStr[2:]
	}
	return hexStr
}

// HexToBytes32 converts a hex string (with or without 0x prefix) to a 32-byte array.
// Unlike address helpers it neither pads nor trims: the input must be exactly 64 hex characters.
func HexToBytes32(hexStr string) ([32]byte, error) {
	hexStr = StripHexPrefix(strings.TrimSpace(hexStr))
	if len(hexStr) != 64 {
		return [32]byte{}, fmt.Errorf("expected 64 hex characters, got %d", len(hexStr))
	}
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return [32]byte{}, err
	}
	var result [32]byte
	copy(result[:], bytes)
	return result, nil
}

// ParseHeight parses a decimal block height. Surrounding whitespace is ignored.
func ParseHeight(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty height")
	}
	h, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid height %q: %w", s, err)
	}
	return h, nil
}
