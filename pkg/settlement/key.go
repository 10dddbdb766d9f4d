package settlement

import (
	"crypto/sha256"
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/bech32"

	"github.com/initia-labs/batch-submitter/pkg/utils"
)

// Key is a secp256k1 signing key.
type Key struct {
	priv *btcec.PrivateKey
}

// KeyFromHex parses a 32-byte hex private key, with or without 0x prefix.
func KeyFromHex(s string) (*Key, error) {
	raw, err := utils.HexToBytes32(s)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	priv, _ := btcec.PrivKeyFromBytes(raw[:])
	if priv.Key.IsZero() {
		return nil, fmt.Errorf("invalid private key: zero scalar")
	}
	return &Key{priv: priv}, nil
}

// PubKey returns the 33-byte compressed public key.
func (k *Key) PubKey() []byte {
	return k.priv.PubKey().SerializeCompressed()
}

// Address returns the bech32 account address for hrp.
func (k *Key) Address(hrp string) (string, error) {
	conv, err := bech32.ConvertBits(btcutil.Hash160(k.PubKey()), 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("failed to convert address bits: %w", err)
	}
	addr, err := bech32.Encode(hrp, conv)
	if err != nil {
		return "", fmt.Errorf("failed to encode address: %w", err)
	}
	return addr, nil
}

// Sign signs sha256(msg) and returns the 64-byte r||s form Cosmos expects,
// with S normalized to the lower half of the curve order.
func (k *Key) Sign(msg []byte) ([]byte, error) {
	hash := sha256.Sum256(msg)
	der := ecdsa.Sign(k.priv, hash[:]).Serialize()

	var sig struct{ R, S *big.Int }
	if _, err := asn1.Unmarshal(der, &sig); err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", err)
	}
	out := make([]byte, 64)
	sig.R.FillBytes(out[:32])
	sig.S.FillBytes(out[32:])
	return out, nil
}
