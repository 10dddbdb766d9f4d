package settlement

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	secp256k1PubKeyTypeURL = "/cosmos.crypto.secp256k1.PubKey"
	signModeDirect         = 1
)

// Coin is an amount of a single denomination. Amount is a decimal integer string.
type Coin struct {
	Denom  string
	Amount string
}

func (c Coin) marshal() []byte {
	var b []byte
	b = appendString(b, 1, c.Denom)
	return appendString(b, 2, c.Amount)
}

// Fee is the fee and gas limit attached to a transaction.
type Fee struct {
	Amount   []Coin
	GasLimit uint64
}

func (f Fee) marshal() []byte {
	var b []byte
	for _, c := range f.Amount {
		b = appendMessage(b, 1, c.marshal())
	}
	return appendUint(b, 2, f.GasLimit)
}

// unsignedTx holds the two signed parts of a SIGN_MODE_DIRECT transaction.
type unsignedTx struct {
	BodyBytes     []byte
	AuthInfoBytes []byte
}

// txParams are the signer-specific inputs to a transaction.
type txParams struct {
	PubKey   []byte // 33-byte compressed secp256k1
	Sequence uint64
	Fee      Fee
	Memo     string
}

func buildUnsignedTx(msgs []MsgExecute, p txParams) unsignedTx {
	var body []byte
	for _, m := range msgs {
		body = appendMessage(body, 1, marshalAny(MsgExecuteTypeURL, m.Marshal()))
	}
	body = appendString(body, 2, p.Memo)

	var pubKey []byte
	pubKey = appendBytes(pubKey, 1, p.PubKey)

	var single []byte
	single = appendUint(single, 1, signModeDirect)
	var modeInfo []byte
	modeInfo = appendMessage(modeInfo, 1, single)

	var signerInfo []byte
	signerInfo = appendMessage(signerInfo, 1, marshalAny(secp256k1PubKeyTypeURL, pubKey))
	signerInfo = appendMessage(signerInfo, 2, modeInfo)
	signerInfo = appendUint(signerInfo, 3, p.Sequence)

	var authInfo []byte
	authInfo = appendMessage(authInfo, 1, signerInfo)
	authInfo = appendMessage(authInfo, 2, p.Fee.marshal())

	return unsignedTx{BodyBytes: body, AuthInfoBytes: authInfo}
}

// signDoc returns the bytes a SIGN_MODE_DIRECT signer signs.
func (u unsignedTx) signDoc(chainID string, accountNumber uint64) []byte {
	var b []byte
	b = appendBytes(b, 1, u.BodyBytes)
	b = appendBytes(b, 2, u.AuthInfoBytes)
	b = appendString(b, 3, chainID)
	return appendUint(b, 4, accountNumber)
}

// raw returns the TxRaw encoding broadcast to the chain.
func (u unsignedTx) raw(signature []byte) []byte {
	var b []byte
	b = appendBytes(b, 1, u.BodyBytes)
	b = appendBytes(b, 2, u.AuthInfoBytes)
	return appendMessage(b, 3, signature)
}

// TxHash returns the CometBFT hash of tx bytes in upper-case hex.
func TxHash(tx []byte) string {
	sum := sha256.Sum256(tx)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
