package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

// fieldsByNum decodes b and groups the fields by number.
func fieldsByNum(t *testing.T, b []byte) map[protowire.Number][]field {
	t.Helper()

	fields, err := decodeFields(b)
	require.NoError(t, err)
	out := make(map[protowire.Number][]field)
	for _, f := range fields {
		out[f.Num] = append(out[f.Num], f)
	}
	return out
}

func TestNewRecordBatchMsg_Marshal(t *testing.T) {
	t.Parallel()

	arg, err := EncodeBytes([]byte("payload"), 0)
	require.NoError(t, err)
	msg := NewRecordBatchMsg("init1sender", "7", arg)

	got := fieldsByNum(t, msg.Marshal())
	assert.Equal(t, "init1sender", string(got[1][0].Bytes))
	assert.Equal(t, "0x1", string(got[2][0].Bytes))
	assert.Equal(t, "op_batch_inbox", string(got[3][0].Bytes))
	assert.Equal(t, "record_batch", string(got[4][0].Bytes))
	require.Len(t, got[5], 1)
	assert.Equal(t, "7", string(got[5][0].Bytes))
	require.Len(t, got[6], 1)
	assert.Equal(t, arg, got[6][0].Bytes)
}

func TestBuildUnsignedTx(t *testing.T) {
	t.Parallel()

	pub := make([]byte, 33)
	pub[0] = 0x02
	msg := NewRecordBatchMsg("init1sender", "1", []byte{0x01, 0xff})
	tx := buildUnsignedTx([]MsgExecute{msg}, txParams{
		PubKey:   pub,
		Sequence: 9,
		Fee:      Fee{Amount: []Coin{{Denom: "uinit", Amount: "3000"}}, GasLimit: 200000},
		Memo:     "batch 1",
	})

	body := fieldsByNum(t, tx.BodyBytes)
	require.Len(t, body[1], 1)
	anyMsg := fieldsByNum(t, body[1][0].Bytes)
	assert.Equal(t, MsgExecuteTypeURL, string(anyMsg[1][0].Bytes))
	assert.Equal(t, msg.Marshal(), anyMsg[2][0].Bytes)
	assert.Equal(t, "batch 1", string(body[2][0].Bytes))

	auth := fieldsByNum(t, tx.AuthInfoBytes)
	signer := fieldsByNum(t, auth[1][0].Bytes)
	pubAny := fieldsByNum(t, signer[1][0].Bytes)
	assert.Equal(t, secp256k1PubKeyTypeURL, string(pubAny[1][0].Bytes))
	assert.Equal(t, pub, fieldsByNum(t, pubAny[2][0].Bytes)[1][0].Bytes)
	single := fieldsByNum(t, fieldsByNum(t, signer[2][0].Bytes)[1][0].Bytes)
	assert.Equal(t, uint64(signModeDirect), single[1][0].Varint)
	assert.Equal(t, uint64(9), signer[3][0].Varint)

	fee := fieldsByNum(t, auth[2][0].Bytes)
	coin := fieldsByNum(t, fee[1][0].Bytes)
	assert.Equal(t, "uinit", string(coin[1][0].Bytes))
	assert.Equal(t, "3000", string(coin[2][0].Bytes))
	assert.Equal(t, uint64(200000), fee[2][0].Varint)

	doc := fieldsByNum(t, tx.signDoc("initiation-2", 42))
	assert.Equal(t, tx.BodyBytes, doc[1][0].Bytes)
	assert.Equal(t, tx.AuthInfoBytes, doc[2][0].Bytes)
	assert.Equal(t, "initiation-2", string(doc[3][0].Bytes))
	assert.Equal(t, uint64(42), doc[4][0].Varint)

	sig := make([]byte, 64)
	raw := fieldsByNum(t, tx.raw(sig))
	assert.Equal(t, sig, raw[3][0].Bytes)
}

func TestTxHash(t *testing.T) {
	t.Parallel()

	// sha256("")
	assert.Equal(t, "E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855", TxHash(nil))
}

func TestFeeAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		gasLimit uint64
		gasPrice string
		want     string
		wantErr  bool
	}{
		{name: "whole result", gasLimit: 200000, gasPrice: "0.015", want: "3000"},
		{name: "rounds up", gasLimit: 3, gasPrice: "0.5", want: "2"},
		{name: "empty price", gasLimit: 200000, gasPrice: "", want: "0"},
		{name: "zero price", gasLimit: 200000, gasPrice: "0", want: "0"},
		{name: "negative price", gasLimit: 1, gasPrice: "-1", wantErr: true},
		{name: "garbage", gasLimit: 1, gasPrice: "cheap", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := feeAmount(tt.gasLimit, tt.gasPrice)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
