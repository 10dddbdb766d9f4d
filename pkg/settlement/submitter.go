package settlement

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	ctypes "github.com/tendermint/tendermint/rpc/core/types"
	"github.com/tendermint/tendermint/types"
	"go.uber.org/zap"

	"github.com/initia-labs/batch-submitter/pkg/metrics"
)

var (
	ErrCheckTx        = errors.New("transaction rejected by CheckTx")
	ErrDeliverTx      = errors.New("transaction failed in block")
	ErrConfirmTimeout = errors.New("transaction not confirmed in time")
)

// Client is the subset of the CometBFT RPC client used for settlement.
// *rpc/client/http.HTTP satisfies it.
type Client interface {
	ABCIQuery(ctx context.Context, path string, data tmbytes.HexBytes) (*ctypes.ResultABCIQuery, error)
	BroadcastTxSync(ctx context.Context, tx types.Tx) (*ctypes.ResultBroadcastTx, error)
	Tx(ctx context.Context, hash []byte, prove bool) (*ctypes.ResultTx, error)
}

// Config holds the L1 transaction parameters.
type Config struct {
	ChainID       string
	AddressPrefix string
	GasLimit      uint64
	GasPrice      string // fee per unit of gas, decimal
	FeeDenom      string
	Memo          string

	// MaxPayloadBytes caps the serialized payload. Zero disables the cap.
	MaxPayloadBytes int

	ConfirmPollInterval time.Duration
	ConfirmTimeout      time.Duration
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ChainID == "" {
		return errors.New("invalid settlement config: chain ID is required")
	}
	if c.AddressPrefix == "" {
		return errors.New("invalid settlement config: address prefix is required")
	}
	if c.GasLimit == 0 {
		return errors.New("invalid settlement config: gas limit must be greater than 0")
	}
	if c.ConfirmPollInterval <= 0 || c.ConfirmTimeout <= 0 {
		return errors.New("invalid settlement config: confirm poll interval and timeout must be positive")
	}
	if _, err := feeAmount(c.GasLimit, c.GasPrice); err != nil {
		return fmt.Errorf("invalid settlement config: %w", err)
	}
	return nil
}

// feeAmount returns ceil(gasLimit * gasPrice) as a decimal integer string.
func feeAmount(gasLimit uint64, gasPrice string) (string, error) {
	if gasPrice == "" {
		return "0", nil
	}
	price, ok := new(big.Rat).SetString(gasPrice)
	if !ok || price.Sign() < 0 {
		return "", fmt.Errorf("invalid gas price %q", gasPrice)
	}
	total := new(big.Rat).Mul(price, new(big.Rat).SetInt(new(big.Int).SetUint64(gasLimit)))
	q, r := new(big.Int).QuoRem(total.Num(), total.Denom(), new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q.String(), nil
}

// Receipt identifies a confirmed settlement transaction.
type Receipt struct {
	TxHash string
	Height int64
}

// Submitter signs and broadcasts record_batch transactions and waits for their inclusion.
// It is not safe for concurrent use; the submission loop is its only caller.
type Submitter struct {
	client  Client
	key     *Key
	sender  string
	cfg     Config
	fee     Fee
	log     *zap.SugaredLogger
	metrics *metrics.Metrics

	// account caches the signer's number and next sequence. It is reset after
	// any failure so the next submission re-reads it from the chain.
	account *Account
}

// New validates cfg and returns a Submitter signing with key.
func New(client Client, key *Key, cfg Config, log *zap.SugaredLogger, m *metrics.Metrics) (*Submitter, error) {
	if client == nil {
		return nil, errors.New("invalid settlement client: nil")
	}
	if key == nil {
		return nil, errors.New("invalid settlement key: nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sender, err := key.Address(cfg.AddressPrefix)
	if err != nil {
		return nil, err
	}
	amount, err := feeAmount(cfg.GasLimit, cfg.GasPrice)
	if err != nil {
		return nil, err
	}
	fee := Fee{GasLimit: cfg.GasLimit}
	if amount != "0" {
		fee.Amount = []Coin{{Denom: cfg.FeeDenom, Amount: amount}}
	}
	return &Submitter{
		client:  client,
		key:     key,
		sender:  sender,
		cfg:     cfg,
		fee:     fee,
		log:     log,
		metrics: m,
	}, nil
}

// Sender returns the bech32 address transactions are sent from.
func (s *Submitter) Sender() string {
	return s.sender
}

// Submit records payload for ledgerID on L1 and blocks until the transaction
// is included in a block or fails.
func (s *Submitter) Submit(ctx context.Context, ledgerID string, payload []byte) (*Receipt, error) {
	arg, err := EncodeBytes(payload, s.cfg.MaxPayloadBytes)
	if err != nil {
		return nil, err
	}

	if s.account == nil {
		acc, err := queryAccount(ctx, s.client, s.sender)
		if err != nil {
			return nil, err
		}
		s.account = &acc
	}

	tx := buildUnsignedTx(
		[]MsgExecute{NewRecordBatchMsg(s.sender, ledgerID, arg)},
		txParams{
			PubKey:   s.key.PubKey(),
			Sequence: s.account.Sequence,
			Fee:      s.fee,
			Memo:     s.cfg.Memo,
		},
	)
	sig, err := s.key.Sign(tx.signDoc(s.cfg.ChainID, s.account.Number))
	if err != nil {
		return nil, err
	}
	raw := tx.raw(sig)
	hash := TxHash(raw)

	res, err := s.client.BroadcastTxSync(ctx, types.Tx(raw))
	if err == nil && res.Code != 0 {
		err = fmt.Errorf("%w: code %d (%s): %s", ErrCheckTx, res.Code, res.Codespace, res.Log)
	}
	s.metrics.RecordBroadcast(err)
	if err != nil {
		s.account = nil
		return nil, fmt.Errorf("failed to broadcast tx %s: %w", hash, err)
	}
	s.account.Sequence++

	s.log.Debugw("broadcast settlement tx",
		"txHash", hash,
		"sequence", s.account.Sequence-1,
		"payloadBytes", len(payload),
	)

	start := time.Now()
	receipt, err := s.awaitInclusion(ctx, hash)
	if err != nil {
		s.account = nil
		return nil, err
	}
	s.metrics.ObserveConfirmDuration(time.Since(start).Seconds())
	return receipt, nil
}

func (s *Submitter) awaitInclusion(ctx context.Context, hash string) (*Receipt, error) {
	hashBytes, err := hex.DecodeString(hash)
	if err != nil {
		return nil, err
	}

	deadline := time.NewTimer(s.cfg.ConfirmTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.cfg.ConfirmPollInterval)
	defer ticker.Stop()

	for {
		res, err := s.client.Tx(ctx, hashBytes, false)
		if err == nil {
			if res.TxResult.Code != 0 {
				return nil, fmt.Errorf("%w: tx %s at height %d: code %d (%s): %s",
					ErrDeliverTx, hash, res.Height, res.TxResult.Code, res.TxResult.Codespace, res.TxResult.Log)
			}
			return &Receipt{TxHash: hash, Height: res.Height}, nil
		}
		// Lookup errors are expected until the tx lands in a block.
		s.log.Debugw("settlement tx not yet included", "txHash", hash, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("%w: tx %s after %s", ErrConfirmTimeout, hash, s.cfg.ConfirmTimeout)
		case <-ticker.C:
		}
	}
}
