package messages

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/initia-labs/batch-submitter/pkg/batch"
)

const (
	BatchSubmittedType    = "batch.submitted"
	BatchSubmittedVersion = 1
)

// BatchSubmitted announces a batch that was confirmed on L1 and persisted.
// The payload itself is not included, only its size.
type BatchSubmitted struct {
	LedgerID    string    `json:"ledger_id"`
	BatchIndex  uint64    `json:"batch_index"`
	StartHeight uint64    `json:"start_height"`
	EndHeight   uint64    `json:"end_height"`
	PayloadSize int       `json:"payload_size"`
	TxHash      string    `json:"tx_hash"`
	L1Height    int64     `json:"l1_height"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// NewBatchSubmitted builds the event for rec covering r.
func NewBatchSubmitted(rec *batch.Record, r batch.Range) BatchSubmitted {
	return BatchSubmitted{
		LedgerID:    rec.LedgerID,
		BatchIndex:  rec.Index,
		StartHeight: r.Start,
		EndHeight:   r.End,
		PayloadSize: len(rec.Payload),
		TxHash:      rec.TxHash,
		L1Height:    rec.L1Height,
		SubmittedAt: rec.SubmittedAt.UTC(),
	}
}

// Key is the partitioning key, "<ledger>/<index>".
func (e BatchSubmitted) Key() string {
	return fmt.Sprintf("%s/%d", e.LedgerID, e.BatchIndex)
}

// Marshal returns the enveloped JSON encoding.
func (e BatchSubmitted) Marshal() ([]byte, error) {
	return Seal(BatchSubmittedType, BatchSubmittedVersion, e.Key(), e.SubmittedAt, e)
}

// ParseBatchSubmitted decodes an enveloped BatchSubmitted event.
func ParseBatchSubmitted(b []byte) (*BatchSubmitted, error) {
	env, err := Open(b)
	if err != nil {
		return nil, err
	}
	if env.Type != BatchSubmittedType {
		return nil, fmt.Errorf("unexpected event type %q", env.Type)
	}
	if env.Version != BatchSubmittedVersion {
		return nil, fmt.Errorf("unsupported %s version %d", env.Type, env.Version)
	}
	var e BatchSubmitted
	if err := json.Unmarshal(env.Data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", env.Type, err)
	}
	return &e, nil
}
