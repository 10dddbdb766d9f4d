package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/initia-labs/batch-submitter/pkg/batch"
)

// ErrDuplicateIndex is returned by Append when a record already exists for the
// same ledger and batch index.
var ErrDuplicateIndex = errors.New("batch index already recorded")

// Store abstracts batch record persistence across different data stores. The
// store is the single source of truth for which batches were submitted: the
// next batch to submit is always the highest recorded index plus one.
type Store interface {
	// Initialize ensures the underlying storage is ready (creates tables, schemas, etc.). This
	// should be idempotent and safe to call multiple times.
	Initialize(ctx context.Context) error

	// Latest returns the record with the highest batch index for the ledger. If no record
	// exists, exists is false and the record is nil.
	Latest(ctx context.Context, ledgerID string) (record *batch.Record, exists bool, err error)

	// Append persists a new record. Implementations that can detect an existing record for the
	// same (ledger, index) return ErrDuplicateIndex.
	Append(ctx context.Context, record *batch.Record) error
}

// Resume reads the latest record for the ledger and returns the next batch index
// together with that record (nil when the store is empty).
func Resume(ctx context.Context, s Store, ledgerID string) (uint64, *batch.Record, error) {
	latest, exists, err := s.Latest(ctx, ledgerID)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read latest batch record: %w", err)
	}
	if !exists {
		return 0, nil, nil
	}
	if latest.LedgerID != ledgerID {
		return 0, nil, fmt.Errorf("latest record belongs to ledger %q, expected %q", latest.LedgerID, ledgerID)
	}
	return batch.NextIndex(latest), latest, nil
}
