package inmemory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/initia-labs/batch-submitter/pkg/batch"
	"github.com/initia-labs/batch-submitter/pkg/progress"
)

var _ progress.Store = (*RecordsRepository)(nil)

// RecordsRepository is a thread-safe in-memory implementation of progress.Store.
// Records are lost on restart, so it is only meant for tests and local dry runs.
type RecordsRepository struct {
	mu      sync.Mutex
	records map[string]map[uint64]batch.Record
	latest  map[string]uint64
}

// NewRecordsRepository creates an empty in-memory repository.
func NewRecordsRepository() *RecordsRepository {
	return &RecordsRepository{
		records: make(map[string]map[uint64]batch.Record),
		latest:  make(map[string]uint64),
	}
}

func (r *RecordsRepository) Initialize(_ context.Context) error {
	return nil
}

func (r *RecordsRepository) Latest(_ context.Context, ledgerID string) (*batch.Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byIndex, ok := r.records[ledgerID]
	if !ok || len(byIndex) == 0 {
		return nil, false, nil
	}
	rec := copyRecord(byIndex[r.latest[ledgerID]])
	return &rec, true, nil
}

func (r *RecordsRepository) Append(_ context.Context, record *batch.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byIndex, ok := r.records[record.LedgerID]
	if !ok {
		byIndex = make(map[uint64]batch.Record)
		r.records[record.LedgerID] = byIndex
	}
	if _, exists := byIndex[record.Index]; exists {
		return progress.ErrDuplicateIndex
	}
	byIndex[record.Index] = copyRecord(*record)
	if len(byIndex) == 1 || record.Index > r.latest[record.LedgerID] {
		r.latest[record.LedgerID] = record.Index
	}
	return nil
}

// Records returns all records of a ledger ordered by index.
func (r *RecordsRepository) Records(ledgerID string) []batch.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	byIndex := r.records[ledgerID]
	out := make([]batch.Record, 0, len(byIndex))
	for _, rec := range byIndex {
		out = append(out, copyRecord(rec))
	}
	slices.SortFunc(out, func(a, b batch.Record) int {
		return cmp.Compare(a.Index, b.Index)
	})
	return out
}

func copyRecord(rec batch.Record) batch.Record {
	rec.Payload = append([]byte(nil), rec.Payload...)
	return rec
}

// DeleteRecords removes every record of a ledger.
func (r *RecordsRepository) DeleteRecords(_ context.Context, ledgerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, ledgerID)
	delete(r.latest, ledgerID)
	return nil
}
