package records

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/initia-labs/batch-submitter/pkg/batch"
	"github.com/initia-labs/batch-submitter/pkg/progress"
)

const keyPrefix = "b/"

// Store keeps batch records in an embedded badger database for single-node
// deployments. Keys are b/<ledgerID>/<big-endian index>, so a reverse prefix
// scan yields the latest record first.
type Store struct {
	db *badger.DB
}

var _ progress.Store = (*Store)(nil)

type storedRecord struct {
	Payload     []byte    `json:"payload"`
	TxHash      string    `json:"tx_hash"`
	L1Height    int64     `json:"l1_height"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Open opens (or creates) the database in dir. An empty dir opens an in-memory database.
func Open(dir string, log *zap.SugaredLogger) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{log: log})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Initialize is a no-op; badger needs no schema.
func (s *Store) Initialize(context.Context) error {
	return nil
}

func ledgerPrefix(ledgerID string) []byte {
	return []byte(keyPrefix + ledgerID + "/")
}

func recordKey(ledgerID string, index uint64) []byte {
	return binary.BigEndian.AppendUint64(ledgerPrefix(ledgerID), index)
}

// Latest returns the record with the highest batch index for ledgerID.
func (s *Store) Latest(_ context.Context, ledgerID string) (*batch.Record, bool, error) {
	prefix := ledgerPrefix(ledgerID)
	var rec *batch.Record

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past every index of this ledger; reverse iteration lands on the largest key.
		seek := append(append([]byte{}, prefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.Key()
			// Keys of a ledger whose ID extends this one share the prefix but not the length.
			if len(key) != len(prefix)+8 {
				continue
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			decoded, err := decodeRecord(ledgerID, binary.BigEndian.Uint64(key[len(prefix):]), value)
			if err != nil {
				return err
			}
			rec = decoded
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read latest batch record: %w", err)
	}
	return rec, rec != nil, nil
}

// Append writes rec in a transaction that fails if the index already exists.
func (s *Store) Append(_ context.Context, rec *batch.Record) error {
	value, err := json.Marshal(storedRecord{
		Payload:     rec.Payload,
		TxHash:      rec.TxHash,
		L1Height:    rec.L1Height,
		SubmittedAt: rec.SubmittedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode batch record %d: %w", rec.Index, err)
	}

	key := recordKey(rec.LedgerID, rec.Index)
	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return fmt.Errorf("%w: ledger %s index %d", progress.ErrDuplicateIndex, rec.LedgerID, rec.Index)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(key, value)
	})
	if err != nil {
		if errors.Is(err, progress.ErrDuplicateIndex) {
			return err
		}
		return fmt.Errorf("failed to insert batch record %d: %w", rec.Index, err)
	}
	return nil
}

// DeleteRecords removes every record of ledgerID.
func (s *Store) DeleteRecords(_ context.Context, ledgerID string) error {
	prefix := ledgerPrefix(ledgerID)
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			// Skip ledgers whose ID extends this one.
			if key := it.Item().Key(); len(key) == len(prefix)+8 {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to list batch records: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("failed to delete batch records: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to delete batch records: %w", err)
	}
	return nil
}

func decodeRecord(ledgerID string, index uint64, value []byte) (*batch.Record, error) {
	var stored storedRecord
	if err := json.Unmarshal(value, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode batch record %d: %w", index, err)
	}
	return &batch.Record{
		LedgerID:    ledgerID,
		Index:       index,
		Payload:     stored.Payload,
		TxHash:      stored.TxHash,
		L1Height:    stored.L1Height,
		SubmittedAt: stored.SubmittedAt,
	}, nil
}

// badgerLogger adapts zap to badger.Logger.
type badgerLogger struct {
	log *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) { l.log.Errorf(format, args...) }

func (l badgerLogger) Warningf(format string, args ...interface{}) { l.log.Warnf(format, args...) }

func (l badgerLogger) Infof(format string, args ...interface{}) { l.log.Debugf(format, args...) }

func (l badgerLogger) Debugf(format string, args ...interface{}) { l.log.Debugf(format, args...) }
