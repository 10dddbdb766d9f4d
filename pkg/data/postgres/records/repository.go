package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/initia-labs/batch-submitter/pkg/batch"
	"github.com/initia-labs/batch-submitter/pkg/progress"
)

const uniqueViolation = "23505"

const createTableQuery = `CREATE TABLE IF NOT EXISTS %q (
	ledger_id    VARCHAR(64) NOT NULL,
	batch_index  BIGINT      NOT NULL,
	payload      BYTEA       NOT NULL,
	tx_hash      VARCHAR(64) NOT NULL DEFAULT '',
	l1_height    BIGINT      NOT NULL DEFAULT 0,
	submitted_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (ledger_id, batch_index)
)`

type recordModel struct {
	LedgerID    string    `gorm:"column:ledger_id;primaryKey"`
	BatchIndex  uint64    `gorm:"column:batch_index;primaryKey;autoIncrement:false"`
	Payload     []byte    `gorm:"column:payload"`
	TxHash      string    `gorm:"column:tx_hash"`
	L1Height    int64     `gorm:"column:l1_height"`
	SubmittedAt time.Time `gorm:"column:submitted_at"`
}

func (m *recordModel) toRecord() *batch.Record {
	return &batch.Record{
		LedgerID:    m.LedgerID,
		Index:       m.BatchIndex,
		Payload:     m.Payload,
		TxHash:      m.TxHash,
		L1Height:    m.L1Height,
		SubmittedAt: m.SubmittedAt,
	}
}

// Repository stores batch records in a Postgres table keyed by (ledger_id, batch_index).
type Repository struct {
	db    *gorm.DB
	table string
}

var _ progress.Store = (*Repository)(nil)

// NewRepository returns a repository writing to table. Call Initialize before use.
func NewRepository(db *gorm.DB, table string) *Repository {
	return &Repository{db: db, table: table}
}

// Initialize creates the records table if it does not exist.
func (r *Repository) Initialize(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Exec(fmt.Sprintf(createTableQuery, r.table)).Error; err != nil {
		return fmt.Errorf("failed to create batch records table: %w", err)
	}
	return nil
}

// Latest returns the record with the highest batch index for ledgerID.
func (r *Repository) Latest(ctx context.Context, ledgerID string) (*batch.Record, bool, error) {
	var m recordModel
	err := r.db.WithContext(ctx).
		Table(r.table).
		Where("ledger_id = ?", ledgerID).
		Order("batch_index DESC").
		Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read latest batch record: %w", err)
	}
	return m.toRecord(), true, nil
}

// Append inserts rec. The composite primary key rejects a second record for the
// same index, reported as progress.ErrDuplicateIndex.
func (r *Repository) Append(ctx context.Context, rec *batch.Record) error {
	m := recordModel{
		LedgerID:    rec.LedgerID,
		BatchIndex:  rec.Index,
		Payload:     rec.Payload,
		TxHash:      rec.TxHash,
		L1Height:    rec.L1Height,
		SubmittedAt: rec.SubmittedAt,
	}
	if err := r.db.WithContext(ctx).Table(r.table).Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: ledger %s index %d", progress.ErrDuplicateIndex, rec.LedgerID, rec.Index)
		}
		return fmt.Errorf("failed to insert batch record %d: %w", rec.Index, err)
	}
	return nil
}

// DeleteRecords removes every record of ledgerID.
func (r *Repository) DeleteRecords(ctx context.Context, ledgerID string) error {
	err := r.db.WithContext(ctx).
		Table(r.table).
		Where("ledger_id = ?", ledgerID).
		Delete(&recordModel{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete batch records: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
