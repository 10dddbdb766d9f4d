package records

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/initia-labs/batch-submitter/pkg/batch"
	"github.com/initia-labs/batch-submitter/pkg/clickhouse"
	"github.com/initia-labs/batch-submitter/pkg/progress"
)

// Repository stores batch records in ClickHouse. It implements progress.Store
// and adds ClickHouse-specific operations.
type Repository interface {
	progress.Store
	DeleteRecords(ctx context.Context, ledgerID string) error
}

var _ Repository = (*repository)(nil)

//go:embed queries/create-table-local.sql
var createTableLocalQuery string

//go:embed queries/create-table.sql
var createTableQuery string

//go:embed queries/insert-record.sql
var insertRecordQuery string

//go:embed queries/count-index.sql
var countIndexQuery string

//go:embed queries/read-latest.sql
var readLatestQuery string

//go:embed queries/delete-records.sql
var deleteRecordsQuery string

type repository struct {
	client    clickhouse.Client
	cluster   string
	database  string
	tableName string
}

// NewRepository creates the records tables if needed and returns the repository.
func NewRepository(
	ctx context.Context,
	client clickhouse.Client,
	cluster, database, tableName string,
) (Repository, error) {
	repo := &repository{client: client, cluster: cluster, database: database, tableName: tableName}
	if err := repo.Initialize(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

// Initialize ensures the records tables exist.
// Schema (local table, replicated; a Distributed table fronts it):
//   - ledger_id, batch_index: sorting key, one logical row per batch
//   - payload: compressed batch bytes
//   - tx_hash, l1_height, submitted_at: settlement receipt
func (r *repository) Initialize(ctx context.Context) error {
	query := fmt.Sprintf(createTableLocalQuery, r.database, r.tableName, r.cluster)
	if err := r.client.Conn().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create batch records local table: %w", err)
	}

	query = fmt.Sprintf(createTableQuery,
		r.database, r.tableName, r.cluster,
		r.database, r.tableName,
		r.cluster, r.database, r.tableName,
	)
	if err := r.client.Conn().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create batch records table: %w", err)
	}

	return nil
}

// Latest returns the record with the highest batch index for ledgerID.
func (r *repository) Latest(ctx context.Context, ledgerID string) (*batch.Record, bool, error) {
	var (
		rec     batch.Record
		payload string
	)
	query := fmt.Sprintf(readLatestQuery, r.database, r.tableName)
	err := r.client.Conn().
		QueryRow(ctx, query, ledgerID).
		Scan(&rec.LedgerID, &rec.Index, &payload, &rec.TxHash, &rec.L1Height, &rec.SubmittedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read latest batch record: %w", err)
	}
	rec.Payload = []byte(payload)
	return &rec, true, nil
}

// Append inserts rec. ClickHouse has no unique constraints, so an existing row
// for the same index is probed first and reported as progress.ErrDuplicateIndex.
func (r *repository) Append(ctx context.Context, rec *batch.Record) error {
	var count uint64
	query := fmt.Sprintf(countIndexQuery, r.database, r.tableName)
	if err := r.client.Conn().QueryRow(ctx, query, rec.LedgerID, rec.Index).Scan(&count); err != nil {
		return fmt.Errorf("failed to probe batch index %d: %w", rec.Index, err)
	}
	if count > 0 {
		return fmt.Errorf("%w: ledger %s index %d", progress.ErrDuplicateIndex, rec.LedgerID, rec.Index)
	}

	query = fmt.Sprintf(insertRecordQuery, r.database, r.tableName)
	err := r.client.Conn().Exec(ctx, query,
		rec.LedgerID,
		rec.Index,
		string(rec.Payload),
		rec.TxHash,
		rec.L1Height,
		rec.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert batch record %d: %w", rec.Index, err)
	}
	return nil
}

func (r *repository) DeleteRecords(ctx context.Context, ledgerID string) error {
	query := fmt.Sprintf(deleteRecordsQuery, r.database, r.tableName, r.cluster)
	if err := r.client.Conn().Exec(ctx, query, ledgerID); err != nil {
		return fmt.Errorf("failed to delete batch records: %w", err)
	}
	return nil
}
