package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/initia-labs/batch-submitter/internal/repository/inmemory"
	"github.com/initia-labs/batch-submitter/pkg/clickhouse"
	badgerrecords "github.com/initia-labs/batch-submitter/pkg/data/badger/records"
	chrecords "github.com/initia-labs/batch-submitter/pkg/data/clickhouse/records"
	pgrecords "github.com/initia-labs/batch-submitter/pkg/data/postgres/records"
	"github.com/initia-labs/batch-submitter/pkg/progress"
)

// recordStore is a progress store that can also forget a ledger.
type recordStore interface {
	progress.Store
	DeleteRecords(ctx context.Context, ledgerID string) error
}

// openStore opens the configured backend. The returned close func releases it.
func openStore(ctx context.Context, cfg StoreConfig, log *zap.SugaredLogger) (recordStore, func(), error) {
	switch cfg.Backend {
	case storeClickHouse:
		client, err := clickhouse.New(ctx, cfg.ClickHouse, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create ClickHouse client: %w", err)
		}
		repo, err := chrecords.NewRepository(ctx, client, cfg.ClickHouse.Cluster, cfg.ClickHouse.Database, cfg.TableName)
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to create batch records repository: %w", err)
		}
		return repo, func() { closeLogged(log, "clickhouse", client.Close) }, nil

	case storePostgres:
		db, err := pgrecords.Open(cfg.Postgres, log)
		if err != nil {
			return nil, nil, err
		}
		return pgrecords.NewRepository(db, cfg.TableName), func() {
			closeLogged(log, "postgres", func() error { return pgrecords.Close(db) })
		}, nil

	case storeBadger:
		s, err := badgerrecords.Open(cfg.BadgerDir, log)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { closeLogged(log, "badger", s.Close) }, nil

	case storeMemory:
		log.Warn("using the in-memory record store; progress is lost on restart")
		return inmemory.NewRecordsRepository(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Backend)
	}
}

func closeLogged(log *zap.SugaredLogger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Warnw("failed to close store", "store", name, "error", err)
	}
}
