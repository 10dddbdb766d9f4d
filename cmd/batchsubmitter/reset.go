package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/initia-labs/batch-submitter/pkg/utils"
)

var errResetNotForced = errors.New("refusing to delete batch records without --force")

func reset(c *cli.Context) error {
	ctx := c.Context
	sugar, err := utils.NewSugaredLogger("batchsubmitter", true)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	ledgerID := c.String("ledger-id")
	if ledgerID == "" {
		return errors.New("ledger ID is required")
	}

	storeCfg, err := buildStoreConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build store config: %w", err)
	}

	store, closeStore, err := openStore(ctx, storeCfg, sugar.Named("store"))
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer closeStore()
	if err := store.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize record store: %w", err)
	}

	latest, exists, err := store.Latest(ctx, ledgerID)
	if err != nil {
		return fmt.Errorf("failed to read latest batch record: %w", err)
	}
	if !exists {
		sugar.Infof("no batch records stored for ledger %s", ledgerID)
		return nil
	}
	if !c.Bool("force") {
		sugar.Warnw("batch records would be removed, rerun with --force",
			"ledgerID", ledgerID,
			"store", storeCfg.Backend,
			"latestIndex", latest.Index,
		)
		return errResetNotForced
	}

	if err := store.DeleteRecords(ctx, ledgerID); err != nil {
		return fmt.Errorf("failed to delete batch records: %w", err)
	}

	sugar.Infof("batch records successfully removed for ledger %s (latest index was %d)", ledgerID, latest.Index)
	return nil
}
