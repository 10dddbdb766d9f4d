package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/initia-labs/batch-submitter/pkg/batch"
	"github.com/initia-labs/batch-submitter/pkg/blocksource"
	"github.com/initia-labs/batch-submitter/pkg/payload"
	"github.com/initia-labs/batch-submitter/pkg/progress"
	"github.com/initia-labs/batch-submitter/pkg/utils"
)

// statusReport is what the status command prints.
type statusReport struct {
	LedgerID  string
	Window    batch.Window
	Latest    *batch.Record
	NextIndex uint64

	// ChainHeight is zero when no L2 RPC was given.
	ChainHeight uint64
}

// nextRange is the range the loop works on next.
func (r statusReport) nextRange() batch.Range {
	return r.Window.RangeFor(r.NextIndex)
}

// ready returns how many fully produced ranges are waiting to be submitted.
func (r statusReport) ready() uint64 {
	produced := r.Window.Completed(r.ChainHeight)
	if produced <= r.NextIndex {
		return 0
	}
	return produced - r.NextIndex
}

func status(c *cli.Context) error {
	ctx := c.Context
	sugar, err := utils.NewSugaredLogger("batchsubmitter", c.Bool("verbose"))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	ledgerID := c.String("ledger-id")
	storeCfg, err := buildStoreConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build store config: %w", err)
	}
	windowCfg, err := buildWindowConfig(c)
	if err != nil {
		return err
	}

	window, err := resolveWindow(ctx, windowCfg, ledgerID, sugar.Named("bridge"))
	if err != nil {
		return fmt.Errorf("failed to resolve batch window: %w", err)
	}

	store, closeStore, err := openStore(ctx, storeCfg, sugar.Named("store"))
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer closeStore()
	if err := store.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize record store: %w", err)
	}

	next, latest, err := progress.Resume(ctx, store, ledgerID)
	if err != nil {
		return err
	}
	report := statusReport{LedgerID: ledgerID, Window: window, Latest: latest, NextIndex: next}

	if rpcURL := c.String("l2-rpc-url"); rpcURL != "" {
		source, err := blocksource.DialComet(rpcURL, 10*time.Second, sugar.Named("l2"), nil)
		if err != nil {
			return fmt.Errorf("failed to dial L2 rpc: %w", err)
		}
		if report.ChainHeight, err = source.LatestHeight(ctx); err != nil {
			return err
		}
	}

	if err := printStatus(c.App.Writer, report); err != nil {
		return err
	}

	if !c.Bool("verify") || latest == nil {
		return nil
	}
	codec, err := payload.ParseCodec(c.String("codec"))
	if err != nil {
		return err
	}
	n, err := verifyPayload(codec, window, latest)
	if err != nil {
		return fmt.Errorf("batch %d failed verification: %w", latest.Index, err)
	}
	_, err = fmt.Fprintf(c.App.Writer, "verified batch %d: %d blocks\n", latest.Index, n)
	return err
}

func printStatus(w io.Writer, r statusReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ledger\t%s\n", r.LedgerID)
	fmt.Fprintf(tw, "window\tstart %d, interval %d\n", r.Window.StartHeight, r.Window.Interval)
	if r.Latest == nil {
		fmt.Fprintf(tw, "latest batch\tnone\n")
	} else {
		fmt.Fprintf(tw, "latest batch\t%d %s\n", r.Latest.Index, r.Window.RangeFor(r.Latest.Index))
		fmt.Fprintf(tw, "  tx hash\t%s\n", r.Latest.TxHash)
		fmt.Fprintf(tw, "  l1 height\t%d\n", r.Latest.L1Height)
		fmt.Fprintf(tw, "  submitted at\t%s\n", r.Latest.SubmittedAt.UTC().Format(time.RFC3339))
		fmt.Fprintf(tw, "  payload bytes\t%d\n", len(r.Latest.Payload))
	}
	fmt.Fprintf(tw, "next batch\t%d %s\n", r.NextIndex, r.nextRange())
	if r.ChainHeight > 0 {
		fmt.Fprintf(tw, "l2 height\t%d\n", r.ChainHeight)
		fmt.Fprintf(tw, "ready batches\t%d\n", r.ready())
	}
	return tw.Flush()
}

// verifyPayload decodes a stored payload and checks it holds one block per height of its range.
func verifyPayload(codec payload.Codec, window batch.Window, rec *batch.Record) (int, error) {
	builder, err := payload.NewBuilder(codec)
	if err != nil {
		return 0, err
	}
	defer builder.Close()

	blocks, err := builder.Decode(rec.Payload)
	if err != nil {
		return 0, err
	}
	if want := window.RangeFor(rec.Index).Len(); uint64(len(blocks)) != want {
		return 0, fmt.Errorf("payload holds %d blocks, range has %d", len(blocks), want)
	}
	return len(blocks), nil
}
