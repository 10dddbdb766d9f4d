// Package submitter drives batch submission: it turns contiguous L2 height
// ranges into compressed payloads, commits each on L1 and records progress.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/initia-labs/batch-submitter/pkg/batch"
	"github.com/initia-labs/batch-submitter/pkg/blocksource"
	"github.com/initia-labs/batch-submitter/pkg/metrics"
	"github.com/initia-labs/batch-submitter/pkg/progress"
	"github.com/initia-labs/batch-submitter/pkg/settlement"
)

// WindowSource provides the batch window, read once per run.
type WindowSource interface {
	Window(ctx context.Context) (batch.Window, error)
}

// PayloadBuilder turns fetched blocks into the bytes committed on L1. It
// returns the payload and the uncompressed size.
type PayloadBuilder interface {
	Build(blocks [][]byte) ([]byte, int, error)
}

// Settler commits a payload on L1 and returns once it is confirmed.
type Settler interface {
	Submit(ctx context.Context, ledgerID string, payload []byte) (*settlement.Receipt, error)
}

// Notifier is told about every persisted batch. Failures are logged only.
type Notifier interface {
	BatchSubmitted(ctx context.Context, rec *batch.Record, r batch.Range) error
}

// Config holds the loop settings.
type Config struct {
	LedgerID     string
	PollInterval time.Duration

	// NotifyTimeout bounds a single notification. Zero means no bound.
	NotifyTimeout time.Duration
}

// Deps are the collaborators of the loop. Notifier is optional.
type Deps struct {
	Window   WindowSource
	Store    progress.Store
	Source   blocksource.Source
	Builder  PayloadBuilder
	Settler  Settler
	Notifier Notifier
}

// Loop is the single sequential worker that submits batches. Batch i+1 is
// never started before batch i is persisted.
type Loop struct {
	cfg     Config
	deps    Deps
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
	now     func() time.Time

	state    atomic.Pointer[State]
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New validates its arguments and returns a Loop. m may be nil.
func New(cfg Config, deps Deps, log *zap.SugaredLogger, m *metrics.Metrics) (*Loop, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if cfg.LedgerID == "" {
		return nil, errors.New("invalid ledger ID: must not be empty")
	}
	if cfg.PollInterval <= 0 {
		return nil, errors.New("invalid poll interval: must be greater than 0")
	}
	switch {
	case deps.Window == nil:
		return nil, errors.New("invalid window source: must not be nil")
	case deps.Store == nil:
		return nil, errors.New("invalid progress store: must not be nil")
	case deps.Source == nil:
		return nil, errors.New("invalid block source: must not be nil")
	case deps.Builder == nil:
		return nil, errors.New("invalid payload builder: must not be nil")
	case deps.Settler == nil:
		return nil, errors.New("invalid settler: must not be nil")
	}

	l := &Loop{
		cfg:     cfg,
		deps:    deps,
		log:     log,
		metrics: m,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	l.publish(State{Phase: PhaseIdle})
	return l, nil
}

// State returns the latest published state.
func (l *Loop) State() State {
	return *l.state.Load()
}

// Phase returns the phase of the latest published state.
func (l *Loop) Phase() Phase {
	return l.State().Phase
}

// Stop asks the loop to exit. It is observed between steps, so a batch that
// reached settlement is always persisted first. Safe to call more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Run initializes from the progress store and submits batches until Stop is
// called or ctx is cancelled, in which case it returns nil. Any failure is
// returned as a *batch.Error and ends the run.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.publish(l.State().with(PhaseStopped))
	}()

	l.publish(State{Phase: PhaseInitializing})
	index, w, err := l.initialize(ctx)
	if err != nil {
		if l.stopping(ctx) {
			return nil
		}
		return l.fail(l.State(), err)
	}

	for {
		if l.stopping(ctx) {
			l.log.Infow("submission loop stopped", "nextBatchIndex", index)
			return nil
		}

		st := State{Index: index, Range: w.RangeFor(index), Phase: PhaseComputingRange}
		l.publish(st)
		l.metrics.SetNextIndex(index)

		outcome, err := l.process(ctx, st)
		if err != nil {
			return l.fail(l.State(), err)
		}

		switch outcome {
		case Committed:
			index++
		case AwaitAvailability:
			if !l.wait(ctx) {
				l.log.Infow("submission loop stopped while waiting", "nextBatchIndex", index)
				return nil
			}
		case Interrupted:
			l.log.Infow("submission loop interrupted", "nextBatchIndex", index)
			return nil
		}
	}
}

func (l *Loop) initialize(ctx context.Context) (uint64, batch.Window, error) {
	w, err := l.deps.Window.Window(ctx)
	if err != nil {
		return 0, batch.Window{}, batch.NewError(batch.ErrConfig, 0, batch.Range{}, err)
	}

	if err := l.deps.Store.Initialize(ctx); err != nil {
		return 0, batch.Window{}, batch.NewError(batch.ErrStore, 0, batch.Range{}, err)
	}
	index, latest, err := progress.Resume(ctx, l.deps.Store, l.cfg.LedgerID)
	if err != nil {
		return 0, batch.Window{}, batch.NewError(batch.ErrStore, 0, batch.Range{}, err)
	}

	if latest != nil {
		l.log.Infow("resuming batch submission",
			"ledgerID", l.cfg.LedgerID,
			"lastBatchIndex", latest.Index,
			"nextBatchIndex", index,
			"startHeight", w.StartHeight,
			"submissionInterval", w.Interval,
		)
	} else {
		l.log.Infow("starting batch submission from genesis window",
			"ledgerID", l.cfg.LedgerID,
			"startHeight", w.StartHeight,
			"submissionInterval", w.Interval,
		)
	}
	return index, w, nil
}

// process runs one batch from the availability check through persistence.
func (l *Loop) process(ctx context.Context, st State) (Outcome, error) {
	start := l.now()

	st = st.with(PhaseAwaitingAvailability)
	l.publish(st)
	height, err := l.deps.Source.LatestHeight(ctx)
	if err != nil {
		if l.stopping(ctx) {
			return Interrupted, nil
		}
		return 0, batch.NewError(batch.ErrFetch, st.Index, st.Range, fmt.Errorf("failed to get latest height: %w", err))
	}
	l.metrics.SetChainHeight(height)
	if st.Range.End > height {
		l.log.Debugw("waiting for range to be produced",
			"batchIndex", st.Index,
			"end", st.Range.End,
			"chainHeight", height,
		)
		l.metrics.IncWaits()
		return AwaitAvailability, nil
	}

	st = st.with(PhaseFetching)
	l.publish(st)
	bulk, err := l.deps.Source.Fetch(ctx, st.Range)
	switch {
	case errors.Is(err, blocksource.ErrUnavailable):
		l.log.Warnw("block bulk unavailable, retrying",
			"batchIndex", st.Index,
			"start", st.Range.Start,
			"end", st.Range.End,
			"error", err,
		)
		l.metrics.IncWaits()
		return AwaitAvailability, nil
	case err != nil:
		if l.stopping(ctx) {
			return Interrupted, nil
		}
		return 0, batch.NewError(batch.ErrFetch, st.Index, st.Range, err)
	}

	st = st.with(PhaseBuildingPayload)
	l.publish(st)
	payload, rawSize, err := l.deps.Builder.Build(bulk.Blocks)
	if err != nil {
		return 0, batch.NewError(batch.ErrPayload, st.Index, st.Range, err)
	}
	l.metrics.ObservePayload(rawSize, len(payload))

	// Cancellation must not separate a confirmed submission from its record.
	if l.stopping(ctx) {
		return Interrupted, nil
	}
	commitCtx := context.WithoutCancel(ctx)

	st = st.with(PhaseSubmitting)
	l.publish(st)
	receipt, err := l.deps.Settler.Submit(commitCtx, l.cfg.LedgerID, payload)
	if err != nil {
		return 0, batch.NewError(batch.ErrSubmit, st.Index, st.Range, err)
	}

	st = st.with(PhasePersisting)
	l.publish(st)
	rec := &batch.Record{
		LedgerID:    l.cfg.LedgerID,
		Index:       st.Index,
		Payload:     payload,
		TxHash:      receipt.TxHash,
		L1Height:    receipt.Height,
		SubmittedAt: l.now(),
	}
	if err := l.deps.Store.Append(commitCtx, rec); err != nil {
		return 0, batch.NewError(batch.ErrStore, st.Index, st.Range, err)
	}

	l.metrics.CommitBatch(st.Index, st.Range.End, l.now().Sub(start).Seconds())
	l.log.Infow("batch submitted",
		"batchIndex", st.Index,
		"start", st.Range.Start,
		"end", st.Range.End,
		"payloadBytes", len(payload),
		"rawBytes", rawSize,
		"txHash", receipt.TxHash,
		"l1Height", receipt.Height,
	)

	l.notify(commitCtx, rec, st.Range)
	return Committed, nil
}

func (l *Loop) notify(ctx context.Context, rec *batch.Record, r batch.Range) {
	if l.deps.Notifier == nil {
		return
	}
	if l.cfg.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.NotifyTimeout)
		defer cancel()
	}
	if err := l.deps.Notifier.BatchSubmitted(ctx, rec, r); err != nil {
		l.log.Warnw("failed to publish batch event",
			"batchIndex", rec.Index,
			"error", err,
		)
	}
}

// wait blocks for one poll interval. It returns false when the loop should stop.
func (l *Loop) wait(ctx context.Context) bool {
	timer := time.NewTimer(l.cfg.PollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-l.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (l *Loop) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-l.stopCh:
		return true
	default:
		return false
	}
}

func (l *Loop) fail(st State, err error) error {
	var batchErr *batch.Error
	if errors.As(err, &batchErr) {
		l.metrics.IncError(errType(batchErr.Kind))
	}
	l.log.Errorw("batch submission failed",
		"batchIndex", st.Index,
		"start", st.Range.Start,
		"end", st.Range.End,
		"phase", st.Phase.String(),
		"error", err,
	)
	return err
}

func (l *Loop) publish(st State) {
	l.state.Store(&st)
}

func errType(kind error) string {
	switch {
	case errors.Is(kind, batch.ErrConfig):
		return metrics.ErrTypeConfig
	case errors.Is(kind, batch.ErrFetch):
		return metrics.ErrTypeFetch
	case errors.Is(kind, batch.ErrPayload):
		return metrics.ErrTypePayload
	case errors.Is(kind, batch.ErrSubmit):
		return metrics.ErrTypeSubmit
	default:
		return metrics.ErrTypeStore
	}
}
