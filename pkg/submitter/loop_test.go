package submitter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/initia-labs/batch-submitter/internal/repository/inmemory"
	"github.com/initia-labs/batch-submitter/pkg/batch"
	"github.com/initia-labs/batch-submitter/pkg/blocksource"
	"github.com/initia-labs/batch-submitter/pkg/metrics"
	"github.com/initia-labs/batch-submitter/pkg/payload"
	"github.com/initia-labs/batch-submitter/pkg/settlement"
)

const ledgerID = "1"

type staticWindow struct {
	w   batch.Window
	err error
}

func (s staticWindow) Window(context.Context) (batch.Window, error) {
	return s.w, s.err
}

type mockSource struct {
	mock.Mock
}

func (m *mockSource) LatestHeight(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockSource) Fetch(ctx context.Context, r batch.Range) (*blocksource.Bulk, error) {
	args := m.Called(ctx, r)
	if fn, ok := args.Get(0).(func(context.Context, batch.Range) (*blocksource.Bulk, error)); ok {
		return fn(ctx, r)
	}
	bulk, _ := args.Get(0).(*blocksource.Bulk)
	return bulk, args.Error(1)
}

type mockSettler struct {
	mock.Mock
}

func (m *mockSettler) Submit(ctx context.Context, ledgerID string, payload []byte) (*settlement.Receipt, error) {
	args := m.Called(ctx, ledgerID, payload)
	receipt, _ := args.Get(0).(*settlement.Receipt)
	return receipt, args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) BatchSubmitted(ctx context.Context, rec *batch.Record, r batch.Range) error {
	return m.Called(ctx, rec, r).Error(0)
}

// failingStore wraps the in-memory store and fails appends with err.
type failingStore struct {
	*inmemory.RecordsRepository
	err error
}

func (s *failingStore) Append(context.Context, *batch.Record) error {
	return s.err
}

// bulkFor returns a bulk with one synthetic block per height of r.
func bulkFor(r batch.Range) *blocksource.Bulk {
	blocks := make([][]byte, 0, r.Len())
	for h := r.Start; h <= r.End; h++ {
		blocks = append(blocks, []byte(fmt.Sprintf("block-%d", h)))
	}
	return &blocksource.Bulk{Range: r, Blocks: blocks}
}

type fixture struct {
	store    *inmemory.RecordsRepository
	source   *mockSource
	settler  *mockSettler
	notifier *mockNotifier
	builder  *payload.Builder
	metrics  *metrics.Metrics
	reg      *prometheus.Registry
	deps     Deps
}

func newFixture(t *testing.T, w batch.Window) *fixture {
	t.Helper()

	builder, err := payload.NewBuilder(payload.CodecGzip)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	f := &fixture{
		store:   inmemory.NewRecordsRepository(),
		source:  &mockSource{},
		settler: &mockSettler{},
		builder: builder,
		metrics: m,
		reg:     reg,
	}
	f.deps = Deps{
		Window:  staticWindow{w: w},
		Store:   f.store,
		Source:  f.source,
		Builder: builder,
		Settler: f.settler,
	}
	return f
}

func (f *fixture) newLoop(t *testing.T) *Loop {
	t.Helper()

	l, err := New(Config{LedgerID: ledgerID, PollInterval: time.Millisecond}, f.deps, zaptest.NewLogger(t).Sugar(), f.metrics)
	require.NoError(t, err)
	return l
}

func (f *fixture) seed(t *testing.T, indices ...uint64) {
	t.Helper()
	for _, i := range indices {
		require.NoError(t, f.store.Append(t.Context(), &batch.Record{LedgerID: ledgerID, Index: i, Payload: []byte{byte(i)}}))
	}
}

// expectBatches makes the fake chain serve count batches and stops the loop
// once the last one is submitted.
func (f *fixture) expectBatches(l *Loop, count int) {
	f.source.On("LatestHeight", mock.Anything).Return(uint64(1_000_000), nil)
	f.source.On("Fetch", mock.Anything, mock.Anything).
		Return(func(_ context.Context, r batch.Range) (*blocksource.Bulk, error) {
			return bulkFor(r), nil
		})

	var mu sync.Mutex
	submitted := 0
	f.settler.On("Submit", mock.Anything, ledgerID, mock.Anything).
		Run(func(mock.Arguments) {
			mu.Lock()
			defer mu.Unlock()
			submitted++
			if submitted == count {
				l.Stop()
			}
		}).
		Return(&settlement.Receipt{TxHash: "ABCD", Height: 10}, nil)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, batch.Window{StartHeight: 1, Interval: 10})
	log := zaptest.NewLogger(t).Sugar()
	cfg := Config{LedgerID: ledgerID, PollInterval: time.Second}

	tests := []struct {
		name   string
		cfg    Config
		modify func(*Deps)
	}{
		{name: "missing ledger", cfg: Config{PollInterval: time.Second}},
		{name: "zero poll interval", cfg: Config{LedgerID: ledgerID}},
		{name: "missing window", cfg: cfg, modify: func(d *Deps) { d.Window = nil }},
		{name: "missing store", cfg: cfg, modify: func(d *Deps) { d.Store = nil }},
		{name: "missing source", cfg: cfg, modify: func(d *Deps) { d.Source = nil }},
		{name: "missing builder", cfg: cfg, modify: func(d *Deps) { d.Builder = nil }},
		{name: "missing settler", cfg: cfg, modify: func(d *Deps) { d.Settler = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			deps := f.deps
			if tt.modify != nil {
				tt.modify(&deps)
			}
			_, err := New(tt.cfg, deps, log, nil)
			require.Error(t, err)
		})
	}

	_, err := New(cfg, f.deps, nil, nil)
	require.Error(t, err)

	l, err := New(cfg, f.deps, log, nil)
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, l.Phase())
}

func TestLoop_FirstBatchFromEmptyStore(t *testing.T) {
	t.Parallel()

	f := newFixture(t, batch.Window{StartHeight: 100, Interval: 50})
	l := f.newLoop(t)

	f.source.On("LatestHeight", mock.Anything).Return(uint64(149), nil).Once()
	f.source.On("Fetch", mock.Anything, batch.Range{Start: 100, End: 149}).
		Return(bulkFor(batch.Range{Start: 100, End: 149}), nil).Once()
	f.settler.On("Submit", mock.Anything, ledgerID, mock.Anything).
		Run(func(mock.Arguments) { l.Stop() }).
		Return(&settlement.Receipt{TxHash: "ABCD", Height: 77}, nil).Once()

	require.NoError(t, l.Run(t.Context()))

	records := f.store.Records(ledgerID)
	require.Len(t, records, 1)
	assert.Equal(t, uint64(0), records[0].Index)
	assert.Equal(t, "ABCD", records[0].TxHash)
	assert.Equal(t, int64(77), records[0].L1Height)
	assert.False(t, records[0].SubmittedAt.IsZero())

	// The persisted payload is exactly what was submitted and decodes to the fetched blocks.
	submitted := f.settler.Calls[0].Arguments.Get(2).([]byte)
	assert.Equal(t, submitted, records[0].Payload)
	blocks, err := f.builder.Decode(records[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, bulkFor(batch.Range{Start: 100, End: 149}).Blocks, blocks)

	assert.Equal(t, PhaseStopped, l.Phase())
	require.NoError(t, testutil.GatherAndCompare(f.reg, strings.NewReader(`
# HELP batch_submitter_batches_submitted_total Total number of batches confirmed on L1 and persisted
# TYPE batch_submitter_batches_submitted_total counter
batch_submitter_batches_submitted_total 1
`), "batch_submitter_batches_submitted_total"))
	f.source.AssertExpectations(t)
	f.settler.AssertExpectations(t)
}

func TestLoop_ResumesAfterLatestRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t, batch.Window{StartHeight: 100, Interval: 50})
	f.seed(t, 0, 1, 2, 3)
	l := f.newLoop(t)

	f.source.On("LatestHeight", mock.Anything).Return(uint64(1000), nil).Once()
	f.source.On("Fetch", mock.Anything, batch.Range{Start: 300, End: 349}).
		Return(bulkFor(batch.Range{Start: 300, End: 349}), nil).Once()
	f.settler.On("Submit", mock.Anything, ledgerID, mock.Anything).
		Run(func(mock.Arguments) { l.Stop() }).
		Return(&settlement.Receipt{TxHash: "EF01", Height: 3}, nil).Once()

	require.NoError(t, l.Run(t.Context()))

	records := f.store.Records(ledgerID)
	require.Len(t, records, 5)
	assert.Equal(t, uint64(4), records[4].Index)
	f.source.AssertExpectations(t)
}

func TestLoop_WaitsUntilRangeIsProduced(t *testing.T) {
	t.Parallel()

	f := newFixture(t, batch.Window{StartHeight: 1, Interval: 100})
	l := f.newLoop(t)

	polls := 0
	f.source.On("LatestHeight", mock.Anything).
		Run(func(mock.Arguments) {
			polls++
			if polls == 3 {
				l.Stop()
			}
		}).
		Return(uint64(50), nil)

	require.NoError(t, l.Run(t.Context()))

	assert.Equal(t, 3, polls)
	f.source.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
	f.settler.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.store.Records(ledgerID))

	st := l.State()
	assert.Equal(t, uint64(0), st.Index)
	assert.Equal(t, batch.Range{Start: 1, End: 100}, st.Range)
	require.NoError(t, testutil.GatherAndCompare(f.reg, strings.NewReader(`
# HELP batch_submitter_waits_total Total number of times the loop waited for L2 to produce a full range
# TYPE batch_submitter_waits_total counter
batch_submitter_waits_total 3
`), "batch_submitter_waits_total"))
}

func TestLoop_WaitThenSubmit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, batch.Window{StartHeight: 1, Interval: 10})
	l := f.newLoop(t)

	f.source.On("LatestHeight", mock.Anything).Return(uint64(5), nil).Twice()
	f.source.On("LatestHeight", mock.Anything).Return(uint64(10), nil).Once()
	f.source.On("Fetch", mock.Anything, batch.Range{Start: 1, End: 10}).
		Return(bulkFor(batch.Range{Start: 1, End: 10}), nil).Once()
	f.settler.On("Submit", mock.Anything, ledgerID, mock.Anything).
		Run(func(mock.Arguments) { l.Stop() }).
		Return(&settlement.Receipt{TxHash: "AA", Height: 1}, nil).Once()

	require.NoError(t, l.Run(t.Context()))
	require.Len(t, f.store.Records(ledgerID), 1)
	f.source.AssertExpectations(t)
}

func TestLoop_UnavailableBulkIsRetried(t *testing.T) {
	t.Parallel()

	f := newFixture(t, batch.Window{StartHeight: 1, Interval: 10})
	l := f.newLoop(t)

	r := batch.Range{Start: 1, End: 10}
	f.source.On("LatestHeight", mock.Anything).Return(uint64(100), nil)
	f.source.On("Fetch", mock.Anything, r).Return(nil, blocksource.ErrUnavailable).Once()
	f.source.On("Fetch", mock.Anything, r).Return(bulkFor(r), nil).Once()
	f.settler.On("Submit", mock.Anything, ledgerID, mock.Anything).
		Run(func(mock.Arguments) { l.Stop() }).
		Return(&settlement.Receipt{TxHash: "AA", Height: 1}, nil).Once()

	require.NoError(t, l.Run(t.Context()))

	records := f.store.Records(ledgerID)
	require.Len(t, records, 1)
	assert.Equal(t, uint64(0), records[0].Index)
	f.source.AssertExpectations(t)
}

func TestLoop_FetchFailureIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, batch.Window{StartHeight: 1, Interval: 10})
	f.seed(t, 0)
	l := f.newLoop(t)

	cause := errors.New("connection reset by peer")
	f.source.On("LatestHeight", mock.Anything).Return(uint64(100), nil).Once()
	f.source.On("Fetch", mock.Anything, batch.Range{Start: 11, End: 20}).Return(nil, cause).Once()

	err := l.Run(t.Context())
	require.ErrorIs(t, err, batch.ErrFetch)
	require.ErrorIs(t, err, cause)

	var batchErr *batch.Error
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, uint64(1), batchErr.Index)
	assert.Equal(t, batch.Range{Start: 11, End: 20}, batchErr.Range)

	f.settler.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
	assert.Len(t, f.store.Records(ledgerID), 1)
	assert.Equal(t, uint64(1), l.State().Index)
	require.NoError(t, testutil.GatherAndCompare(f.reg, strings.NewReader(`
# HELP batch_submitter_errors_total Total fatal errors by kind
# TYPE batch_submitter_errors_total counter
batch_submitter_errors_total{type="fetch"} 1
`), "batch_submitter_errors_total"))
}

func TestLoop_LatestHeightFailureIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, batch.Window{StartHeight: 1, Interval: 10})
	l := f.newLoop(t)

	f.source.On("LatestHeight", mock.Anything).Return(uint64(0), errors.New("node down")).Once()

	err := l.Run(t.Context())
	require.ErrorIs(t, err, batch.ErrFetch)
	f.source.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestLoop_SubmitFailureIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, batch.Window{StartHeight: 1, Interval: 10})
	l := f.newLoop(t)

	r := batch.Range{Start: 1, End: 10}
	f.source.On("LatestHeight", mock.Anything).Return(uint64(100), nil).Once()
	f.source.On("Fetch", mock.Anything, r).Return(bulkFor(r), nil).Once()
	f.settler.On("Submit", mock.Anything, ledgerID, mock.Anything).
		Return(nil, settlement.ErrCheckTx).Once()

	err := l.Run(t.Context())
	require.ErrorIs(t, err, batch.ErrSubmit)
	require.ErrorIs(t, err, settlement.ErrCheckTx)
	assert.Empty(t, f.store.Records(ledgerID))
	assert.Equal(t, PhaseStopped, l.Phase())
}

func TestLoop_PersistFailureIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, batch.Window{StartHeight: 1, Interval: 10})
	cause := errors.New("disk full")
	f.deps.Store = &failingStore{RecordsRepository: f.store, err: cause}
	l := f.newLoop(t)

	r := batch.Range{Start: 1, End: 10}
	f.source.On("LatestHeight", mock.Anything).Return(uint64(100), nil).Once()
	f.source.On("Fetch", mock.Anything, r).Return(bulkFor(r), nil).Once()
	f.settler.On("Submit", mock.Anything, ledgerID, mock.Anything).
		Return(&settlement.Receipt{TxHash: "AA", Height: 1}, nil).Once()

	err := l.Run(t.Context())
	require.ErrorIs(t, err, batch.ErrStore)
	require.ErrorIs(t, err, cause)
}

func TestLoop_EmptyBulkIsPayloadError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, batch.Window{StartHeight: 1, Interval: 10})
	l := f.newLoop(t)

	r := batch.Range{Start: 1, End: 10}
	f.source.On("LatestHeight", mock.Anything).Return(uint64(100), nil).Once()
	f.source.On("Fetch", mock.Anything, r).Return(&blocksource.Bulk{Range: r}, nil).Once()

	err := l.Run(t.Context())
	require.ErrorIs(t, err, batch.ErrPayload)
	require.ErrorIs(t, err, payload.ErrEmptyBulk)
	f.settler.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
}

func TestLoop_ConfigFailureIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, batch.Window{})
	f.deps.Window = staticWindow{err: errors.New("bridge not found")}
	l := f.newLoop(t)

	err := l.Run(t.Context())
	require.ErrorIs(t, err, batch.ErrConfig)
	f.source.AssertNotCalled(t, "LatestHeight", mock.Anything)
}

func TestLoop_SequentialBatchesAreUnique(t *testing.T) {
	t.Parallel()

	w := batch.Window{StartHeight: 10, Interval: 5}
	f := newFixture(t, w)
	l := f.newLoop(t)
	f.expectBatches(l, 4)

	require.NoError(t, l.Run(t.Context()))

	records := f.store.Records(ledgerID)
	require.Len(t, records, 4)
	for i, rec := range records {
		assert.Equal(t, uint64(i), rec.Index)
	}

	// Fetches walk contiguous ranges in order.
	var fetched []batch.Range
	for _, call := range f.source.Calls {
		if call.Method == "Fetch" {
			fetched = append(fetched, call.Arguments.Get(1).(batch.Range))
		}
	}
	require.Len(t, fetched, 4)
	for i, r := range fetched {
		assert.Equal(t, w.RangeFor(uint64(i)), r)
	}
}

func TestLoop_NotifiesAfterPersist(t *testing.T) {
	t.Parallel()

	f := newFixture(t, batch.Window{StartHeight: 1, Interval: 10})
	f.notifier = &mockNotifier{}
	f.deps.Notifier = f.notifier
	l := f.newLoop(t)
	f.expectBatches(l, 2)

	f.notifier.On("BatchSubmitted", mock.Anything, mock.Anything, batch.Range{Start: 1, End: 10}).
		Run(func(args mock.Arguments) {
			rec := args.Get(1).(*batch.Record)
			// The record is already durable when the event goes out.
			latest, ok, err := f.store.Latest(context.Background(), ledgerID)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, rec.Index, latest.Index)
		}).
		Return(nil).Once()
	f.notifier.On("BatchSubmitted", mock.Anything, mock.Anything, batch.Range{Start: 11, End: 20}).
		Return(errors.New("broker unavailable")).Once()

	// A failed notification does not stop the loop.
	require.NoError(t, l.Run(t.Context()))
	assert.Len(t, f.store.Records(ledgerID), 2)
	f.notifier.AssertExpectations(t)
}

func TestLoop_ContextCancelledWhileWaiting(t *testing.T) {
	t.Parallel()

	f := newFixture(t, batch.Window{StartHeight: 1, Interval: 100})
	l, err := New(Config{LedgerID: ledgerID, PollInterval: time.Hour}, f.deps, zaptest.NewLogger(t).Sugar(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	f.source.On("LatestHeight", mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(uint64(0), nil).Once()

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not observe cancellation")
	}
}

func TestLoop_StopWhileWaiting(t *testing.T) {
	t.Parallel()

	f := newFixture(t, batch.Window{StartHeight: 1, Interval: 100})
	l, err := New(Config{LedgerID: ledgerID, PollInterval: time.Hour}, f.deps, zaptest.NewLogger(t).Sugar(), nil)
	require.NoError(t, err)

	polled := make(chan struct{})
	f.source.On("LatestHeight", mock.Anything).
		Run(func(mock.Arguments) { close(polled) }).
		Return(uint64(0), nil).Once()

	done := make(chan error, 1)
	go func() { done <- l.Run(t.Context()) }()

	<-polled
	l.Stop()
	l.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not observe stop")
	}
	assert.Equal(t, PhaseStopped, l.Phase())
}

func TestLoop_CancelDuringSubmitStillPersists(t *testing.T) {
	t.Parallel()

	f := newFixture(t, batch.Window{StartHeight: 1, Interval: 10})
	l := f.newLoop(t)

	ctx, cancel := context.WithCancel(t.Context())
	r := batch.Range{Start: 1, End: 10}
	f.source.On("LatestHeight", mock.Anything).Return(uint64(100), nil).Once()
	f.source.On("Fetch", mock.Anything, r).Return(bulkFor(r), nil).Once()
	f.settler.On("Submit", mock.Anything, ledgerID, mock.Anything).
		Run(func(args mock.Arguments) {
			cancel()
			// The settlement call is shielded from the run's cancellation.
			assert.NoError(t, args.Get(0).(context.Context).Err())
		}).
		Return(&settlement.Receipt{TxHash: "AA", Height: 1}, nil).Once()

	require.NoError(t, l.Run(ctx))
	assert.Len(t, f.store.Records(ledgerID), 1)
}

func TestPhase_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "awaiting_availability", PhaseAwaitingAvailability.String())
	assert.Equal(t, "stopped", PhaseStopped.String())
	assert.Equal(t, "unknown", Phase(42).String())
	assert.Equal(t, "await_availability", AwaitAvailability.String())
}
