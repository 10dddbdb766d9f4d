package batch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWindow(t *testing.T) {
	t.Parallel()

	w, err := NewWindow(100, 50)
	require.NoError(t, err)
	assert.Equal(t, Window{StartHeight: 100, Interval: 50}, w)

	_, err = NewWindow(100, 0)
	require.ErrorIs(t, err, ErrInvalidWindow)
}

func TestWindow_RangeFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		w     Window
		index uint64
		want  Range
	}{
		{name: "first batch", w: Window{StartHeight: 100, Interval: 50}, index: 0, want: Range{Start: 100, End: 149}},
		{name: "fifth batch", w: Window{StartHeight: 100, Interval: 50}, index: 4, want: Range{Start: 300, End: 349}},
		{name: "genesis at zero", w: Window{StartHeight: 0, Interval: 100}, index: 0, want: Range{Start: 0, End: 99}},
		{name: "single height batches", w: Window{StartHeight: 7, Interval: 1}, index: 3, want: Range{Start: 10, End: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.w.RangeFor(tt.index))
		})
	}
}

func TestWindow_RangesAreContiguous(t *testing.T) {
	t.Parallel()

	windows := []Window{
		{StartHeight: 0, Interval: 1},
		{StartHeight: 1, Interval: 100},
		{StartHeight: 100, Interval: 50},
		{StartHeight: 123456, Interval: 997},
	}
	for _, w := range windows {
		for i := uint64(0); i < 1000; i++ {
			cur, next := w.RangeFor(i), w.RangeFor(i+1)
			require.Equal(t, cur.End+1, next.Start, "window %+v index %d", w, i)
			require.Equal(t, w.Interval, cur.Len(), "window %+v index %d", w, i)
		}
	}
}

func TestWindow_IndexFor(t *testing.T) {
	t.Parallel()

	w := Window{StartHeight: 100, Interval: 50}

	_, ok := w.IndexFor(99)
	assert.False(t, ok)

	for i := uint64(0); i < 10; i++ {
		r := w.RangeFor(i)
		got, ok := w.IndexFor(r.Start)
		require.True(t, ok)
		require.Equal(t, i, got)
		got, ok = w.IndexFor(r.End)
		require.True(t, ok)
		require.Equal(t, i, got)
	}
}

func TestWindow_Completed(t *testing.T) {
	t.Parallel()

	w := Window{StartHeight: 1, Interval: 10}
	assert.Equal(t, uint64(0), w.Completed(0))
	assert.Equal(t, uint64(0), w.Completed(9))
	assert.Equal(t, uint64(1), w.Completed(10))
	assert.Equal(t, uint64(1), w.Completed(19))
	assert.Equal(t, uint64(3), w.Completed(30))
}

func TestNextIndex(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint64(0), NextIndex(nil))
	assert.Equal(t, uint64(4), NextIndex(&Record{Index: 3}))
}

func TestError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := NewError(ErrFetch, 2, Range{Start: 200, End: 299}, cause)

	require.ErrorIs(t, err, ErrFetch)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrSubmit)
	assert.Equal(t, "fetch error: batch 2 [200, 299]: connection refused", err.Error())

	var batchErr *Error
	require.ErrorAs(t, error(err), &batchErr)
	assert.Equal(t, uint64(2), batchErr.Index)
}
