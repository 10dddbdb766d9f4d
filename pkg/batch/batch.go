package batch

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow is returned when a Window cannot map indices to height ranges.
var ErrInvalidWindow = errors.New("invalid batch window")

// Record is the unit of durable submission progress. A record exists only for
// batches whose settlement transaction was confirmed.
type Record struct {
	LedgerID string
	Index    uint64
	Payload  []byte

	// Receipt metadata, kept for operators. Resume logic never reads it.
	TxHash      string
	L1Height    int64
	SubmittedAt time.Time
}

// Range is an inclusive L2 height range [Start, End].
type Range struct {
	Start uint64
	End   uint64
}

// Len returns the number of heights in the range.
func (r Range) Len() uint64 {
	return r.End - r.Start + 1
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d]", r.Start, r.End)
}

// Window maps batch indices onto contiguous, non-overlapping height ranges.
// StartHeight is the first height of batch 0 and Interval the number of
// heights per batch. Both are fixed for the lifetime of a run.
type Window struct {
	StartHeight uint64
	Interval    uint64
}

// NewWindow validates and returns a Window.
func NewWindow(startHeight, interval uint64) (Window, error) {
	if interval == 0 {
		return Window{}, fmt.Errorf("%w: submission interval must be greater than 0", ErrInvalidWindow)
	}
	return Window{StartHeight: startHeight, Interval: interval}, nil
}

// RangeFor returns the height range committed by the batch with the given index.
// RangeFor(i).End+1 == RangeFor(i+1).Start holds for every i.
func (w Window) RangeFor(index uint64) Range {
	start := w.StartHeight + index*w.Interval
	return Range{Start: start, End: start + w.Interval - 1}
}

// IndexFor returns the index of the batch whose range contains height.
// It returns false for heights below the window start.
func (w Window) IndexFor(height uint64) (uint64, bool) {
	if w.Interval == 0 || height < w.StartHeight {
		return 0, false
	}
	return (height - w.StartHeight) / w.Interval, true
}

// Completed returns how many ranges are fully produced once the chain has reached height.
func (w Window) Completed(height uint64) uint64 {
	idx, ok := w.IndexFor(height)
	if !ok {
		return 0
	}
	if w.RangeFor(idx).End == height {
		return idx + 1
	}
	return idx
}

// NextIndex returns the index to submit after the latest persisted record.
func NextIndex(latest *Record) uint64 {
	if latest == nil {
		return 0
	}
	return latest.Index + 1
}
