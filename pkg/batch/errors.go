package batch

import (
	"errors"
	"fmt"
)

// Error kinds. Every kind aborts a run; the supervisor restarts the process and
// the loop resumes from the progress store.
var (
	ErrConfig  = errors.New("config error")
	ErrFetch   = errors.New("fetch error")
	ErrPayload = errors.New("payload error")
	ErrSubmit  = errors.New("submit error")
	ErrStore   = errors.New("store error")
)

// Error is a fatal failure of a single batch. It matches its Kind with errors.Is
// and exposes the underlying cause through Unwrap.
type Error struct {
	Kind  error
	Index uint64
	Range Range
	Err   error
}

// NewError builds an Error for the batch at index covering r.
func NewError(kind error, index uint64, r Range, err error) *Error {
	return &Error{Kind: kind, Index: index, Range: r, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: batch %d %s: %v", e.Kind, e.Index, e.Range, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
