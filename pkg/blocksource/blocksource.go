package blocksource

import (
	"context"
	"errors"

	"github.com/initia-labs/batch-submitter/pkg/batch"
)

// ErrUnavailable is returned by Fetch when the node cannot serve the requested
// range even though it reported the heights as produced.
var ErrUnavailable = errors.New("block bulk unavailable")

// Bulk is the raw block data for an inclusive height range, one entry per height
// in ascending order.
type Bulk struct {
	Range  batch.Range
	Blocks [][]byte
}

// Source supplies raw L2 block data.
type Source interface {
	// LatestHeight returns the latest height produced by the chain.
	LatestHeight(ctx context.Context) (uint64, error)
	// Fetch returns the raw blocks for r. Callers must not request ranges beyond LatestHeight.
	Fetch(ctx context.Context, r batch.Range) (*Bulk, error)
}
