package blocksource

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	rpchttp "github.com/tendermint/tendermint/rpc/client/http"
	ctypes "github.com/tendermint/tendermint/rpc/core/types"
	jsonrpcclient "github.com/tendermint/tendermint/rpc/jsonrpc/client"
	"go.uber.org/zap"

	"github.com/initia-labs/batch-submitter/pkg/batch"
	"github.com/initia-labs/batch-submitter/pkg/metrics"
)

const (
	methodStatus    = "status"
	methodBlockBulk = "block_bulk"
)

type statusClient interface {
	Status(ctx context.Context) (*ctypes.ResultStatus, error)
}

type caller interface {
	Call(ctx context.Context, method string, params map[string]interface{}, result interface{}) (interface{}, error)
}

// resultBlockBulk is the response of the block_bulk RPC method.
type resultBlockBulk struct {
	Blocks [][]byte `json:"blocks"`
}

// Comet reads blocks from a CometBFT node exposing the block_bulk RPC method.
type Comet struct {
	status  statusClient
	rpc     caller
	timeout time.Duration
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

var _ Source = (*Comet)(nil)

// DialComet connects to the CometBFT RPC endpoint at rpcURL. timeout bounds each call.
func DialComet(rpcURL string, timeout time.Duration, log *zap.SugaredLogger, m *metrics.Metrics) (*Comet, error) {
	status, err := rpchttp.New(rpcURL, "/websocket")
	if err != nil {
		return nil, fmt.Errorf("failed to create status client: %w", err)
	}
	rpc, err := jsonrpcclient.NewWithHTTPClient(rpcURL, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc client: %w", err)
	}
	return newComet(status, rpc, timeout, log, m), nil
}

func newComet(status statusClient, rpc caller, timeout time.Duration, log *zap.SugaredLogger, m *metrics.Metrics) *Comet {
	return &Comet{status: status, rpc: rpc, timeout: timeout, log: log, metrics: m}
}

// LatestHeight returns the latest block height reported by the node.
func (c *Comet) LatestHeight(ctx context.Context) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	c.metrics.IncRPCInFlight()
	res, err := c.status.Status(ctx)
	c.metrics.DecRPCInFlight()
	c.metrics.RecordRPCCall(methodStatus, err, time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to query node status: %w", err)
	}
	if res.SyncInfo.LatestBlockHeight < 0 {
		return 0, fmt.Errorf("node reported negative height %d", res.SyncInfo.LatestBlockHeight)
	}
	return uint64(res.SyncInfo.LatestBlockHeight), nil
}

// Fetch returns the raw blocks for r. A missing bulk or a bulk that does not
// cover every height of r is reported as ErrUnavailable.
func (c *Comet) Fetch(ctx context.Context, r batch.Range) (*Bulk, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := map[string]interface{}{
		"start": strconv.FormatUint(r.Start, 10),
		"end":   strconv.FormatUint(r.End, 10),
	}

	var res resultBlockBulk
	start := time.Now()
	c.metrics.IncRPCInFlight()
	_, err := c.rpc.Call(ctx, methodBlockBulk, params, &res)
	c.metrics.DecRPCInFlight()
	c.metrics.RecordRPCCall(methodBlockBulk, err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block bulk %s: %w", r, err)
	}

	if len(res.Blocks) == 0 {
		return nil, fmt.Errorf("%w: empty bulk for %s", ErrUnavailable, r)
	}
	if uint64(len(res.Blocks)) != r.Len() {
		return nil, fmt.Errorf("%w: got %d blocks for %s", ErrUnavailable, len(res.Blocks), r)
	}

	c.log.Debugw("fetched block bulk", "start", r.Start, "end", r.End, "blocks", len(res.Blocks))
	return &Bulk{Range: r, Blocks: res.Blocks}, nil
}

func (c *Comet) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
