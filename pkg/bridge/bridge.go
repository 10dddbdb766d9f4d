// Package bridge resolves the batch window of a ledger from its bridge
// configuration on L1.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/initia-labs/batch-submitter/pkg/batch"
)

// DefaultPath is the REST path of the bridge configuration. {ledger_id} is substituted.
const DefaultPath = "/initia/ophost/v1/bridges/{ledger_id}/config"

var ErrNotFound = errors.New("bridge not found")

// Config is the subset of the bridge configuration the submitter needs.
type Config struct {
	StartingHeight     uint64
	SubmissionInterval uint64
}

// Fetcher looks up the bridge configuration of a ledger.
type Fetcher interface {
	Fetch(ctx context.Context, ledgerID string) (Config, error)
}

// quantity accepts both JSON numbers and decimal strings.
type quantity uint64

func (q *quantity) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid quantity %s: %w", b, err)
	}
	if n == "" {
		return errors.New("missing value")
	}
	v, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid quantity %s: %w", b, err)
	}
	*q = quantity(v)
	return nil
}

type configResponse struct {
	StartingBlockNumber *quantity `json:"starting_block_number"`
	SubmissionInterval  *quantity `json:"submission_interval"`
}

// Client fetches bridge configuration from the L1 REST endpoint.
type Client struct {
	http *resty.Client
	path string
	log  *zap.SugaredLogger
}

// NewClient returns a Client for the REST API at baseURL. An empty path uses DefaultPath.
func NewClient(baseURL, path string, timeout time.Duration, log *zap.SugaredLogger) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("invalid bridge client: base URL is required")
	}
	if path == "" {
		path = DefaultPath
	}
	if !strings.Contains(path, "{ledger_id}") {
		return nil, fmt.Errorf("invalid bridge client: path %q has no {ledger_id} placeholder", path)
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: rc, path: path, log: log}, nil
}

// Fetch implements Fetcher.
func (c *Client) Fetch(ctx context.Context, ledgerID string) (Config, error) {
	var body configResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("ledger_id", ledgerID).
		SetResult(&body).
		Get(c.path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to fetch bridge config for ledger %s: %w", ledgerID, err)
	}
	switch {
	case resp.StatusCode() == 404:
		return Config{}, fmt.Errorf("%w: ledger %s", ErrNotFound, ledgerID)
	case resp.IsError():
		return Config{}, fmt.Errorf("failed to fetch bridge config for ledger %s: %s: %s",
			ledgerID, resp.Status(), strings.TrimSpace(resp.String()))
	}
	if body.StartingBlockNumber == nil || body.SubmissionInterval == nil {
		return Config{}, fmt.Errorf("incomplete bridge config for ledger %s: %s", ledgerID, resp.String())
	}

	cfg := Config{
		StartingHeight:     uint64(*body.StartingBlockNumber),
		SubmissionInterval: uint64(*body.SubmissionInterval),
	}
	c.log.Infow("fetched bridge config",
		"ledgerID", ledgerID,
		"startingHeight", cfg.StartingHeight,
		"submissionInterval", cfg.SubmissionInterval,
	)
	return cfg, nil
}

// Overrides pin window parameters instead of taking them from the bridge.
// Nil fields are taken from the fetched configuration.
type Overrides struct {
	StartingHeight     *uint64
	SubmissionInterval *uint64
}

func (o Overrides) complete() bool {
	return o.StartingHeight != nil && o.SubmissionInterval != nil
}

// Resolver produces the batch window of one ledger.
type Resolver struct {
	fetcher   Fetcher
	ledgerID  string
	overrides Overrides
}

// NewResolver returns a Resolver. fetcher may be nil when both overrides are set.
func NewResolver(fetcher Fetcher, ledgerID string, overrides Overrides) (*Resolver, error) {
	if ledgerID == "" {
		return nil, errors.New("invalid bridge resolver: ledger ID is required")
	}
	if fetcher == nil && !overrides.complete() {
		return nil, errors.New("invalid bridge resolver: fetcher is required unless both overrides are set")
	}
	return &Resolver{fetcher: fetcher, ledgerID: ledgerID, overrides: overrides}, nil
}

// Window returns the batch window. The bridge is only queried when an override is missing.
func (r *Resolver) Window(ctx context.Context) (batch.Window, error) {
	var cfg Config
	if !r.overrides.complete() {
		fetched, err := r.fetcher.Fetch(ctx, r.ledgerID)
		if err != nil {
			return batch.Window{}, err
		}
		cfg = fetched
	}
	if r.overrides.StartingHeight != nil {
		cfg.StartingHeight = *r.overrides.StartingHeight
	}
	if r.overrides.SubmissionInterval != nil {
		cfg.SubmissionInterval = *r.overrides.SubmissionInterval
	}
	return batch.NewWindow(cfg.StartingHeight, cfg.SubmissionInterval)
}
