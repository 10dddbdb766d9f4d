package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/initia-labs/batch-submitter/pkg/batch"
	"github.com/initia-labs/batch-submitter/pkg/bridge"
	"github.com/initia-labs/batch-submitter/pkg/clickhouse"
	pgrecords "github.com/initia-labs/batch-submitter/pkg/data/postgres/records"
	"github.com/initia-labs/batch-submitter/pkg/payload"
	"github.com/initia-labs/batch-submitter/pkg/settlement"
)

const (
	// minBlockBufferSize is the minimum valid value for BlockBufferSize (uint8: 0)
	minBlockBufferSize = 0
	// maxBlockBufferSize is the maximum valid value for BlockBufferSize (uint8: 255)
	maxBlockBufferSize = 255

	// payloadBytesPerBlock is the serialized payload budget granted per L2 block of a batch.
	payloadBytesPerBlock = 1000
)

// Config holds all configuration for the batchsubmitter run command
type Config struct {
	// Application settings
	Verbose bool

	// Ledger settings
	LedgerID     string
	L2RPCURL     string
	L1RPCURL     string
	RPCTimeout   time.Duration
	PollInterval time.Duration
	Codec        payload.Codec

	// Window settings
	Window WindowConfig

	// Settlement settings. MaxPayloadBytes is derived once the window is known.
	Settlement settlement.Config

	// Store settings
	Store StoreConfig

	// Event settings
	KafkaEnabled  bool
	NotifyTimeout time.Duration

	// Watchdog settings
	LagWatchdogInterval   time.Duration
	LagWatchdogMaxBatches uint64

	// Metrics settings
	MetricsHost   string
	MetricsPort   int
	Environment   string
	Region        string
	CloudProvider string
}

// WindowConfig tells where the batch window comes from.
type WindowConfig struct {
	RESTURL    string
	ConfigPath string
	Timeout    time.Duration
	Overrides  bridge.Overrides
}

// StoreConfig selects the batch record store.
type StoreConfig struct {
	Backend    string
	TableName  string
	ClickHouse clickhouse.Config
	Postgres   pgrecords.Config
	BadgerDir  string
}

// secrets are read from the environment only, never from flags.
type secrets struct {
	PrivateKey string `env:"SUBMITTER_PRIVATE_KEY,required,notEmpty,unset"`
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// buildConfig builds a Config from CLI context flags
func buildConfig(c *cli.Context) (*Config, error) {
	codec, err := payload.ParseCodec(c.String("codec"))
	if err != nil {
		return nil, err
	}

	storeCfg, err := buildStoreConfig(c)
	if err != nil {
		return nil, fmt.Errorf("failed to build store config: %w", err)
	}

	window, err := buildWindowConfig(c)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Verbose:      c.Bool("verbose"),
		LedgerID:     c.String("ledger-id"),
		L2RPCURL:     c.String("l2-rpc-url"),
		L1RPCURL:     c.String("l1-rpc-url"),
		RPCTimeout:   c.Duration("rpc-timeout"),
		PollInterval: c.Duration("poll-interval"),
		Codec:        codec,
		Window:       window,
		Settlement: settlement.Config{
			ChainID:             c.String("chain-id"),
			AddressPrefix:       c.String("address-prefix"),
			GasLimit:            c.Uint64("gas-limit"),
			GasPrice:            c.String("gas-price"),
			FeeDenom:            c.String("fee-denom"),
			Memo:                c.String("memo"),
			ConfirmPollInterval: c.Duration("confirm-poll-interval"),
			ConfirmTimeout:      c.Duration("confirm-timeout"),
		},
		Store:                 storeCfg,
		KafkaEnabled:          c.Bool("kafka-enabled"),
		NotifyTimeout:         c.Duration("notify-timeout"),
		LagWatchdogInterval:   c.Duration("lag-watchdog-interval"),
		LagWatchdogMaxBatches: c.Uint64("lag-watchdog-max-batches"),
		MetricsHost:           c.String("metrics-host"),
		MetricsPort:           c.Int("metrics-port"),
		Environment:           c.String("environment"),
		Region:                c.String("region"),
		CloudProvider:         c.String("cloud-provider"),
	}
	if cfg.RPCTimeout <= 0 {
		return nil, errors.New("rpc-timeout must be greater than 0")
	}
	return cfg, nil
}

// buildWindowConfig reads the bridge lookup settings. Overrides only count when
// the flag was set explicitly, so 0 is a valid starting height.
func buildWindowConfig(c *cli.Context) (WindowConfig, error) {
	cfg := WindowConfig{
		RESTURL:    c.String("l1-rest-url"),
		ConfigPath: c.String("bridge-config-path"),
		Timeout:    c.Duration("rpc-timeout"),
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if c.IsSet("start-height") {
		v := c.Uint64("start-height")
		cfg.Overrides.StartingHeight = &v
	}
	if c.IsSet("submission-interval") {
		v := c.Uint64("submission-interval")
		cfg.Overrides.SubmissionInterval = &v
	}

	pinned := cfg.Overrides.StartingHeight != nil && cfg.Overrides.SubmissionInterval != nil
	if cfg.RESTURL == "" && !pinned {
		return WindowConfig{}, errors.New("l1-rest-url is required unless both start-height and submission-interval are set")
	}
	return cfg, nil
}

// buildStoreConfig builds the record store configuration from CLI context flags
func buildStoreConfig(c *cli.Context) (StoreConfig, error) {
	cfg := StoreConfig{
		Backend:   strings.ToLower(c.String("store")),
		TableName: c.String("records-table-name"),
		BadgerDir: c.String("badger-dir"),
	}
	if cfg.TableName == "" {
		return StoreConfig{}, errors.New("records-table-name must not be empty")
	}

	switch cfg.Backend {
	case storeClickHouse:
		chCfg, err := buildClickHouseConfig(c)
		if err != nil {
			return StoreConfig{}, fmt.Errorf("failed to build ClickHouse config: %w", err)
		}
		cfg.ClickHouse = chCfg
	case storePostgres:
		cfg.Postgres = pgrecords.Config{
			DSN:             c.String("postgres-dsn"),
			MaxOpenConns:    c.Int("postgres-max-open-conns"),
			MaxIdleConns:    c.Int("postgres-max-idle-conns"),
			ConnMaxLifetime: c.Duration("postgres-conn-max-lifetime"),
			SlowThreshold:   time.Second,
		}
		if cfg.Postgres.DSN == "" {
			return StoreConfig{}, errors.New("postgres-dsn is required for the postgres store")
		}
	case storeBadger:
		if cfg.BadgerDir == "" {
			return StoreConfig{}, errors.New("badger-dir is required for the badger store")
		}
	case storeMemory:
	default:
		return StoreConfig{}, fmt.Errorf("unknown store %q (want %s, %s, %s or %s)",
			cfg.Backend, storeClickHouse, storePostgres, storeBadger, storeMemory)
	}
	return cfg, nil
}

// buildClickHouseConfig builds a ClickhouseConfig from CLI context flags
func buildClickHouseConfig(c *cli.Context) (clickhouse.Config, error) {
	// Handle hosts - StringSliceFlag returns []string, but we need to handle comma-separated values
	hosts := c.StringSlice("clickhouse-hosts")
	// If hosts is a single comma-separated string, split it
	if len(hosts) == 1 && strings.Contains(hosts[0], ",") {
		hosts = strings.Split(hosts[0], ",")
		for i, host := range hosts {
			hosts[i] = strings.TrimSpace(host)
		}
	}

	blockBufferSize := c.Int("clickhouse-block-buffer-size")
	if err := validateBlockBufferSize(blockBufferSize); err != nil {
		return clickhouse.Config{}, err
	}

	return clickhouse.Config{
		Hosts:                hosts,
		Cluster:              c.String("clickhouse-cluster"),
		Database:             c.String("clickhouse-database"),
		Username:             c.String("clickhouse-username"),
		Password:             c.String("clickhouse-password"),
		Debug:                c.Bool("clickhouse-debug"),
		InsecureSkipVerify:   c.Bool("clickhouse-insecure-skip-verify"),
		MaxExecutionTime:     c.Int("clickhouse-max-execution-time"),
		DialTimeout:          c.Int("clickhouse-dial-timeout"),
		MaxOpenConns:         c.Int("clickhouse-max-open-conns"),
		MaxIdleConns:         c.Int("clickhouse-max-idle-conns"),
		ConnMaxLifetime:      c.Int("clickhouse-conn-max-lifetime"),
		BlockBufferSize:      blockBufferSize,
		MaxBlockSize:         c.Int("clickhouse-max-block-size"),
		MaxCompressionBuffer: c.Int("clickhouse-max-compression-buffer"),
		ClientName:           c.String("clickhouse-client-name"),
		ClientVersion:        c.String("clickhouse-client-version"),
	}, nil
}

// validateBlockBufferSize validates that the block buffer size is within uint8 range (0-255)
func validateBlockBufferSize(size int) error {
	if size < minBlockBufferSize || size > maxBlockBufferSize {
		return fmt.Errorf(
			"clickhouse-block-buffer-size must be between %d and %d, got %d",
			minBlockBufferSize, maxBlockBufferSize, size,
		)
	}
	return nil
}

// loadSigningKey reads the submitter key from SUBMITTER_PRIVATE_KEY and clears the variable.
func loadSigningKey() (*settlement.Key, error) {
	s, err := env.ParseAs[secrets]()
	if err != nil {
		return nil, fmt.Errorf("failed to read submitter key: %w", err)
	}
	key, err := settlement.KeyFromHex(s.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse submitter key: %w", err)
	}
	return key, nil
}

// maxPayloadBytes returns the serialized payload budget of a batch of interval blocks.
func maxPayloadBytes(interval uint64) int {
	if interval > math.MaxInt/payloadBytesPerBlock {
		return math.MaxInt
	}
	return int(interval) * payloadBytesPerBlock
}

// resolveWindow resolves the batch window once, from the bridge unless both values are pinned.
func resolveWindow(ctx context.Context, cfg WindowConfig, ledgerID string, log *zap.SugaredLogger) (batch.Window, error) {
	var fetcher bridge.Fetcher
	if cfg.RESTURL != "" {
		client, err := bridge.NewClient(cfg.RESTURL, cfg.ConfigPath, cfg.Timeout, log)
		if err != nil {
			return batch.Window{}, err
		}
		fetcher = client
	}
	resolver, err := bridge.NewResolver(fetcher, ledgerID, cfg.Overrides)
	if err != nil {
		return batch.Window{}, err
	}
	return resolver.Window(ctx)
}

// resolvedWindow hands the loop the window resolved at startup.
type resolvedWindow batch.Window

func (w resolvedWindow) Window(context.Context) (batch.Window, error) {
	return batch.Window(w), nil
}
