package main

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/initia-labs/batch-submitter/pkg/bridge"
	"github.com/initia-labs/batch-submitter/pkg/payload"
)

const (
	storeClickHouse = "clickhouse"
	storePostgres   = "postgres"
	storeBadger     = "badger"
	storeMemory     = "memory"
)

// runFlags returns all CLI flags for the batchsubmitter run command
func runFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "l2-rpc-url",
			Aliases:  []string{"r"},
			Usage:    "The CometBFT RPC URL of the L2 node to read blocks from",
			EnvVars:  []string{"L2_RPC_URL"},
			Required: true,
		},
		&cli.StringFlag{
			Name:     "l1-rpc-url",
			Usage:    "The CometBFT RPC URL of the L1 node to submit batches to",
			EnvVars:  []string{"L1_RPC_URL"},
			Required: true,
		},
		&cli.DurationFlag{
			Name:    "rpc-timeout",
			Usage:   "Timeout of a single RPC request",
			EnvVars: []string{"RPC_TIMEOUT"},
			Value:   30 * time.Second,
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Aliases: []string{"p"},
			Usage:   "How long to wait before checking again when the next range is not produced yet",
			EnvVars: []string{"POLL_INTERVAL"},
			Value:   time.Second,
		},
		&cli.StringFlag{
			Name:    "codec",
			Usage:   "Batch payload compression (gzip or zstd)",
			EnvVars: []string{"PAYLOAD_CODEC"},
			Value:   string(payload.CodecGzip),
		},
		&cli.StringFlag{
			Name:     "chain-id",
			Aliases:  []string{"C"},
			Usage:    "The chain ID of the L1",
			EnvVars:  []string{"L1_CHAIN_ID"},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "address-prefix",
			Usage:   "Bech32 prefix of L1 account addresses",
			EnvVars: []string{"L1_ADDRESS_PREFIX"},
			Value:   "init",
		},
		&cli.Uint64Flag{
			Name:    "gas-limit",
			Usage:   "Gas limit of a record_batch transaction",
			EnvVars: []string{"GAS_LIMIT"},
			Value:   2_000_000,
		},
		&cli.StringFlag{
			Name:    "gas-price",
			Usage:   "Fee per unit of gas (decimal); empty submits without fee",
			EnvVars: []string{"GAS_PRICE"},
			Value:   "0.15",
		},
		&cli.StringFlag{
			Name:    "fee-denom",
			Usage:   "Denomination the fee is paid in",
			EnvVars: []string{"FEE_DENOM"},
			Value:   "uinit",
		},
		&cli.StringFlag{
			Name:    "memo",
			Usage:   "Memo attached to every transaction",
			EnvVars: []string{"TX_MEMO"},
		},
		&cli.DurationFlag{
			Name:    "confirm-poll-interval",
			Usage:   "How often to look for a broadcast transaction in L1 blocks",
			EnvVars: []string{"CONFIRM_POLL_INTERVAL"},
			Value:   time.Second,
		},
		&cli.DurationFlag{
			Name:    "confirm-timeout",
			Usage:   "How long to wait for a broadcast transaction to be included",
			EnvVars: []string{"CONFIRM_TIMEOUT"},
			Value:   time.Minute,
		},
		&cli.BoolFlag{
			Name:    "kafka-enabled",
			Usage:   "Publish an event for every submitted batch (configured through KAFKA_* variables)",
			EnvVars: []string{"KAFKA_ENABLED"},
		},
		&cli.DurationFlag{
			Name:    "notify-timeout",
			Usage:   "Upper bound for publishing a single batch event",
			EnvVars: []string{"NOTIFY_TIMEOUT"},
			Value:   10 * time.Second,
		},
		&cli.DurationFlag{
			Name:    "lag-watchdog-interval",
			Aliases: []string{"g"},
			Usage:   "How often to compare submission progress with the L2 height (0 disables)",
			EnvVars: []string{"LAG_WATCHDOG_INTERVAL"},
			Value:   5 * time.Minute,
		},
		&cli.Uint64Flag{
			Name:    "lag-watchdog-max-batches",
			Aliases: []string{"G"},
			Usage:   "The number of produced but unsubmitted batches before a warning is logged",
			EnvVars: []string{"LAG_WATCHDOG_MAX_BATCHES"},
			Value:   10,
		},
		// Metrics configuration flags
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for Prometheus metrics HTTP server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Aliases: []string{"m"},
			Usage:   "Port for Prometheus metrics HTTP server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
		&cli.StringFlag{
			Name:    "environment",
			Aliases: []string{"E"},
			Usage:   "Deployment environment for metrics labels (e.g., 'production', 'staging')",
			EnvVars: []string{"ENVIRONMENT"},
			Value:   "",
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "Cloud region for metrics labels (e.g., 'us-east-1')",
			EnvVars: []string{"REGION"},
			Value:   "",
		},
		&cli.StringFlag{
			Name:    "cloud-provider",
			Usage:   "Cloud provider for metrics labels (e.g., 'aws', 'oci', 'gcp')",
			EnvVars: []string{"CLOUD_PROVIDER"},
			Value:   "",
		},
	}

	flags = append(flags, ledgerFlags()...)
	flags = append(flags, windowFlags()...)
	return append(flags, storeFlags()...)
}

// statusFlags returns the flags of the status command
func statusFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:    "verify",
			Usage:   "Decode the latest stored payload and check it holds one block per height",
			EnvVars: []string{"STATUS_VERIFY"},
		},
		&cli.StringFlag{
			Name:    "codec",
			Usage:   "Compression the stored payloads were written with (gzip or zstd)",
			EnvVars: []string{"PAYLOAD_CODEC"},
			Value:   string(payload.CodecGzip),
		},
		&cli.StringFlag{
			Name:    "l2-rpc-url",
			Aliases: []string{"r"},
			Usage:   "Optional CometBFT RPC URL of the L2 node, used to report how many batches are ready",
			EnvVars: []string{"L2_RPC_URL"},
		},
	}

	flags = append(flags, ledgerFlags()...)
	flags = append(flags, windowFlags()...)
	return append(flags, storeFlags()...)
}

// resetFlags returns the flags of the reset command
func resetFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Confirm the deletion; without it reset only reports what would be removed",
		},
	}

	flags = append(flags, ledgerFlags()...)
	return append(flags, storeFlags()...)
}

func ledgerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
			Value:   false,
		},
		&cli.StringFlag{
			Name:     "ledger-id",
			Aliases:  []string{"l"},
			Usage:    "The bridge ID of the L2 ledger whose batches are submitted",
			EnvVars:  []string{"LEDGER_ID"},
			Required: true,
		},
	}
}

// windowFlags configure where the batch window comes from.
func windowFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "l1-rest-url",
			Usage:   "The L1 REST endpoint serving the bridge configuration",
			EnvVars: []string{"L1_REST_URL"},
		},
		&cli.StringFlag{
			Name:    "bridge-config-path",
			Usage:   "Path of the bridge configuration query; {ledger_id} is substituted",
			EnvVars: []string{"BRIDGE_CONFIG_PATH"},
			Value:   bridge.DefaultPath,
		},
		&cli.Uint64Flag{
			Name:    "start-height",
			Aliases: []string{"s"},
			Usage:   "Override the first L2 height of batch 0 instead of reading it from the bridge",
			EnvVars: []string{"START_HEIGHT"},
		},
		&cli.Uint64Flag{
			Name:    "submission-interval",
			Aliases: []string{"i"},
			Usage:   "Override the number of L2 blocks per batch instead of reading it from the bridge",
			EnvVars: []string{"SUBMISSION_INTERVAL"},
		},
	}
}

// storeFlags select and configure the batch record store.
func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "store",
			Usage:   "Batch record store (clickhouse, postgres, badger or memory)",
			EnvVars: []string{"STORE_BACKEND"},
			Value:   storeClickHouse,
		},
		&cli.StringFlag{
			Name:    "records-table-name",
			Aliases: []string{"T"},
			Usage:   "The name of the table batch records are written to",
			EnvVars: []string{"RECORDS_TABLE_NAME"},
			Value:   "batch_records",
		},
		&cli.StringFlag{
			Name:    "postgres-dsn",
			Usage:   "Postgres connection string",
			EnvVars: []string{"POSTGRES_DSN"},
		},
		&cli.IntFlag{
			Name:    "postgres-max-open-conns",
			Usage:   "Postgres maximum open connections",
			EnvVars: []string{"POSTGRES_MAX_OPEN_CONNS"},
			Value:   5,
		},
		&cli.IntFlag{
			Name:    "postgres-max-idle-conns",
			Usage:   "Postgres maximum idle connections",
			EnvVars: []string{"POSTGRES_MAX_IDLE_CONNS"},
			Value:   2,
		},
		&cli.DurationFlag{
			Name:    "postgres-conn-max-lifetime",
			Usage:   "Postgres connection max lifetime",
			EnvVars: []string{"POSTGRES_CONN_MAX_LIFETIME"},
			Value:   30 * time.Minute,
		},
		&cli.StringFlag{
			Name:    "badger-dir",
			Usage:   "Directory of the embedded badger database",
			EnvVars: []string{"BADGER_DIR"},
			Value:   "./data/records",
		},
		// ClickHouse configuration flags
		&cli.StringSliceFlag{
			Name:    "clickhouse-hosts",
			Usage:   "ClickHouse server hosts (comma-separated)",
			EnvVars: []string{"CLICKHOUSE_HOSTS"},
			Value:   cli.NewStringSlice("localhost:9000"),
		},
		&cli.StringFlag{
			Name:    "clickhouse-cluster",
			Usage:   "ClickHouse cluster name",
			EnvVars: []string{"CLICKHOUSE_CLUSTER"},
			Value:   "default",
		},
		&cli.StringFlag{
			Name:    "clickhouse-database",
			Usage:   "ClickHouse database name",
			EnvVars: []string{"CLICKHOUSE_DATABASE"},
			Value:   "default",
		},
		&cli.StringFlag{
			Name:    "clickhouse-username",
			Usage:   "ClickHouse username",
			EnvVars: []string{"CLICKHOUSE_USERNAME"},
			Value:   "default",
		},
		&cli.StringFlag{
			Name:    "clickhouse-password",
			Usage:   "ClickHouse password",
			EnvVars: []string{"CLICKHOUSE_PASSWORD"},
			Value:   "",
		},
		&cli.BoolFlag{
			Name:    "clickhouse-debug",
			Usage:   "Enable ClickHouse debug logging",
			EnvVars: []string{"CLICKHOUSE_DEBUG"},
		},
		&cli.BoolFlag{
			Name:    "clickhouse-insecure-skip-verify",
			Usage:   "Skip TLS certificate verification for ClickHouse",
			EnvVars: []string{"CLICKHOUSE_INSECURE_SKIP_VERIFY"},
			Value:   true,
		},
		&cli.IntFlag{
			Name:    "clickhouse-max-execution-time",
			Usage:   "ClickHouse max execution time in seconds",
			EnvVars: []string{"CLICKHOUSE_MAX_EXECUTION_TIME"},
			Value:   60,
		},
		&cli.IntFlag{
			Name:    "clickhouse-dial-timeout",
			Usage:   "ClickHouse dial timeout in seconds",
			EnvVars: []string{"CLICKHOUSE_DIAL_TIMEOUT"},
			Value:   30,
		},
		&cli.IntFlag{
			Name:    "clickhouse-max-open-conns",
			Usage:   "ClickHouse maximum open connections",
			EnvVars: []string{"CLICKHOUSE_MAX_OPEN_CONNS"},
			Value:   5,
		},
		&cli.IntFlag{
			Name:    "clickhouse-max-idle-conns",
			Usage:   "ClickHouse maximum idle connections",
			EnvVars: []string{"CLICKHOUSE_MAX_IDLE_CONNS"},
			Value:   5,
		},
		&cli.IntFlag{
			Name:    "clickhouse-conn-max-lifetime",
			Usage:   "ClickHouse connection max lifetime in minutes",
			EnvVars: []string{"CLICKHOUSE_CONN_MAX_LIFETIME"},
			Value:   10,
		},
		&cli.IntFlag{
			Name:    "clickhouse-block-buffer-size",
			Usage:   "ClickHouse block buffer size",
			EnvVars: []string{"CLICKHOUSE_BLOCK_BUFFER_SIZE"},
			Value:   10,
		},
		&cli.IntFlag{
			Name:    "clickhouse-max-block-size",
			Usage:   "ClickHouse max block size (recommended maximum number of rows in a single block)",
			EnvVars: []string{"CLICKHOUSE_MAX_BLOCK_SIZE"},
			Value:   1000,
		},
		&cli.IntFlag{
			Name:    "clickhouse-max-compression-buffer",
			Usage:   "ClickHouse max compression buffer in bytes",
			EnvVars: []string{"CLICKHOUSE_MAX_COMPRESSION_BUFFER"},
			Value:   10240,
		},
		&cli.StringFlag{
			Name:    "clickhouse-client-name",
			Usage:   "ClickHouse client name for ClientInfo",
			EnvVars: []string{"CLICKHOUSE_CLIENT_NAME"},
			Value:   "batch-submitter",
		},
		&cli.StringFlag{
			Name:    "clickhouse-client-version",
			Usage:   "ClickHouse client version for ClientInfo",
			EnvVars: []string{"CLICKHOUSE_CLIENT_VERSION"},
			Value:   "1.0",
		},
	}
}
