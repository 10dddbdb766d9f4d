package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/prometheus/client_golang/prometheus"
	rpchttp "github.com/tendermint/tendermint/rpc/client/http"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/initia-labs/batch-submitter/pkg/batch"
	"github.com/initia-labs/batch-submitter/pkg/blocksource"
	"github.com/initia-labs/batch-submitter/pkg/kafka"
	"github.com/initia-labs/batch-submitter/pkg/metrics"
	"github.com/initia-labs/batch-submitter/pkg/payload"
	"github.com/initia-labs/batch-submitter/pkg/settlement"
	"github.com/initia-labs/batch-submitter/pkg/submitter"
	"github.com/initia-labs/batch-submitter/pkg/utils"
)

func run(c *cli.Context) error {
	// Build configuration from CLI flags
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger("batchsubmitter", cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"ledgerID", cfg.LedgerID,
		"l2RPCURL", cfg.L2RPCURL,
		"l1RPCURL", cfg.L1RPCURL,
		"l1RESTURL", cfg.Window.RESTURL,
		"bridgeConfigPath", cfg.Window.ConfigPath,
		"rpcTimeout", cfg.RPCTimeout,
		"pollInterval", cfg.PollInterval,
		"codec", cfg.Codec,
		"chainID", cfg.Settlement.ChainID,
		"gasLimit", cfg.Settlement.GasLimit,
		"gasPrice", cfg.Settlement.GasPrice,
		"feeDenom", cfg.Settlement.FeeDenom,
		"confirmTimeout", cfg.Settlement.ConfirmTimeout,
		"store", cfg.Store.Backend,
		"recordsTableName", cfg.Store.TableName,
		"kafkaEnabled", cfg.KafkaEnabled,
		"lagWatchdogInterval", cfg.LagWatchdogInterval,
		"lagWatchdogMaxBatches", cfg.LagWatchdogMaxBatches,
		"metricsHost", cfg.MetricsHost,
		"metricsPort", cfg.MetricsPort,
		"environment", cfg.Environment,
		"region", cfg.Region,
		"cloudProvider", cfg.CloudProvider,
	)

	key, err := loadSigningKey()
	if err != nil {
		return err
	}

	// Initialize Prometheus metrics with labels for multi-instance filtering
	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, metrics.Labels{
		LedgerID:      cfg.LedgerID,
		Environment:   cfg.Environment,
		Region:        cfg.Region,
		CloudProvider: cfg.CloudProvider,
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The window is immutable for the run; the payload budget derives from it.
	window, err := resolveWindow(ctx, cfg.Window, cfg.LedgerID, sugar.Named("bridge"))
	if err != nil {
		return fmt.Errorf("%w: failed to resolve batch window: %w", batch.ErrConfig, err)
	}
	cfg.Settlement.MaxPayloadBytes = maxPayloadBytes(window.Interval)
	sugar.Infow("batch window resolved",
		"startHeight", window.StartHeight,
		"submissionInterval", window.Interval,
		"maxPayloadBytes", cfg.Settlement.MaxPayloadBytes,
	)

	store, closeStore, err := openStore(ctx, cfg.Store, sugar.Named("store"))
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer closeStore()

	source, err := blocksource.DialComet(cfg.L2RPCURL, cfg.RPCTimeout, sugar.Named("l2"), m)
	if err != nil {
		return fmt.Errorf("failed to dial L2 rpc: %w", err)
	}

	builder, err := payload.NewBuilder(cfg.Codec)
	if err != nil {
		return fmt.Errorf("failed to create payload builder: %w", err)
	}
	defer builder.Close()

	l1, err := rpchttp.NewWithClient(cfg.L1RPCURL, "/websocket", &http.Client{Timeout: cfg.RPCTimeout})
	if err != nil {
		return fmt.Errorf("failed to dial L1 rpc: %w", err)
	}
	settler, err := settlement.New(l1, key, cfg.Settlement, sugar.Named("settlement"), m)
	if err != nil {
		return fmt.Errorf("failed to create settlement submitter: %w", err)
	}
	sugar.Infow("submitting as", "sender", settler.Sender())

	deps := submitter.Deps{
		Window:  resolvedWindow(window),
		Store:   store,
		Source:  source,
		Builder: builder,
		Settler: settler,
	}

	var producerErrs <-chan error
	if cfg.KafkaEnabled {
		producer, notifier, flushTimeout, err := setupKafka(ctx, sugar.Named("kafka"), m)
		if err != nil {
			return err
		}
		defer producer.Close(flushTimeout)
		producerErrs = producer.Errors()
		deps.Notifier = notifier
	}

	loop, err := submitter.New(submitter.Config{
		LedgerID:      cfg.LedgerID,
		PollInterval:  cfg.PollInterval,
		NotifyTimeout: cfg.NotifyTimeout,
	}, deps, sugar.Named("loop"), m)
	if err != nil {
		return fmt.Errorf("failed to create submission loop: %w", err)
	}

	// Start metrics server
	metricsServer := metrics.NewServer(cfg.MetricsAddr(), registry, func() error {
		if p := loop.Phase(); p == submitter.PhaseStopped {
			return fmt.Errorf("submission loop %s", p)
		}
		return nil
	})
	metricsErrCh := metricsServer.Start()
	if cfg.MetricsHost == "" {
		sugar.Infof("metrics server listening on http://0.0.0.0:%d/metrics", cfg.MetricsPort)
	} else {
		sugar.Infof("metrics server listening on http://%s/metrics", cfg.MetricsAddr())
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		// The loop returning ends the run, including on a clean stop.
		defer cancel()
		return loop.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-metricsErrCh:
			if err != nil {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		}
	})
	if producerErrs != nil {
		go watchProducerErrors(gctx, producerErrs, sugar.Named("kafka"))
	}

	if cfg.LagWatchdogInterval > 0 {
		go submitter.StartLagWatchdog(gctx, sugar.Named("watchdog"), loop, source, window,
			cfg.LagWatchdogInterval, cfg.LagWatchdogMaxBatches)
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		sugar.Infow("exiting due to context cancellation")
		err = nil
	} else if err != nil {
		sugar.Errorw("run failed", "error", err)
	}

	// Gracefully shutdown metrics server
	sugar.Info("shutting down metrics server")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("metrics server shutdown error", "error", err)
	}

	sugar.Info("shutdown complete")
	return err
}

// watchProducerErrors logs fatal producer errors until ctx is done or errs is
// closed. A broken producer only stops batch events, never the run.
func watchProducerErrors(ctx context.Context, errs <-chan error, log *zap.SugaredLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				return
			}
			log.Errorw("kafka producer failed, batch events are not being published", "error", err)
		}
	}
}

// setupKafka ensures the event topic exists when asked to and builds the producer and notifier.
// It also returns how long the producer may flush on close.
func setupKafka(
	ctx context.Context,
	log *zap.SugaredLogger,
	m *metrics.Metrics,
) (*kafka.Producer, *kafka.Notifier, time.Duration, error) {
	pc, err := kafka.LoadProducerConfig()
	if err != nil {
		return nil, nil, 0, err
	}
	if err := pc.Validate(); err != nil {
		return nil, nil, 0, fmt.Errorf("invalid kafka config: %w", err)
	}
	log.Infow("kafka config",
		"brokers", pc.Brokers,
		"topic", pc.Topic,
		"clientID", pc.ClientID,
		"createTopic", pc.CreateTopic,
		"sasl", pc.SASL.Enabled(),
	)

	if pc.CreateTopic {
		admin, err := confluentKafka.NewAdminClient(pc.AdminConfigMap())
		if err != nil {
			return nil, nil, 0, fmt.Errorf("failed to create kafka admin client: %w", err)
		}
		err = kafka.EnsureTopic(ctx, admin, pc.TopicConfig(), log)
		admin.Close()
		if err != nil {
			return nil, nil, 0, fmt.Errorf("failed to ensure kafka topic exists: %w", err)
		}
	}

	producer, err := kafka.NewProducer(ctx, pc.ConfigMap(), log, m)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	notifier, err := kafka.NewNotifier(producer, pc.Topic, log, m)
	if err != nil {
		producer.Close(pc.FlushTimeout)
		return nil, nil, 0, err
	}
	return producer, notifier, pc.FlushTimeout, nil
}
