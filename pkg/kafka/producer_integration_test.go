//go:build integration
// +build integration

package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap/zaptest"

	"github.com/initia-labs/batch-submitter/pkg/batch"
	"github.com/initia-labs/batch-submitter/pkg/kafka/messages"
)

const (
	kafkaImage  = "confluentinc/confluent-local:7.5.0"
	testTimeout = 60 * time.Second
)

func setupKafka(t *testing.T) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	container, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("batch-submitter-test"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func TestIntegration_EnsureTopicAndNotify(t *testing.T) {
	brokers := setupKafka(t)
	log := zaptest.NewLogger(t).Sugar()

	cfg := ProducerConfig{
		Brokers:                brokers,
		Topic:                  "batch-events",
		ClientID:               "integration",
		TopicNumPartitions:     2,
		TopicReplicationFactor: 1,
	}

	admin, err := kafka.NewAdminClient(cfg.AdminConfigMap())
	require.NoError(t, err)
	defer admin.Close()

	ctx, cancel := context.WithTimeout(t.Context(), testTimeout)
	defer cancel()

	require.NoError(t, EnsureTopic(ctx, admin, cfg.TopicConfig(), log))
	// A second call finds the topic with the desired layout.
	require.NoError(t, EnsureTopic(ctx, admin, cfg.TopicConfig(), log))

	grown := cfg.TopicConfig()
	grown.NumPartitions = 3
	require.NoError(t, EnsureTopic(ctx, admin, grown, log))
	md, err := TopicExists(admin, cfg.Topic)
	require.NoError(t, err)
	require.NotNil(t, md)
	assert.Len(t, md.Partitions, 3)

	producer, err := NewProducer(ctx, cfg.ConfigMap(), log, nil)
	require.NoError(t, err)
	defer producer.Close(5 * time.Second)

	notifier, err := NewNotifier(producer, cfg.Topic, log, nil)
	require.NoError(t, err)

	rec := &batch.Record{LedgerID: "1", Index: 0, Payload: []byte("payload"), TxHash: "AA", L1Height: 5, SubmittedAt: time.Now()}
	require.NoError(t, notifier.BatchSubmitted(ctx, rec, batch.Range{Start: 1, End: 100}))

	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"group.id":          "integration-reader",
		"auto.offset.reset": "earliest",
	})
	require.NoError(t, err)
	defer consumer.Close()
	require.NoError(t, consumer.Subscribe(cfg.Topic, nil))

	msg, err := consumer.ReadMessage(30 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "1/0", string(msg.Key))

	event, err := messages.ParseBatchSubmitted(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), event.EndHeight)
	assert.Equal(t, "AA", event.TxHash)
}
