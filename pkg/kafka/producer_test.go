package kafka

import (
	"context"
	"testing"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/initia-labs/batch-submitter/pkg/batch"
	"github.com/initia-labs/batch-submitter/pkg/kafka/testutils"
	"github.com/initia-labs/batch-submitter/pkg/metrics"
)

// librdkafka connects lazily, so producers can be created without a broker.
func newUnconnectedProducer(t *testing.T, ctx context.Context) *Producer {
	t.Helper()

	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	cfg := ProducerConfig{Brokers: "localhost:9092", ClientID: "producer-test"}
	p, err := NewProducer(ctx, cfg.ConfigMap(), testutils.NewTestLogger(t), m)
	require.NoError(t, err)
	return p
}

func TestNewProducer(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	p := newUnconnectedProducer(t, ctx)
	assert.NotNil(t, p.producer)
	assert.Positive(t, cap(p.Errors()))
	p.Close(time.Second)
}

func TestNewProducer_InvalidConfig(t *testing.T) {
	_, err := NewProducer(t.Context(), &cKafka.ConfigMap{"go.logs.channel.enable": "yes"}, testutils.NewTestLogger(t), nil)
	require.Error(t, err)
}

func TestProducer_Close_Idempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	p := newUnconnectedProducer(t, ctx)
	p.Close(time.Second)
	p.Close(time.Second)

	_, ok := <-p.Errors()
	assert.False(t, ok, "error channel should be closed after Close()")
}

func TestProducer_Close_AfterContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	p := newUnconnectedProducer(t, ctx)

	cancel()
	start := time.Now()
	p.Close(time.Second)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestProducer_Produce_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	p := newUnconnectedProducer(t, ctx)
	defer p.Close(100 * time.Millisecond)

	produceCtx, produceCancel := context.WithCancel(t.Context())
	produceCancel()

	err := p.Produce(produceCtx, Msg{Topic: "batches", Key: []byte("1/0"), Value: []byte("{}")})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDeliveryResult(t *testing.T) {
	log := testutils.NewTestLogger(t)

	rec := &batch.Record{LedgerID: "1", Index: 0, TxHash: "AB"}
	ok := testutils.NewBatchEventMessage(t, "batches", 12, rec, batch.Range{Start: 1, End: 10})
	require.NoError(t, deliveryResult(log, ok))

	failed := testutils.NewDeliveredMessage("batches", 0, []byte("1/0"), nil)
	failed.TopicPartition.Error = cKafka.NewError(cKafka.ErrMsgTimedOut, "message timed out", false)
	require.ErrorContains(t, deliveryResult(log, failed), "delivery failed")

	require.Error(t, deliveryResult(log, cKafka.NewError(cKafka.ErrAllBrokersDown, "down", false)))
}
