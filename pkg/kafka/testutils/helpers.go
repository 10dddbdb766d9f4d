package testutils

import (
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/initia-labs/batch-submitter/pkg/batch"
	"github.com/initia-labs/batch-submitter/pkg/kafka/messages"
)

// NewTestLogger creates a test logger that writes to testing.T
func NewTestLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}

// NewDeliveredMessage returns a message as the broker reports it after delivery at offset.
func NewDeliveredMessage(topic string, offset int64, key, value []byte) *kafka.Message {
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:  &topic,
			Offset: kafka.Offset(offset),
		},
		Key:   key,
		Value: value,
	}
}

// NewBatchEventMessage returns the delivered message carrying the event published for rec.
func NewBatchEventMessage(t *testing.T, topic string, offset int64, rec *batch.Record, r batch.Range) *kafka.Message {
	t.Helper()
	event := messages.NewBatchSubmitted(rec, r)
	value, err := event.Marshal()
	require.NoError(t, err)

	msg := NewDeliveredMessage(topic, offset, []byte(event.Key()), value)
	msg.Headers = []kafka.Header{{Key: "type", Value: []byte(messages.BatchSubmittedType)}}
	return msg
}
