package kafka

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/initia-labs/batch-submitter/pkg/batch"
	"github.com/initia-labs/batch-submitter/pkg/kafka/messages"
	"github.com/initia-labs/batch-submitter/pkg/metrics"
)

// Publisher produces a single message. *Producer satisfies it.
type Publisher interface {
	Produce(ctx context.Context, msg Msg) error
}

// Notifier publishes a BatchSubmitted event for every persisted batch.
type Notifier struct {
	publisher Publisher
	topic     string
	log       *zap.SugaredLogger
	metrics   *metrics.Metrics
}

// NewNotifier returns a Notifier publishing to topic. m may be nil.
func NewNotifier(publisher Publisher, topic string, log *zap.SugaredLogger, m *metrics.Metrics) (*Notifier, error) {
	if publisher == nil {
		return nil, errors.New("invalid notifier: publisher is nil")
	}
	if topic == "" {
		return nil, errors.New("invalid notifier: topic is required")
	}
	return &Notifier{publisher: publisher, topic: topic, log: log, metrics: m}, nil
}

// BatchSubmitted publishes the event for rec covering r.
func (n *Notifier) BatchSubmitted(ctx context.Context, rec *batch.Record, r batch.Range) error {
	event := messages.NewBatchSubmitted(rec, r)
	value, err := event.Marshal()
	if err != nil {
		n.metrics.RecordEventProduced(err)
		return err
	}

	err = n.publisher.Produce(ctx, Msg{
		Topic: n.topic,
		Key:   []byte(event.Key()),
		Value: value,
		Headers: map[string]string{
			"type":    messages.BatchSubmittedType,
			"ledger":  rec.LedgerID,
			"tx_hash": rec.TxHash,
		},
	})
	n.metrics.RecordEventProduced(err)
	if err != nil {
		return err
	}
	n.log.Debugw("published batch event", "topic", n.topic, "key", event.Key())
	return nil
}
