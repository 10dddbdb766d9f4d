package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const metadataTimeout = 10 * time.Second

// TopicConfig describes the layout of the batch events topic.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
}

// Validate checks the layout can be used to create a topic.
func (tc TopicConfig) Validate() error {
	if tc.Name == "" {
		return errors.New("topic name cannot be empty")
	}
	if tc.NumPartitions <= 0 {
		return fmt.Errorf("number of partitions must be > 0, got %d", tc.NumPartitions)
	}
	if tc.ReplicationFactor <= 0 {
		return fmt.Errorf("replication factor must be > 0, got %d", tc.ReplicationFactor)
	}
	return nil
}

// TopicExists returns the topic metadata, or nil when the topic does not exist.
func TopicExists(admin *kafka.AdminClient, name string) (*kafka.TopicMetadata, error) {
	md, err := admin.GetMetadata(&name, false, int(metadataTimeout.Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata for topic %q: %w", name, err)
	}

	topic, ok := md.Topics[name]
	switch {
	case !ok || topic.Error.Code() == kafka.ErrUnknownTopicOrPart:
		return nil, nil
	case topic.Error.Code() != kafka.ErrNoError:
		return nil, fmt.Errorf("topic %q has error: %w", name, topic.Error)
	}
	return &topic, nil
}

// EnsureTopic creates the topic, or grows its partition count when it exists
// with fewer partitions. Partitions cannot shrink and replication cannot be
// changed here; both mismatches are logged and left to the operator.
func EnsureTopic(ctx context.Context, admin *kafka.AdminClient, cfg TopicConfig, log *zap.SugaredLogger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid topic config: %w", err)
	}

	md, err := TopicExists(admin, cfg.Name)
	if err != nil {
		return err
	}
	if md == nil {
		return createTopic(ctx, admin, cfg, log)
	}

	partitions := len(md.Partitions)
	if rf := replicationFactor(md); rf != cfg.ReplicationFactor {
		log.Warnw("topic replication factor differs from config",
			"topic", cfg.Name,
			"current", rf,
			"desired", cfg.ReplicationFactor,
		)
	}

	switch {
	case partitions < cfg.NumPartitions:
		return increasePartitions(ctx, admin, cfg, log)
	case partitions > cfg.NumPartitions:
		log.Warnw("topic has more partitions than configured, keeping current count",
			"topic", cfg.Name,
			"current", partitions,
			"desired", cfg.NumPartitions,
		)
	}
	return nil
}

func createTopic(ctx context.Context, admin *kafka.AdminClient, cfg TopicConfig, log *zap.SugaredLogger) error {
	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             cfg.Name,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}})
	if err != nil {
		return fmt.Errorf("failed to create topic %q: %w", cfg.Name, err)
	}

	for _, res := range results {
		switch res.Error.Code() {
		case kafka.ErrNoError:
			log.Infow("created topic",
				"topic", res.Topic,
				"partitions", cfg.NumPartitions,
				"replicationFactor", cfg.ReplicationFactor,
			)
		case kafka.ErrTopicAlreadyExists:
			// Lost a race with another submitter.
			log.Infow("topic already exists", "topic", res.Topic)
		default:
			return fmt.Errorf("failed to create topic %q: %w", res.Topic, res.Error)
		}
	}
	return nil
}

func increasePartitions(ctx context.Context, admin *kafka.AdminClient, cfg TopicConfig, log *zap.SugaredLogger) error {
	results, err := admin.CreatePartitions(ctx, []kafka.PartitionsSpecification{{
		Topic:      cfg.Name,
		IncreaseTo: cfg.NumPartitions,
	}})
	if err != nil {
		return fmt.Errorf("failed to increase partitions for topic %q: %w", cfg.Name, err)
	}
	for _, res := range results {
		if res.Error.Code() != kafka.ErrNoError {
			return fmt.Errorf("failed to increase partitions for topic %q: %w", res.Topic, res.Error)
		}
		log.Infow("increased topic partitions", "topic", res.Topic, "partitions", cfg.NumPartitions)
	}
	return nil
}

// replicationFactor reads the replica count of the first partition.
func replicationFactor(md *kafka.TopicMetadata) int {
	if len(md.Partitions) == 0 {
		return 0
	}
	return len(md.Partitions[0].Replicas)
}
