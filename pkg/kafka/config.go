package kafka

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const (
	DefaultFlushTimeout = 15 * time.Second
	messageMaxBytes     = 20971521 // 20MB
)

// SASLConfig holds optional SASL authentication settings. An empty Username
// leaves the connection unauthenticated.
type SASLConfig struct {
	Username         string `env:"KAFKA_SASL_USERNAME"`
	Password         string `env:"KAFKA_SASL_PASSWORD"`
	Mechanism        string `env:"KAFKA_SASL_MECHANISM"    envDefault:"SCRAM-SHA-512"`
	SecurityProtocol string `env:"KAFKA_SECURITY_PROTOCOL" envDefault:"SASL_SSL"`
}

// Enabled reports whether SASL credentials are configured.
func (s SASLConfig) Enabled() bool {
	return s.Username != ""
}

// ApplyToConfigMap sets the SASL properties on cfg when enabled.
func (s SASLConfig) ApplyToConfigMap(cfg *kafka.ConfigMap) {
	if !s.Enabled() {
		return
	}
	_ = cfg.SetKey("security.protocol", s.SecurityProtocol)
	_ = cfg.SetKey("sasl.mechanisms", s.Mechanism)
	_ = cfg.SetKey("sasl.username", s.Username)
	_ = cfg.SetKey("sasl.password", s.Password)
}

// ProducerConfig holds the configuration of the batch event producer.
type ProducerConfig struct {
	Brokers                string        `env:"KAFKA_BROKERS"                   envDefault:"localhost:9092"`    // Comma-separated broker list
	Topic                  string        `env:"KAFKA_TOPIC"                     envDefault:"batch-submissions"` // Topic batch events are published to
	ClientID               string        `env:"KAFKA_CLIENT_ID"                 envDefault:"batch-submitter"`
	EnableLogs             bool          `env:"KAFKA_ENABLE_LOGS"               envDefault:"false"` // Forward librdkafka logs to the logger
	FlushTimeout           time.Duration `env:"KAFKA_FLUSH_TIMEOUT"             envDefault:"15s"`
	CreateTopic            bool          `env:"KAFKA_CREATE_TOPIC"              envDefault:"false"` // Create or grow the topic at startup
	TopicNumPartitions     int           `env:"KAFKA_TOPIC_NUM_PARTITIONS"      envDefault:"1"`
	TopicReplicationFactor int           `env:"KAFKA_TOPIC_REPLICATION_FACTOR"  envDefault:"1"`
	SASL                   SASLConfig
}

// LoadProducerConfig loads the producer configuration from environment variables.
func LoadProducerConfig() (ProducerConfig, error) {
	cfg, err := env.ParseAs[ProducerConfig]()
	if err != nil {
		return ProducerConfig{}, fmt.Errorf("failed to parse kafka producer config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c ProducerConfig) Validate() error {
	if strings.TrimSpace(c.Brokers) == "" {
		return errors.New("kafka brokers are required")
	}
	if c.Topic == "" {
		return errors.New("kafka topic is required")
	}
	if c.CreateTopic {
		return c.TopicConfig().Validate()
	}
	return nil
}

// TopicConfig returns the desired topic layout.
func (c ProducerConfig) TopicConfig() TopicConfig {
	return TopicConfig{
		Name:              c.Topic,
		NumPartitions:     c.TopicNumPartitions,
		ReplicationFactor: c.TopicReplicationFactor,
	}
}

// ConfigMap builds the librdkafka configuration for a producer.
func (c ProducerConfig) ConfigMap() *kafka.ConfigMap {
	cfg := &kafka.ConfigMap{
		"bootstrap.servers": c.Brokers,
		"client.id":         c.ClientID,

		// Wait for all in-sync replicas.
		"acks":               "all",
		"enable.idempotence": true,

		// Batch events are rare; keep latency low.
		"linger.ms":        5,
		"compression.type": "lz4",

		"go.logs.channel.enable": c.EnableLogs,
		"message.max.bytes":      messageMaxBytes,
	}
	c.SASL.ApplyToConfigMap(cfg)
	return cfg
}

// AdminConfigMap builds the configuration for an admin client on the same cluster.
func (c ProducerConfig) AdminConfigMap() *kafka.ConfigMap {
	cfg := &kafka.ConfigMap{
		"bootstrap.servers": c.Brokers,
		"client.id":         c.ClientID + "-admin",
	}
	c.SASL.ApplyToConfigMap(cfg)
	return cfg
}
