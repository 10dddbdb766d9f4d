package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "batch_submitter"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"

	Settlement = "settlement"
	Payload    = "payload"
	Kafka      = "kafka"
)

// Labels holds constant labels applied to all metrics.
// These are useful for distinguishing metrics from submitters of different ledgers.
type Labels struct {
	LedgerID      string // L2 ledger (bridge) identifier
	Environment   string // Deployment environment (e.g., "production", "staging", "development")
	Region        string // Cloud region (e.g., "us-east-1", "eu-west-1")
	CloudProvider string // Cloud provider (e.g., "aws", "oci", "gcp")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.LedgerID != "" {
		labels["ledger_id"] = l.LedgerID
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	if l.CloudProvider != "" {
		labels["cloud_provider"] = l.CloudProvider
	}
	return labels
}

type Metrics struct {
	// Loop progress
	nextIndex        prometheus.Gauge
	submittedIndex   prometheus.Gauge
	submittedHeight  prometheus.Gauge
	chainHeight      prometheus.Gauge
	batchesSubmitted prometheus.Counter
	waits            prometheus.Counter
	errors           *prometheus.CounterVec

	// RPC metrics
	rpcCalls    *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
	rpcInFlight prometheus.Gauge

	// End-to-end latency of one batch, fetch through persist
	batchProcessingDuration prometheus.Histogram

	// Payload metrics
	rawBytes        prometheus.Histogram
	compressedBytes prometheus.Histogram

	// Settlement metrics
	txBroadcasts    *prometheus.CounterVec
	confirmDuration prometheus.Histogram

	// Event publication metrics
	eventsProduced *prometheus.CounterVec
	kafkaErrors    *prometheus.CounterVec
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
// For metrics with constant labels (e.g., ledger_id), use NewWithLabels instead.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		nextIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "next_index",
			Help:      "Index of the batch currently being assembled",
		}),
		submittedIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "submitted_index",
			Help:      "Index of the latest batch confirmed on L1 and persisted",
		}),
		submittedHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "submitted_height",
			Help:      "Last L2 height covered by the latest persisted batch",
		}),
		chainHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "chain_height",
			Help:      "Latest L2 height reported by the node",
		}),
		batchesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "batches_submitted_total",
			Help:      "Total number of batches confirmed on L1 and persisted",
		}),
		waits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "waits_total",
			Help:      "Total number of times the loop waited for L2 to produce a full range",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total fatal errors by kind",
		}, []string{"type"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Total RPC calls by method and status",
		}, []string{"method", "status"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "duration_seconds",
			Help:      "RPC call duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		rpcInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "in_flight",
			Help:      "Number of RPC calls currently in progress",
		}),
		batchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Time to process a single batch end-to-end",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		rawBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Payload,
			Name:      "raw_bytes",
			Help:      "Size of the framed block data before compression",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		compressedBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Payload,
			Name:      "compressed_bytes",
			Help:      "Size of the compressed batch payload",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		txBroadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Settlement,
			Name:      "broadcasts_total",
			Help:      "Total record_batch transactions broadcast by status",
		}, []string{"status"}),
		confirmDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Settlement,
			Name:      "confirm_duration_seconds",
			Help:      "Time from broadcast until the transaction was found in a block",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		eventsProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Kafka,
			Name:      "events_produced_total",
			Help:      "Total batch events published by status",
		}, []string{"status"}),
		kafkaErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Kafka,
			Name:      "errors_total",
			Help:      "Total number of Kafka client errors by severity (fatal/non_fatal)",
		}, []string{"severity"}),
	}

	err := errors.Join(
		reg.Register(m.nextIndex),
		reg.Register(m.submittedIndex),
		reg.Register(m.submittedHeight),
		reg.Register(m.chainHeight),
		reg.Register(m.batchesSubmitted),
		reg.Register(m.waits),
		reg.Register(m.errors),
		reg.Register(m.rpcCalls),
		reg.Register(m.rpcDuration),
		reg.Register(m.rpcInFlight),
		reg.Register(m.batchProcessingDuration),
		reg.Register(m.rawBytes),
		reg.Register(m.compressedBytes),
		reg.Register(m.txBroadcasts),
		reg.Register(m.confirmDuration),
		reg.Register(m.eventsProduced),
		reg.Register(m.kafkaErrors),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Error type label values, one per fatal error kind.
const (
	ErrTypeConfig  = "config"
	ErrTypeFetch   = "fetch"
	ErrTypePayload = "payload"
	ErrTypeSubmit  = "submit"
	ErrTypeStore   = "store"
)

// IncError increments the error counter for the given error type.
func (m *Metrics) IncError(errType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errType).Inc()
}

// SetNextIndex records the index the loop is working on.
func (m *Metrics) SetNextIndex(index uint64) {
	if m == nil {
		return
	}
	m.nextIndex.Set(float64(index))
}

// SetChainHeight records the latest L2 height observed.
func (m *Metrics) SetChainHeight(height uint64) {
	if m == nil {
		return
	}
	m.chainHeight.Set(float64(height))
}

// IncWaits counts one wait for L2 progress.
func (m *Metrics) IncWaits() {
	if m == nil {
		return
	}
	m.waits.Inc()
}

// CommitBatch records a batch that was confirmed and persisted.
func (m *Metrics) CommitBatch(index, endHeight uint64, durationSeconds float64) {
	if m == nil {
		return
	}
	m.batchesSubmitted.Inc()
	m.submittedIndex.Set(float64(index))
	m.submittedHeight.Set(float64(endHeight))
	m.batchProcessingDuration.Observe(durationSeconds)
}

// IncRPCInFlight increments the in-flight RPC gauge.
func (m *Metrics) IncRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Inc()
}

// DecRPCInFlight decrements the in-flight RPC gauge.
func (m *Metrics) DecRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Dec()
}

// RecordRPCCall records an RPC call outcome.
func (m *Metrics) RecordRPCCall(method string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	m.rpcCalls.WithLabelValues(method, status(err)).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// ObservePayload records the size of a batch before and after compression.
func (m *Metrics) ObservePayload(rawBytes, compressedBytes int) {
	if m == nil {
		return
	}
	m.rawBytes.Observe(float64(rawBytes))
	m.compressedBytes.Observe(float64(compressedBytes))
}

// RecordBroadcast records a settlement transaction broadcast attempt.
func (m *Metrics) RecordBroadcast(err error) {
	if m == nil {
		return
	}
	m.txBroadcasts.WithLabelValues(status(err)).Inc()
}

// ObserveConfirmDuration records how long inclusion of a transaction took.
func (m *Metrics) ObserveConfirmDuration(seconds float64) {
	if m == nil {
		return
	}
	m.confirmDuration.Observe(seconds)
}

// RecordEventProduced records a batch event delivery outcome.
func (m *Metrics) RecordEventProduced(err error) {
	if m == nil {
		return
	}
	m.eventsProduced.WithLabelValues(status(err)).Inc()
}

// RecordKafkaError records a Kafka error by severity.
func (m *Metrics) RecordKafkaError(fatal bool) {
	if m == nil {
		return
	}
	severity := "non_fatal"
	if fatal {
		severity = "fatal"
	}
	m.kafkaErrors.WithLabelValues(severity).Inc()
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
