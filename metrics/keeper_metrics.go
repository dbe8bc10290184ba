package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "keeper"

// Delivery outcomes used as the status label.
const (
	StatusConfirmed = "confirmed"
	StatusExhausted = "exhausted"
	StatusSkipped   = "skipped"
	StatusRejected  = "rejected"
)

// KeeperMetrics holds the collectors of the keeper daemon. Each instance
// owns its registry so tests can create as many as they need.
type KeeperMetrics struct {
	registry *prometheus.Registry

	mu      sync.Mutex
	highest map[string]uint64

	requestsReceived       *prometheus.CounterVec
	deliveries             *prometheus.CounterVec
	deliveryRetries        *prometheus.HistogramVec
	finalFeeMultiplier     *prometheus.HistogramVec
	deliveryDuration       *prometheus.HistogramVec
	highestRevealed        *prometheus.GaugeVec
	lastScannedBlock       *prometheus.GaugeVec
	nonceResets            *prometheus.CounterVec
	txErrors               *prometheus.CounterVec
	inFlightDeliveries     prometheus.Gauge
	lastDeliveryTimestamps *prometheus.GaugeVec
}

func NewKeeperMetrics() *KeeperMetrics {
	m := &KeeperMetrics{
		registry: prometheus.NewRegistry(),
		highest:  make(map[string]uint64),
		requestsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_received_total",
				Help:      "Total number of randomness requests observed on chain.",
			},
			[]string{"chain_id", "provider"},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_total",
				Help:      "Total number of reveal deliveries by outcome.",
			},
			[]string{"chain_id", "provider", "status"},
		),
		deliveryRetries: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "delivery_retries",
				Help:      "Number of retries needed by a delivery.",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"chain_id", "provider"},
		),
		finalFeeMultiplier: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "final_fee_multiplier_pct",
				Help:      "Fee multiplier in percent applied to the confirmed transaction.",
				Buckets:   prometheus.LinearBuckets(100, 25, 9),
			},
			[]string{"chain_id", "provider"},
		),
		deliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "delivery_duration_seconds",
				Help:      "Wall clock duration of a delivery.",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
			},
			[]string{"chain_id", "provider"},
		),
		highestRevealed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "highest_revealed_sequence_number",
				Help:      "Highest sequence number revealed by the hash chain registry.",
			},
			[]string{"chain_id", "provider"},
		),
		lastScannedBlock: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_scanned_block",
				Help:      "Last block scanned for randomness requests.",
			},
			[]string{"chain_id", "provider"},
		),
		nonceResets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "nonce_resets_total",
				Help:      "Total number of times the local nonce was discarded.",
			},
			[]string{"signer"},
		),
		txErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tx_errors_total",
				Help:      "Total number of failed delivery attempts by error kind.",
			},
			[]string{"chain_id", "kind"},
		),
		inFlightDeliveries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "inflight_deliveries",
				Help:      "Current number of deliveries in progress.",
			},
		),
		lastDeliveryTimestamps: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_delivery_timestamp_seconds",
				Help:      "Unix time of the last delivery by outcome.",
			},
			[]string{"chain_id", "provider", "status"},
		),
	}

	m.registry.MustRegister(
		m.requestsReceived,
		m.deliveries,
		m.deliveryRetries,
		m.finalFeeMultiplier,
		m.deliveryDuration,
		m.highestRevealed,
		m.lastScannedBlock,
		m.nonceResets,
		m.txErrors,
		m.inFlightDeliveries,
		m.lastDeliveryTimestamps,
	)

	return m
}

func (m *KeeperMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *KeeperMetrics) IncrementRequestsReceived(chainID, provider string) {
	m.requestsReceived.WithLabelValues(chainID, provider).Inc()
}

// RecordDelivery records the outcome of a delivery. retries and feePct are
// only observed for confirmed deliveries.
func (m *KeeperMetrics) RecordDelivery(chainID, provider, status string, retries, feePct uint64, duration time.Duration) {
	m.deliveries.WithLabelValues(chainID, provider, status).Inc()
	m.lastDeliveryTimestamps.WithLabelValues(chainID, provider, status).SetToCurrentTime()
	if status != StatusConfirmed {
		return
	}
	m.deliveryRetries.WithLabelValues(chainID, provider).Observe(float64(retries))
	m.finalFeeMultiplier.WithLabelValues(chainID, provider).Observe(float64(feePct))
	m.deliveryDuration.WithLabelValues(chainID, provider).Observe(duration.Seconds())
}

// RecordHighestRevealed only ever moves the gauge up.
func (m *KeeperMetrics) RecordHighestRevealed(chainID, provider string, seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := chainID + "/" + provider
	if cur, ok := m.highest[key]; ok && cur >= seq {
		return
	}
	m.highest[key] = seq
	m.highestRevealed.WithLabelValues(chainID, provider).Set(float64(seq))
}

func (m *KeeperMetrics) RecordLastScannedBlock(chainID, provider string, block uint64) {
	m.lastScannedBlock.WithLabelValues(chainID, provider).Set(float64(block))
}

func (m *KeeperMetrics) IncrementNonceResets(signer string) {
	m.nonceResets.WithLabelValues(signer).Inc()
}

func (m *KeeperMetrics) IncrementTxErrors(chainID, kind string) {
	m.txErrors.WithLabelValues(chainID, kind).Inc()
}

func (m *KeeperMetrics) DeliveryStarted() {
	m.inFlightDeliveries.Inc()
}

func (m *KeeperMetrics) DeliveryFinished() {
	m.inFlightDeliveries.Dec()
}
