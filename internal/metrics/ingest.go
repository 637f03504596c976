package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Ingestion stream Prometheus metrics.
var (
	IngestMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contentdex",
			Name:      "ingest_messages_total",
			Help:      "Ingestion stream messages by subject and outcome",
		},
		[]string{"subject", "outcome"}, // "ack" / "nak" / "term"
	)

	IngestHandleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "contentdex",
			Name:      "ingest_handle_duration_seconds",
			Help:      "Time spent applying one ingestion message",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"subject"},
	)
)

var ingestMetricsRegistered bool

// RegisterIngestMetrics registers ingestion metrics. Must be called once from main.
func RegisterIngestMetrics() {
	if ingestMetricsRegistered {
		return
	}
	prometheus.MustRegister(IngestMessagesTotal)
	prometheus.MustRegister(IngestHandleDuration)
	ingestMetricsRegistered = true
}

// ObserveMessage records how one ingestion message was settled.
func (Recorder) ObserveMessage(subject, outcome string, d time.Duration) {
	IngestMessagesTotal.WithLabelValues(subject, outcome).Inc()
	IngestHandleDuration.WithLabelValues(subject).Observe(d.Seconds())
}
