package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Query and indexing Prometheus metrics.
var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contentdex",
			Name:      "queries_total",
			Help:      "Total number of content queries",
		},
		[]string{"engine", "status"},
	)

	WideningRounds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "contentdex",
			Name:      "query_widening_rounds",
			Help:      "Index rounds needed to fill a canonical page",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8},
		},
	)

	CollapseRatio = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "contentdex",
			Name:      "query_collapse_ratio",
			Help:      "Raw hits gathered per distinct canonical id",
			Buckets:   []float64{1, 1.25, 1.5, 2, 3, 4, 6, 10},
		},
	)

	ResolverLookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "contentdex",
			Name:      "resolver_lookup_duration_seconds",
			Help:      "Equivalence resolver batch lookup duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
		[]string{"status"},
	)

	IndexOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contentdex",
			Name:      "index_operations_total",
			Help:      "Total number of indexing operations",
		},
		[]string{"kind", "status"},
	)
)

var queryMetricsRegistered bool

// RegisterQueryMetrics registers query and indexing metrics. Must be called once from main.
func RegisterQueryMetrics() {
	if queryMetricsRegistered {
		return
	}
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(WideningRounds)
	prometheus.MustRegister(CollapseRatio)
	prometheus.MustRegister(ResolverLookupDuration)
	prometheus.MustRegister(IndexOperationsTotal)
	queryMetricsRegistered = true
}

// Recorder feeds usecase observations into the package metrics.
type Recorder struct{}

// ObserveQuery counts one finished query.
func (Recorder) ObserveQuery(engine, status string) {
	QueriesTotal.WithLabelValues(engine, status).Inc()
}

// ObserveWidening records the rounds and collapse of one canonical query.
func (Recorder) ObserveWidening(rounds, raw, canonical int) {
	WideningRounds.Observe(float64(rounds))
	if canonical > 0 {
		CollapseRatio.Observe(float64(raw) / float64(canonical))
	}
}

// ObserveLookup records one resolver batch lookup.
func (Recorder) ObserveLookup(d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ResolverLookupDuration.WithLabelValues(status).Observe(d.Seconds())
}

// ObserveIndex counts one indexing operation.
func (Recorder) ObserveIndex(kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	IndexOperationsTotal.WithLabelValues(kind, status).Inc()
}
