// Package metrics provides Prometheus metrics for Grimoire.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the item repository.
type Metrics struct {
	// Repository operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Search metrics
	SearchQueriesTotal prometheus.Counter
	SearchResultsTotal prometheus.Counter

	// Index consistency
	IndexRepairsTotal *prometheus.CounterVec

	// Item counts by category, refreshed on stats
	ItemsTotal *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// New creates all metrics on a private registry.
// Each repository gets its own registry so tests can open many side by side.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWith(reg, reg)
}

// NewWith registers all metrics on reg and exposes them through g.
func NewWith(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{gatherer: g}

	m.OperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimoire_repository_operations_total",
			Help: "Total number of repository operations",
		},
		[]string{"operation", "status"},
	)

	m.OperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grimoire_repository_operation_duration_seconds",
			Help:    "Duration of repository operations in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	m.SearchQueriesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "grimoire_search_queries_total",
			Help: "Total number of search queries",
		},
	)

	m.SearchResultsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "grimoire_search_results_total",
			Help: "Total number of search results returned",
		},
	)

	m.IndexRepairsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimoire_index_repairs_total",
			Help: "Search index entries repaired, by kind (reindexed, removed)",
		},
		[]string{"kind"},
	)

	m.ItemsTotal = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "grimoire_items",
			Help: "Number of stored items by category",
		},
		[]string{"category"},
	)

	return m
}

// RecordOperation records a repository operation. status is "ok" or an error code.
func (m *Metrics) RecordOperation(operation, status string, duration time.Duration) {
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSearch records one query and its result count.
func (m *Metrics) RecordSearch(results int) {
	m.SearchQueriesTotal.Inc()
	m.SearchResultsTotal.Add(float64(results))
}

// RecordIndexRepair records one repaired index entry.
func (m *Metrics) RecordIndexRepair(kind string) {
	m.IndexRepairsTotal.WithLabelValues(kind).Inc()
}

// SetItemCounts updates the per-category item gauges.
func (m *Metrics) SetItemCounts(counts map[string]int) {
	for category, n := range counts {
		m.ItemsTotal.WithLabelValues(category).Set(float64(n))
	}
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
