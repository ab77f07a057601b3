package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
)

// RetrievalMetrics implements ports.RetrievalObserver.
type RetrievalMetrics struct {
	service string

	queryTotal      *prometheus.CounterVec
	queryDuration   *prometheus.HistogramVec
	searchTotal     *prometheus.CounterVec
	dynamicK        *prometheus.HistogramVec
	achievementRate *prometheus.HistogramVec
	returnedDocs    *prometheus.HistogramVec
	breakerState    *prometheus.GaugeVec
}

func NewRetrievalMetrics(service string, reg prometheus.Registerer) *RetrievalMetrics {
	m := &RetrievalMetrics{
		service: service,
		queryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "queries_total",
				Help:      "Enhanced queries executed by outcome.",
			},
			[]string{"service", "outcome"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "query_duration_seconds",
				Help:      "Per-query embed and index latency.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
			},
			[]string{"service", "outcome"},
		),
		searchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "searches_total",
				Help:      "Fused searches by degraded reason; empty reason means healthy.",
			},
			[]string{"service", "store", "degraded"},
		),
		dynamicK: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "dynamic_k",
				Help:      "Dynamic K chosen per search.",
				Buckets:   []float64{5, 8, 10, 15, 20, 30, 50, 80, 100},
			},
			[]string{"service", "stakeholder"},
		),
		achievementRate: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "k_achievement_rate",
				Help:      "Returned documents divided by dynamic K.",
				Buckets:   []float64{0.1, 0.25, 0.5, 0.75, 0.9, 1},
			},
			[]string{"service", "stakeholder"},
		),
		returnedDocs: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "returned_documents",
				Help:      "Fused documents returned per search.",
				Buckets:   []float64{0, 1, 3, 5, 8, 13, 21, 34, 55, 100},
			},
			[]string{"service"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "breaker_state",
				Help:      "Circuit breaker state per operation: 0 closed, 1 half-open, 2 open.",
			},
			[]string{"service", "operation"},
		),
	}
	reg.MustRegister(
		m.queryTotal,
		m.queryDuration,
		m.searchTotal,
		m.dynamicK,
		m.achievementRate,
		m.returnedDocs,
		m.breakerState,
	)
	return m
}

func (m *RetrievalMetrics) ObserveQuery(outcome string, duration float64) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.queryTotal.WithLabelValues(m.service, outcome).Inc()
	m.queryDuration.WithLabelValues(m.service, outcome).Observe(duration)
}

func (m *RetrievalMetrics) ObserveSearch(result domain.SearchResult) {
	md := result.Metadata
	m.searchTotal.WithLabelValues(m.service, md.StoreType, md.Degraded).Inc()
	m.returnedDocs.WithLabelValues(m.service).Observe(float64(len(result.Documents)))
	if md.DynamicK <= 0 {
		return
	}
	stakeholder := stakeholderLabel(md.StakeholderID)
	m.dynamicK.WithLabelValues(m.service, stakeholder).Observe(float64(md.DynamicK))
	m.achievementRate.WithLabelValues(m.service, stakeholder).Observe(md.AchievementRate)
}

// ObserveBreaker matches resilience.StateObserver.
func (m *RetrievalMetrics) ObserveBreaker(operation, _, to string) {
	value := 0.0
	switch to {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}

// Custom ids are unbounded, so they share one label value.
func stakeholderLabel(id string) string {
	if domain.IsPredefinedStakeholder(id) {
		return id
	}
	return "custom"
}
