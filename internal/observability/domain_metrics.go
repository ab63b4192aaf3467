package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	generationLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nlquery_generation_latency_ms",
			Help:    "Language model round trip latency in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 20000, 60000},
		},
		[]string{"provider", "outcome"},
	)
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlquery_executions_total",
			Help: "Total number of artifact executions by source kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	executionLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nlquery_execution_latency_ms",
			Help:    "Artifact execution latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"kind"},
	)
	executionRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlquery_execution_rows_total",
			Help: "Total number of result rows returned by executions.",
		},
		[]string{"kind"},
	)
	schemaCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlquery_schema_cache_lookups_total",
			Help: "Schema cache lookups by source kind and result (hit or miss).",
		},
		[]string{"kind", "result"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nlquery_active_sessions",
			Help: "Current number of live sessions.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		generationLatencyMs,
		executionsTotal,
		executionLatencyMs,
		executionRowsTotal,
		schemaCacheLookupsTotal,
		activeSessions,
	)
}

func ObserveGeneration(provider string, err error, elapsed time.Duration) {
	generationLatencyMs.WithLabelValues(provider, outcome(err)).Observe(float64(elapsed.Milliseconds()))
}

func ObserveExecution(kind string, rows int, failed bool, elapsed time.Duration) {
	result := "ok"
	if failed {
		result = "error"
	}
	executionsTotal.WithLabelValues(kind, result).Inc()
	executionLatencyMs.WithLabelValues(kind).Observe(float64(elapsed.Milliseconds()))
	if rows > 0 {
		executionRowsTotal.WithLabelValues(kind).Add(float64(rows))
	}
}

func ObserveSchemaLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	schemaCacheLookupsTotal.WithLabelValues(kind, result).Inc()
}

func SetActiveSessions(count int) {
	if count < 0 {
		count = 0
	}
	activeSessions.Set(float64(count))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
