package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry          *prometheus.Registry
	mintRequestsTotal *prometheus.CounterVec
	extractionsTotal  *prometheus.CounterVec
	queriesTotal      *prometheus.CounterVec
	rpcDuration       *prometheus.HistogramVec
}

func newMetricsRegistry() *metricsRegistry {
	mint := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trustify_mint_requests_total",
		Help: "Mint requests by outcome",
	}, []string{"status"})

	extractions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trustify_token_id_extractions_total",
		Help: "Token id extraction from Transfer logs of mined mints",
	}, []string{"result"})

	queries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trustify_queries_total",
		Help: "Read-only contract queries by operation and outcome",
	}, []string{"operation", "status"})

	rpc := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trustify_contract_call_duration_seconds",
		Help:    "Latency of contract calls, including receipt wait for mint",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"operation"})

	r := prometheus.NewRegistry()
	r.MustRegister(mint, extractions, queries, rpc)

	return &metricsRegistry{
		registry:          r,
		mintRequestsTotal: mint,
		extractionsTotal:  extractions,
		queriesTotal:      queries,
		rpcDuration:       rpc,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incMint(status string) {
	m.mintRequestsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incExtraction(result string) {
	m.extractionsTotal.WithLabelValues(result).Inc()
}

func (m *metricsRegistry) incQuery(operation, status string) {
	m.queriesTotal.WithLabelValues(operation, status).Inc()
}

func (m *metricsRegistry) observeRPC(operation string, start time.Time) {
	m.rpcDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
