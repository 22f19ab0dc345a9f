package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector manages Prometheus metrics for the platform
type Collector struct {
	agentCycles     *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec

	alertsCreated      *prometheus.CounterVec
	transactionsScored prometheus.Counter
	riskScores         prometheus.Histogram
	ingestedTotal      *prometheus.CounterVec

	reportsGenerated *prometheus.CounterVec

	wsClients prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewCollector registers all metrics against the given registerer
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		agentCycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chain_monitor_agent_cycles_total",
				Help: "Total number of agent execution cycles",
			},
			[]string{"agent_type", "result"},
		),
		handlerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chain_monitor_handler_duration_seconds",
				Help:    "Agent handler execution time",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent_type"},
		),
		alertsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chain_monitor_alerts_created_total",
				Help: "Total number of alerts created by the automatic handlers",
			},
			[]string{"severity", "type"},
		),
		transactionsScored: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chain_monitor_transactions_scored_total",
				Help: "Total number of transactions scored",
			},
		),
		riskScores: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chain_monitor_risk_scores",
				Help:    "Distribution of computed risk scores",
				Buckets: prometheus.LinearBuckets(0, 1, 11),
			},
		),
		ingestedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chain_monitor_transactions_ingested_total",
				Help: "Total number of transactions ingested",
			},
			[]string{"source"},
		),
		reportsGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chain_monitor_reports_generated_total",
				Help: "Total number of reports driven to a terminal state",
			},
			[]string{"format", "status"},
		),
		wsClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chain_monitor_websocket_clients",
				Help: "Number of connected WebSocket clients",
			},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chain_monitor_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chain_monitor_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// RecordCycle records a completed agent cycle
func (c *Collector) RecordCycle(agentType, result string) {
	c.agentCycles.WithLabelValues(agentType, result).Inc()
}

// ObserveHandler records a handler execution duration
func (c *Collector) ObserveHandler(agentType string, d time.Duration) {
	c.handlerDuration.WithLabelValues(agentType).Observe(d.Seconds())
}

// RecordAlert records a created alert
func (c *Collector) RecordAlert(severity, alertType string) {
	c.alertsCreated.WithLabelValues(severity, alertType).Inc()
}

// RecordScore records a computed risk score
func (c *Collector) RecordScore(score float64) {
	c.transactionsScored.Inc()
	c.riskScores.Observe(score)
}

// RecordIngested records an ingested transaction by source
func (c *Collector) RecordIngested(source string) {
	c.ingestedTotal.WithLabelValues(source).Inc()
}

// RecordReport records a report reaching a terminal state
func (c *Collector) RecordReport(format, status string) {
	c.reportsGenerated.WithLabelValues(format, status).Inc()
}

// SetWSClients sets the connected WebSocket client gauge
func (c *Collector) SetWSClients(n int) {
	c.wsClients.Set(float64(n))
}

// RecordHTTP records a completed HTTP request
func (c *Collector) RecordHTTP(method, path, status string, d time.Duration) {
	c.httpRequests.WithLabelValues(method, path, status).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
