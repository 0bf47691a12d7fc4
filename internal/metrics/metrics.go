package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the planner service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)
	// RateLimited counts requests rejected by the per-tenant limiter
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_rate_limited_total", Help: "Requests rejected by rate limiting."},
		[]string{"path"},
	)

	// PlanRuns counts finished planner runs by algorithm and stop reason
	PlanRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "planner_runs_total", Help: "Planner runs by algorithm and stop reason."},
		[]string{"algo", "stop"},
	)
	PlanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "planner_run_duration_seconds", Help: "Planner run wall time in seconds.", Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 45, 60, 120}},
		[]string{"algo"},
	)
	PercentDelivered = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "planner_percent_delivered", Help: "Share of orders delivered on time by the best plan.", Buckets: prometheus.LinearBuckets(0, 10, 11)},
		[]string{"algo"},
	)
	Decodes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "planner_decodes_total", Help: "Priority vectors decoded into plans."},
		[]string{"algo"},
	)
	EliteImprovements = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "planner_elite_improvements_total", Help: "Elite improvements found during search."},
		[]string{"algo"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to Registry once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration, RateLimited)
		Registry.MustRegister(PlanRuns, PlanDuration, PercentDelivered, Decodes, EliteImprovements)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// ObservePlan records one finished planner run.
func ObservePlan(algo, stop string, seconds, percent float64, decodes, improvements int) {
	PlanRuns.WithLabelValues(algo, stop).Inc()
	PlanDuration.WithLabelValues(algo).Observe(seconds)
	PercentDelivered.WithLabelValues(algo).Observe(percent)
	Decodes.WithLabelValues(algo).Add(float64(decodes))
	EliteImprovements.WithLabelValues(algo).Add(float64(improvements))
}
