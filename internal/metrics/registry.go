package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all domain-specific metrics for the application
type Registry struct {
	registry *prometheus.Registry

	// Failure injection metrics
	FailureInjections *prometheus.CounterVec
	AgentRequests     *prometheus.CounterVec

	// Behavioral metrics
	BehavioralAnomalies *prometheus.CounterVec
	FlowDisruptions     *prometheus.CounterVec
	ResponseLatency     *prometheus.HistogramVec
	MessageLength       *prometheus.HistogramVec
	ConsistencyScore    prometheus.Histogram
	DriftScore          prometheus.Histogram

	// Resource metrics
	TokenConsumption *prometheus.CounterVec

	// Validation metrics
	ValidationConfidence *prometheus.HistogramVec
	ValidationDuration   *prometheus.HistogramVec

	// API metrics
	RequestDuration *prometheus.HistogramVec
	RequestCounter  *prometheus.CounterVec
}

// NewRegistry builds and registers every collector on a fresh
// prometheus registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	r := &Registry{
		registry: reg,
		FailureInjections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "failure_injections_total",
			Help: "Failure injections applied, by mode and scenario.",
		}, []string{"failure_mode", "scenario"}),
		AgentRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_requests_total",
			Help: "Agent requests processed, by failure type and status.",
		}, []string{"failure_type", "status"}),
		BehavioralAnomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "behavioral_anomalies_total",
			Help: "Behavioral anomalies detected, by type and session type.",
		}, []string{"anomaly_type", "session_type"}),
		FlowDisruptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conversation_flow_disruptions_total",
			Help: "Conversation flow disruptions, by disruption type.",
		}, []string{"disruption_type"}),
		ResponseLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agent_response_duration_seconds",
			Help:    "Agent response latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"model"}),
		MessageLength: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agent_message_length_chars",
			Help:    "Observed response length in characters.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}, []string{"status"}),
		ConsistencyScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "behavioral_consistency_score",
			Help:    "Per-session behavioral consistency scores.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		DriftScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "behavioral_drift_score",
			Help:    "Per-session behavioral drift scores.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		TokenConsumption: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "token_consumption_total",
			Help: "Tokens consumed, by model and type (prompt/completion).",
		}, []string{"model", "type"}),
		ValidationConfidence: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "validation_confidence",
			Help:    "Validation pipeline confidence, by max level run.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"level"}),
		ValidationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "validation_duration_seconds",
			Help:    "Validation pipeline duration, by max level run.",
			Buckets: prometheus.DefBuckets,
		}, []string{"level"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration, by route and status code.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "code"}),
		RequestCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served, by route and status code.",
		}, []string{"route", "code"}),
	}

	reg.MustRegister(
		r.FailureInjections,
		r.AgentRequests,
		r.BehavioralAnomalies,
		r.FlowDisruptions,
		r.ResponseLatency,
		r.MessageLength,
		r.ConsistencyScore,
		r.DriftScore,
		r.TokenConsumption,
		r.ValidationConfidence,
		r.ValidationDuration,
		r.RequestDuration,
		r.RequestCounter,
	)

	return r
}

// Gatherer exposes the underlying registry for the /metrics handler.
func (r *Registry) Gatherer() *prometheus.Registry {
	return r.registry
}
