package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the identity service's security-relevant counters.
// Every rejection carries its detailed internal reason as a label even
// though the HTTP response stays generic.
type Metrics struct {
	registry *prometheus.Registry

	AuthDecisions  *prometheus.CounterVec
	LoginAttempts  *prometheus.CounterVec
	TokenRotations prometheus.Counter
	ReuseDetected  prometheus.Counter
	ActiveSessions prometheus.Gauge
}

// NewMetrics creates a metrics set on a private registry so tests can
// run with isolated instances.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		AuthDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pragati_identity",
			Name:      "auth_decisions_total",
			Help:      "Authentication/authorization decisions by result and internal reason",
		}, []string{"result", "reason"}),
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pragati_identity",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome",
		}, []string{"result"}),
		TokenRotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pragati_identity",
			Name:      "refresh_rotations_total",
			Help:      "Successful refresh-token rotations",
		}),
		ReuseDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pragati_identity",
			Name:      "refresh_reuse_detected_total",
			Help:      "Rotated refresh tokens presented again; each one revoked a session family",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pragati_identity",
			Name:      "active_sessions",
			Help:      "Sessions created minus sessions revoked or swept",
		}),
	}

	registry.MustRegister(
		m.AuthDecisions,
		m.LoginAttempts,
		m.TokenRotations,
		m.ReuseDetected,
		m.ActiveSessions,
	)
	return m
}

// RecordDecision counts one middleware decision.
func (m *Metrics) RecordDecision(result, reason string) {
	if reason == "" {
		reason = "none"
	}
	m.AuthDecisions.WithLabelValues(result, reason).Inc()
}

// RecordLogin counts one login attempt.
func (m *Metrics) RecordLogin(success bool) {
	if success {
		m.LoginAttempts.WithLabelValues("success").Inc()
		return
	}
	m.LoginAttempts.WithLabelValues("failure").Inc()
}

// Handler serves the prometheus exposition endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gather exposes the registry for tests.
func (m *Metrics) Gather() prometheus.Gatherer {
	return m.registry
}
