package authz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Authorization decision metrics
var (
	authzDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elevaite_authz_decisions_total",
			Help: "Total number of authorization decisions",
		},
		[]string{"outcome", "entity", "action"}, // outcome: allow, deny, error
	)

	authzDecisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "elevaite_authz_decision_duration_seconds",
			Help: "Latency of authorization decisions in seconds",
			Buckets: []float64{
				0.001, // 1 ms
				0.005, // 5 ms
				0.01,  // 10 ms
				0.025, // 25 ms
				0.05,  // 50 ms
				0.1,   // 100 ms
				0.25,  // 250 ms
				0.5,   // 500 ms
				1,     // 1 s
			},
		},
		[]string{"entity"},
	)

	authzDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elevaite_authz_denials_total",
			Help: "Total number of denials by responsible scope",
		},
		[]string{"scope"}, // account-scoped, project-override, api-key-scoped, association
	)

	schemaReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elevaite_authz_schema_reloads_total",
			Help: "Total number of schema reload attempts",
		},
		[]string{"status"}, // success, failed
	)

	evaluateProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elevaite_authz_evaluate_probes_total",
			Help: "Total number of introspection probes evaluated",
		},
		[]string{"outcome"}, // allow, deny, error
	)
)

// Metric helper functions

// RecordDecision records an authorization decision with its latency.
func RecordDecision(outcome, entity, action string, durationSeconds float64) {
	authzDecisionsTotal.WithLabelValues(outcome, entity, action).Inc()
	authzDecisionDuration.WithLabelValues(entity).Observe(durationSeconds)
}

// RecordDenial records a denial attributed to a scope.
func RecordDenial(scope string) {
	if scope == "" {
		scope = "association"
	}
	authzDenialsTotal.WithLabelValues(scope).Inc()
}

// RecordSchemaReload records a schema reload attempt.
func RecordSchemaReload(status string) {
	schemaReloadsTotal.WithLabelValues(status).Inc()
}

// RecordProbe records one introspection probe outcome.
func RecordProbe(outcome string) {
	evaluateProbesTotal.WithLabelValues(outcome).Inc()
}
