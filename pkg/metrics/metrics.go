package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|pending|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockvault_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// VerificationAttempts counts verification code checks and their outcome
	// (success|mismatch|expired|no_pending).
	VerificationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockvault_verification_attempts_total",
			Help: "Total number of verification code attempts",
		},
		[]string{"result"},
	)

	// VerificationDispatches counts verification emails by dispatch outcome (sent|failed).
	VerificationDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockvault_verification_dispatches_total",
			Help: "Total number of verification email dispatches",
		},
		[]string{"result"},
	)

	// ActiveSessions tracks active sessions (not expired/revoked).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockvault_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blockvault_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
