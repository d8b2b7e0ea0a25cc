package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for authAttempts.
const (
	outcomeSuccess   = "success"
	outcomeFailed    = "failed"
	outcomeForbidden = "forbidden"
	outcomeError     = "error"
)

var authAttempts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "safelanka_auth_attempts_total",
		Help: "Authentication operations by outcome",
	},
	[]string{"operation", "outcome"},
)

func recordAttempt(operation, outcome string) {
	authAttempts.WithLabelValues(operation, outcome).Inc()
}
