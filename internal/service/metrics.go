package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session-level counters. Failure reasons mirror the error codes handed to
// clients so dashboards and response bodies line up.
var (
	loginsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_logins_total",
		Help: "Total number of successful logins.",
	})

	loginFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_login_failures_total",
			Help: "Total number of failed logins by reason.",
		},
		[]string{"reason"},
	)

	refreshFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_refresh_failures_total",
			Help: "Total number of failed session refreshes by reason.",
		},
		[]string{"reason"},
	)

	securityVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_verifications_total",
			Help: "Total number of step-up password verifications by outcome.",
		},
		[]string{"outcome"},
	)
)
