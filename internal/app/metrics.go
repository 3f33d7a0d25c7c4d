package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lease_service",
		Subsystem: "reconcile",
		Name:      "notifications_total",
		Help:      "Webhook notifications processed, partitioned by type and outcome.",
	}, []string{"type", "outcome"})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lease_service",
		Subsystem: "reconcile",
		Name:      "transitions_total",
		Help:      "Entity transitions applied, partitioned by flow.",
	}, []string{"flow"})

	sideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lease_service",
		Subsystem: "reconcile",
		Name:      "side_effect_failures_total",
		Help:      "Post-commit side effects that failed and were logged for out-of-band reprocessing.",
	}, []string{"effect"})
)
