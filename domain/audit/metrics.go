package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_events_published_total",
		Help: "Total number of audit events persisted",
	}, []string{"status"})

	publishFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_publish_failures_total",
		Help: "Total number of failed audit log persist operations",
	}, []string{"error_type"})

	publishTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_publish_timeouts_total",
		Help: "Total number of audit log persist timeouts",
	})
)
