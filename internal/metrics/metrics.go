// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Mutation outcomes.
const (
	OutcomeApplied   = "applied"
	OutcomeRetried   = "retried"
	OutcomeSatisfied = "satisfied"
	OutcomeExhausted = "exhausted"
	OutcomeVetoed    = "vetoed"
	OutcomeForced    = "forced"
	OutcomeCreated   = "created"
	OutcomeFailed    = "failed"
)

var (
	registerOnce sync.Once

	mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inventura",
			Name:      "mutation_total",
			Help:      "Mutation protocol outcomes by entity kind.",
		},
		[]string{"kind", "outcome"},
	)
	propagationEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inventura",
			Subsystem: "propagation",
			Name:      "events_total",
			Help:      "Events delivered to session subscribers.",
		},
		[]string{"type"},
	)
	propagationDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inventura",
			Subsystem: "propagation",
			Name:      "dropped_total",
			Help:      "Events dropped because a subscriber buffer was full.",
		},
		[]string{"type"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inventura",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inventura",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(mutations, propagationEvents, propagationDropped, httpRequests, httpDuration)
	})
}

func RecordMutation(kind, outcome string) {
	Register()
	mutations.WithLabelValues(kind, outcome).Inc()
}

func RecordPropagation(eventType string, delivered bool) {
	Register()
	if delivered {
		propagationEvents.WithLabelValues(eventType).Inc()
		return
	}
	propagationDropped.WithLabelValues(eventType).Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	Register()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
