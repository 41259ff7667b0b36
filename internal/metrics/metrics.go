// Package metrics exposes Prometheus instrumentation for TextLoop.
//
// Collectors are package-level and registered on the default registry, with
// label cardinality kept bounded: statuses and directions are small closed
// sets, and no per-organization or per-phone labels are used.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequests counts inbound webhook deliveries by outcome.
	WebhookRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textloop_webhook_requests_total",
			Help: "Total number of inbound webhook requests by outcome.",
		},
		[]string{"outcome"}, // ok, unauthorized, unknown_sender, bad_request, rate_limited
	)

	// WebhookDuration records webhook handling latency in seconds.
	WebhookDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "textloop_webhook_duration_seconds",
			Help:    "Duration of webhook handling in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// MessagesSent counts outbound send attempts by result.
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textloop_messages_sent_total",
			Help: "Total number of outbound SMS send attempts by result.",
		},
		[]string{"result"}, // delivered, failed
	)

	// ValidationRejections counts answers rejected by the validator.
	ValidationRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "textloop_validation_rejections_total",
			Help: "Total number of inbound answers rejected by validation.",
		},
	)

	// ConversationsCompleted counts conversations reaching the terminal step.
	ConversationsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "textloop_conversations_completed_total",
			Help: "Total number of conversations that reached the terminal step.",
		},
	)

	// SessionsCreated counts feedback sessions started after consent.
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "textloop_sessions_created_total",
			Help: "Total number of feedback sessions created.",
		},
	)
)
