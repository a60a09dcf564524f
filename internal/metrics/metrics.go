// Package metrics holds Prometheus instruments that are used across the
// service.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CRUDRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crud_requests_total",
			Help: "CRUD requests served, by table and action.",
		}, []string{"table", "action"})

	RBACDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rbac_denials_total",
			Help: "Authorization denials, by reason (missing_auth or missing_permission).",
		}, []string{"reason"})

	SchemaRefreshTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schema_refresh_total",
			Help: "Cumulative number of catalog introspections performed.",
		})

	AuditDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_dropped_total",
			Help: "Audit records dropped because the queue was full.",
		})

	AuditWriteErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_errors_total",
			Help: "Audit insert failures (swallowed, never surfaced to clients).",
		})

	WebhookAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_attempts_total",
			Help: "Webhook delivery attempts, by outcome (success, retry, failed).",
		}, []string{"outcome"})

	WebhookQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhook_queue_depth",
			Help: "Queue items due or pending at the last dispatcher tick.",
		})

	RateLimitRejectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_rejects_total",
			Help: "Requests rejected by the fixed-window rate limiter.",
		})

	IdempotentReplaysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "idempotent_replays_total",
			Help: "Mutating requests answered from the idempotency store.",
		})
)

func init() {
	prometheus.MustRegister(
		CRUDRequestsTotal,
		RBACDenialsTotal,
		SchemaRefreshTotal,
		AuditDroppedTotal,
		AuditWriteErrorsTotal,
		WebhookAttemptsTotal,
		WebhookQueueDepth,
		RateLimitRejectsTotal,
		IdempotentReplaysTotal,
	)
}
