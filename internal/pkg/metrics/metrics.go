// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 全部注册到默认 Registry，各服务通过 /metrics (promhttp.Handler) 暴露。
var (
	OrdersCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_saga_completed_total",
		Help: "Number of order sagas that reached the Completed state.",
	})
	OrdersCanceled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_saga_canceled_total",
		Help: "Number of order sagas that ended in the Canceled state.",
	})
	ReservationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_reservations_expired_total",
		Help: "Number of stale reservations released by the expiry sweeper.",
	})
	OutboxPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_messages_published_total",
		Help: "Number of outbox messages successfully published to the broker.",
	})
	OutboxPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Number of outbox publish attempts that failed and will be retried.",
	})
	PaymentsAuthorized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_authorized_total",
		Help: "Number of successful payment authorizations.",
	})
	PaymentsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_failed_total",
		Help: "Number of declined or failed payment authorizations.",
	})
	MessagesDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_deduplicated_total",
		Help: "Number of redelivered messages skipped by the dedup window.",
	})
)
