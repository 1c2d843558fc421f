package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	WebhookEvents   *prometheus.CounterVec
	WebhookLatency  *prometheus.HistogramVec
	OrdersCreated   *prometheus.CounterVec
	DuplicateSkips  *prometheus.CounterVec
	UnmatchedItems  *prometheus.CounterVec
	BotIncoming     *prometheus.CounterVec
	BotOutgoing     *prometheus.CounterVec
	BroadcastEvents *prometheus.CounterVec
	KDSSubscribers  *prometheus.GaugeVec
	SubscriberDrops *prometheus.CounterVec
	Errors          *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_events_total",
				Help:      "Total inbound channel webhook events by channel and outcome.",
			}, []string{"channel", "outcome"}),
			WebhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "webhook_duration_seconds",
				Help:      "Latency distribution for webhook handling by channel.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"channel"}),
			OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_created_total",
				Help:      "Total canonical orders created by channel.",
			}, []string{"channel"}),
			DuplicateSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "duplicate_skips_total",
				Help:      "Total order creations skipped by the idempotency guard, by strategy.",
			}, []string{"channel", "strategy"}),
			UnmatchedItems: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unmatched_items_total",
				Help:      "Total external line items that could not be matched to the catalog.",
			}, []string{"channel"}),
			BotIncoming: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bot_incoming_messages_total",
				Help:      "Total inbound chat messages processed by session state.",
			}, []string{"state"}),
			BotOutgoing: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bot_outgoing_messages_total",
				Help:      "Total outbound chat messages sent by type.",
			}, []string{"type"}),
			BroadcastEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broadcast_events_total",
				Help:      "Total kitchen display events published by type.",
			}, []string{"type"}),
			KDSSubscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "kds_subscribers",
				Help:      "Currently connected kitchen display subscribers.",
			}, []string{"tenant"}),
			SubscriberDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "kds_subscriber_drops_total",
				Help:      "Subscribers disconnected because their event buffer overflowed.",
			}, []string{"tenant"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.WebhookEvents,
			metricsInstance.WebhookLatency,
			metricsInstance.OrdersCreated,
			metricsInstance.DuplicateSkips,
			metricsInstance.UnmatchedItems,
			metricsInstance.BotIncoming,
			metricsInstance.BotOutgoing,
			metricsInstance.BroadcastEvents,
			metricsInstance.KDSSubscribers,
			metricsInstance.SubscriberDrops,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
