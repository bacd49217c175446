// Package metrics provides Prometheus metrics for fluxhook.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FeedPolls counts poll ticks by result: success, unchanged, failure or skipped.
	FeedPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fluxhook",
			Name:      "feed_polls_total",
			Help:      "Total number of feed poll ticks",
		},
		[]string{"result"},
	)

	// NewItems counts items reported as new by the poller.
	NewItems = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fluxhook",
			Name:      "feed_new_items_total",
			Help:      "Total number of new feed items detected",
		},
	)

	// RegisteredFeeds tracks the number of feeds currently being polled.
	RegisteredFeeds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fluxhook",
			Name:      "registered_feeds",
			Help:      "Number of feeds currently registered for polling",
		},
	)

	// ArticlesIngested counts articles persisted by the dispatcher.
	ArticlesIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fluxhook",
			Name:      "articles_ingested_total",
			Help:      "Total number of articles persisted",
		},
	)

	// WebhookDeliveries counts delivery attempts by result: success or failure.
	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fluxhook",
			Name:      "webhook_deliveries_total",
			Help:      "Total number of webhook delivery attempts",
		},
		[]string{"result"},
	)

	// WebhookDeliveryDuration measures webhook POST duration.
	WebhookDeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fluxhook",
			Name:      "webhook_delivery_duration_seconds",
			Help:      "Duration of webhook deliveries in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
