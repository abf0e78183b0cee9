package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "price_publisher"

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"

	SkipUnknownSubscription = "unknown_subscription"
	SkipUnsupportedSymbol   = "unsupported_symbol"
	SkipPriceNotAvailable   = "price_not_available"
	SkipPublishFailed       = "publish_failed"
)

var (
	// SourceRefreshTotal counts refresh cycles of every price source by outcome.
	SourceRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_refresh_total",
			Help:      "Number of refresh cycles run by price sources",
		},
		[]string{"source", "outcome"},
	)

	// SourceRefreshDuration observes the duration of refresh cycles.
	SourceRefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_refresh_duration_seconds",
			Help:      "Duration of price sources refresh cycles",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// SourceTrackedSymbols is the size of the set of symbols tracked by every
	// price source.
	SourceTrackedSymbols = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_tracked_symbols",
			Help:      "Number of symbols tracked by price sources",
		},
		[]string{"source"},
	)

	// NotificationsTotal counts the price schedule notifications received.
	NotificationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Number of price schedule notifications received",
		},
	)

	// NotificationsSkippedTotal counts notifications that did not result in
	// a price update, by reason.
	NotificationsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_skipped_total",
			Help:      "Number of notifications not resulting in a price update",
		},
		[]string{"reason"},
	)

	// PriceUpdatesTotal counts the price updates published by symbol and
	// status.
	PriceUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_updates_total",
			Help:      "Number of price updates published",
		},
		[]string{"symbol", "status"},
	)

	// Subscriptions is the number of active price schedule subscriptions.
	Subscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions",
			Help:      "Number of active price schedule subscriptions",
		},
	)
)
