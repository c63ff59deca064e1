package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ListingsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listings_created_total",
		Help: "Total number of items listed for rent",
	})

	BookingsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Total number of bookings created",
	})

	BookingsStatusTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookings_status_transitions_total",
		Help: "Booking status transitions by target status",
	}, []string{"status"})

	BookingsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookings_rejected_total",
		Help: "Booking requests rejected before creation",
	}, []string{"reason"})

	PaymentsInitiatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_initiated_total",
		Help: "Payment requests accepted by a provider",
	}, []string{"provider"})

	PaymentsInitiationFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_initiation_failed_total",
		Help: "Payment requests that failed before a transaction row was written",
	}, []string{"provider", "reason"})

	PaymentsSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_settled_total",
		Help: "Payments moved out of pending, by provider and final status",
	}, []string{"provider", "status"})

	PaymentInitiationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_initiation_latency_seconds",
		Help:    "Latency of provider token + checkout round trips",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	PaymentCallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_total",
		Help: "Provider callbacks received, by outcome",
	}, []string{"provider", "outcome"})

	WithdrawalsRequestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "withdrawals_requested_total",
		Help: "Total number of withdrawal requests",
	})

	WithdrawalsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "withdrawals_processed_total",
		Help: "Withdrawal requests approved or rejected",
	}, []string{"status"})

	WalletCreditsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_credits_total",
		Help: "Booking earnings credited to owner wallets",
	})

	MessagesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messages_sent_total",
		Help: "Total number of messages sent",
	})

	RealtimeSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_subscribers",
		Help: "Open realtime stream subscriptions on this instance",
	})

	RealtimeDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_events_dropped_total",
		Help: "Events dropped because a subscriber buffer was full",
	})

	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Redis cache lookups by result",
	}, []string{"cache", "result"})

	MaintenanceExpiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_expired_total",
		Help: "Rows expired by the maintenance loop",
	}, []string{"kind"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
