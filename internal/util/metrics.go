package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersConfirmedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_confirmed_total",
		Help: "Total number of orders confirmed, by confirmation source",
	}, []string{"source"})

	DuplicateConfirmationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duplicate_confirmations_total",
		Help: "Total number of confirmation attempts resolved to an existing order",
	}, []string{"source"})

	ConfirmationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confirmations_failed_total",
		Help: "Total number of failed order confirmations",
	}, []string{"reason"})

	WebhooksRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_rejected_total",
		Help: "Total number of webhooks rejected before processing",
	}, []string{"provider", "reason"})

	CommissionAmountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commission_amount_total",
		Help: "Cumulative commission amount (minor units) across confirmed online orders",
	})

	ShipmentsBookedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shipments_booked_total",
		Help: "Total number of shipments successfully booked with the carrier",
	})

	ShipmentFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipment_failures_total",
		Help: "Total number of failed carrier operations",
	}, []string{"op"})

	CarrierAuthRefreshTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carrier_auth_refresh_total",
		Help: "Total number of carrier token re-authentications",
	})

	CarrierRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carrier_request_latency_seconds",
		Help:    "Latency of carrier API calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Total number of notifications delivered",
	}, []string{"channel"})

	NotificationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_failed_total",
		Help: "Total number of notification delivery failures",
	}, []string{"channel"})

	WalletCreditsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_credits_total",
		Help: "Total number of wallet credits applied",
	})

	WalletDuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_duplicates_total",
		Help: "Total number of wallet credit webhooks resolved to an existing entry",
	})

	ConfirmationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_confirmation_latency_seconds",
		Help:    "Latency of the core order confirmation path",
		Buckets: prometheus.DefBuckets,
	})

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
