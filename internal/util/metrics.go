package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CryptoOrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crypto_orders_created_total",
		Help: "Total number of crypto orders created",
	})

	CryptoOrdersCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crypto_orders_completed_total",
		Help: "Total number of crypto orders completed",
	}, []string{"chain"})

	CryptoOrdersExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crypto_orders_expired_total",
		Help: "Total number of crypto orders expired",
	})

	ChainQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chain_queries_total",
		Help: "Total number of chain matcher queries",
	}, []string{"chain", "outcome"})

	TxHashConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tx_hash_conflicts_total",
		Help: "Total number of completion attempts rejected because the transaction hash was already claimed by another order",
	})

	WebhooksReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_received_total",
		Help: "Total number of webhook deliveries received",
	}, []string{"provider"})

	WebhooksRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_rejected_total",
		Help: "Total number of webhook deliveries rejected for bad signatures",
	}, []string{"provider"})

	WebhooksDuplicateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_duplicate_total",
		Help: "Total number of webhook deliveries short-circuited by the dedup log",
	}, []string{"provider"})

	FulfillmentGrantsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_grants_total",
		Help: "Total number of entitlement grants dispatched",
	}, []string{"kind"})

	RateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limited_total",
		Help: "Total number of requests rejected by the rate limiter",
	}, []string{"route"})

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
