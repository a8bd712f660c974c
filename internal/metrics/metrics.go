package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ewallet_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ewallet_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	TransactionsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ewallet_transactions_processed_total",
			Help: "Transactions settled, by type and final status",
		},
		[]string{"type", "status"},
	)

	BalanceUpdatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ewallet_balance_updates_dropped_total",
			Help: "Balance updates skipped because a websocket client was too slow",
		},
	)

	RelayFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ewallet_balance_relay_fallbacks_total",
			Help: "Balance updates delivered locally because publishing to Redis failed",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}
