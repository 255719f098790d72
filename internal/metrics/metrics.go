// Package metrics exposes Prometheus instruments for the client core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bazaar_api_requests_total",
			Help: "Total marketplace API requests",
		},
		[]string{"endpoint", "outcome"}, // outcome: ok, network, auth, validation, not_found
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bazaar_api_request_duration_seconds",
			Help:    "Marketplace API request duration",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)

	// Polling metrics
	PollTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bazaar_poll_ticks_total",
			Help: "Total refresh ticks fired",
		},
		[]string{"loop"},
	)

	PollStaleDiscards = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bazaar_poll_stale_discards_total",
			Help: "Refresh results discarded because their loop was stopped or restarted",
		},
		[]string{"loop"},
	)

	// Local state
	FavoritesCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bazaar_favorites",
			Help: "Products currently in the favorites set",
		},
	)

	FavoritesPersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bazaar_favorites_persist_failures_total",
			Help: "Favorites writes that failed to reach storage",
		},
	)

	UnreadConversations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bazaar_unread_conversations",
			Help: "Conversations with unread messages for the current user",
		},
	)
)

// Handler returns the scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
