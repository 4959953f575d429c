// Package metrics holds the Prometheus collectors for the refresh pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RefreshRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiradar_refresh_runs_total",
			Help: "Refresh runs by terminal status",
		},
		[]string{"status"},
	)

	RefreshRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentiradar_refresh_run_duration_seconds",
			Help:    "Wall time of refresh runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiradar_upstream_requests_total",
			Help: "Upstream API requests by outcome",
		},
		[]string{"outcome"}, // ok, unauthorized, rate_limited, error
	)

	UpstreamRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiradar_upstream_retries_total",
			Help: "Upstream retries by reason",
		},
		[]string{"reason"}, // token_refresh, rate_limited
	)

	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiradar_token_refreshes_total",
			Help: "Token acquisitions by grant and result",
		},
		[]string{"grant", "result"},
	)

	ItemsScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiradar_items_scored_total",
			Help: "Scored posts and comments by label",
		},
		[]string{"subject", "label"},
	)

	FetchWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiradar_fetch_warnings_total",
			Help: "Non-fatal fetch failures recorded on runs",
		},
		[]string{"kind"}, // listing, comments
	)
)
