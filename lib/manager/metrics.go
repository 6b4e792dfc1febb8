package manager

import "github.com/go-i2p/regionpool/lib/metrics"

var (
	// LeaseDuration tracks how long callers hold a connection.
	LeaseDuration = metrics.NewHistogram(
		"regionpool_lease_duration_seconds",
		"Time between acquire and release of a lease",
		[]float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	)
	// LeasesOutstanding is the number of unreleased leases.
	LeasesOutstanding = metrics.NewGauge(
		"regionpool_leases_outstanding",
		"Leases handed out and not yet released",
	)
	// SinkPublishFailures counts failed report sink publishes.
	SinkPublishFailures = metrics.NewCounter(
		"regionpool_sink_publish_failures_total",
		"Stats or health publishes a sink rejected",
	)
)
