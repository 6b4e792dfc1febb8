package resilience

import (
	"github.com/go-i2p/regionpool/lib/metrics"
)

var (
	// BreakerState is 0 closed, 1 open, 2 half-open.
	BreakerState = metrics.NewGaugeVec(
		"regionpool_breaker_state",
		"Region circuit breaker state (0=closed, 1=open, 2=half-open)",
		"region",
	)

	BreakerTrips = metrics.NewCounterVec(
		"regionpool_breaker_trips_total",
		"Times a region breaker has opened",
		"region",
	)

	BreakerRejections = metrics.NewCounterVec(
		"regionpool_breaker_rejections_total",
		"Acquires rejected by an open region breaker",
		"region",
	)
)
