package report

import (
	"context"

	"github.com/go-i2p/regionpool/lib/manager"
)

// LogSink writes summaries to the structured log.
type LogSink struct{}

// NewLogSink creates a LogSink.
func NewLogSink() *LogSink { return &LogSink{} }

// Name returns "log".
func (*LogSink) Name() string { return "log" }

// PublishStats logs the global summary at info level.
func (*LogSink) PublishStats(_ context.Context, s manager.SystemStats) error {
	log.WithField("regions", s.Summary.Regions).
		WithField("active", s.Summary.ActiveConnections).
		WithField("total", s.Summary.TotalConnections).
		WithField("pending", s.Summary.PendingRequests).
		WithField("utilization", s.Summary.Utilization).
		WithField("success_rate", s.Summary.SuccessRate).
		WithField("avg_response_ms", s.Summary.AvgResponseTimeMs).
		Info("pool stats")
	return nil
}

// PublishHealth logs each region's health at debug level.
func (*LogSink) PublishHealth(_ context.Context, h manager.SystemHealth) error {
	for region, rh := range h.Regions {
		log.WithField("region", region).
			WithField("healthy", rh.Healthy).
			WithField("success_rate", rh.SuccessRate).
			WithField("mean_latency_ms", rh.MeanLatencyMs).
			Debug("region health")
	}
	return nil
}

// Close is a no-op.
func (*LogSink) Close() error { return nil }
