package manager

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

// PublishTimeout bounds one publish round across all sinks.
const PublishTimeout = 5 * time.Second

// Sink receives periodic summaries for delivery outside the process.
type Sink interface {
	Name() string
	PublishStats(ctx context.Context, stats SystemStats) error
	PublishHealth(ctx context.Context, h SystemHealth) error
	Close() error
}

// publish fans fn out to every sink. Failures are logged and counted,
// never returned.
func (m *Manager) publish(ctx context.Context, fn func(context.Context, Sink) error) {
	if len(m.sinks) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, PublishTimeout)
	defer cancel()

	var g errgroup.Group
	for _, s := range m.sinks {
		g.Go(func() error {
			if err := fn(ctx, s); err != nil {
				SinkPublishFailures.Inc()
				log.WithField("sink", s.Name()).WithError(err).Warn("sink publish failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Manager) closeSinks() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			log.WithField("sink", s.Name()).WithError(err).Warn("sink close failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
