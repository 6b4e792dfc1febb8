package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/go-i2p/regionpool/lib/errors"
	"github.com/go-i2p/regionpool/lib/events"
	"github.com/go-i2p/regionpool/lib/manager"
	"github.com/go-i2p/regionpool/lib/metrics"
	"github.com/go-i2p/regionpool/lib/pool"
	"github.com/go-i2p/regionpool/lib/report"
	"github.com/go-i2p/regionpool/lib/validation"
	"github.com/go-i2p/regionpool/version"
)

// Errors returned by lifecycle methods.
var (
	ErrNotRunning     = apperrors.ErrGatewayNotRunning
	ErrAlreadyRunning = apperrors.ErrGatewayAlreadyRunning
	// ErrStopped is returned by operations on a stopped gateway. It wraps
	// the terminal destroyed error.
	ErrStopped = manager.ErrShutdown
)

// State represents the gateway lifecycle state.
type State string

const (
	// StateInitial is the state before Start is called.
	StateInitial State = "initial"
	// StateStarting means the manager and sinks are being built.
	StateStarting State = "starting"
	// StateRunning means acquires are being served.
	StateRunning State = "running"
	// StateStopping means the manager is shutting down.
	StateStopping State = "stopping"
	// StateStopped means the gateway has been stopped.
	StateStopped State = "stopped"
)

// Status contains current gateway status information.
type Status struct {
	State     State         `json:"state"`
	Name      string        `json:"name"`
	Regions   []string      `json:"regions"`
	Strategy  string        `json:"strategy"`
	Failover  bool          `json:"failover"`
	Leases    int           `json:"leases"`
	Uptime    time.Duration `json:"uptime"`
	StartedAt time.Time     `json:"started_at,omitempty"`
	Build     version.Info  `json:"build"`
}

// Gateway runs a pool manager and its report sinks.
type Gateway struct {
	mu sync.RWMutex

	config    Config
	mgr       *manager.Manager
	state     State
	emitter   *events.Emitter[Event]
	events    <-chan Event
	done      chan struct{}
	startedAt time.Time
	forwardWG sync.WaitGroup
	closeOnce sync.Once
}

// New creates a gateway with the given configuration. Nothing runs
// until Start is called.
func New(cfg Config) (*Gateway, error) {
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Debug("gateway configuration validation failed")
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	emitter := events.NewEmitter[Event]()
	ch, _ := emitter.Subscribe(cfg.EventBufferSize)

	log.WithField("name", cfg.Settings.Gateway.Name).Debug("gateway created")
	return &Gateway{
		config:  cfg,
		state:   StateInitial,
		emitter: emitter,
		events:  ch,
		done:    make(chan struct{}),
	}, nil
}

// NewWithOptions creates a gateway with functional options applied to
// DefaultConfig.
func NewWithOptions(opts ...Option) (*Gateway, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg)
}

// Start builds the report sinks and the pool manager and starts the
// manager's background jobs. The context only bounds startup.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.state != StateInitial && g.state != StateStopped {
		state := g.state
		g.mu.Unlock()
		log.WithField("state", state).Warn("cannot start gateway in current state")
		return fmt.Errorf("start in state %s: %w", state, ErrAlreadyRunning)
	}
	oldState := g.state
	g.state = StateStarting
	g.done = make(chan struct{})
	g.mu.Unlock()

	g.emitStateChange(oldState, StateStarting, "gateway starting")

	settings := g.config.Settings
	mgr, err := g.build()
	if err == nil {
		err = ctx.Err()
		if err != nil {
			_ = mgr.Shutdown(context.Background())
		}
	}
	if err != nil {
		log.WithError(err).Error("failed to start gateway")
		g.transitionTo(StateStopped)
		g.emitError(err, "failed to start gateway")
		g.mu.Lock()
		close(g.done)
		g.mu.Unlock()
		return err
	}

	// The manager outlives the startup context.
	if err := mgr.Start(context.Background()); err != nil {
		_ = mgr.Shutdown(context.Background())
		g.transitionTo(StateStopped)
		g.emitError(err, "failed to start pool manager")
		g.mu.Lock()
		close(g.done)
		g.mu.Unlock()
		return fmt.Errorf("starting manager: %w", err)
	}

	stream, _ := mgr.Subscribe(g.config.EventBufferSize)
	g.forwardWG.Add(1)
	go func() {
		defer g.forwardWG.Done()
		g.forward(stream)
	}()

	g.mu.Lock()
	g.mgr = mgr
	g.state = StateRunning
	g.startedAt = time.Now()
	g.mu.Unlock()
	metrics.RecordStartTime()

	g.emitStateChange(StateStarting, StateRunning, "gateway started")
	g.emitSimple(EventStarted, "gateway is now running")

	log.WithField("name", settings.Gateway.Name).
		WithField("regions", settings.RegionNames()).
		WithField("strategy", settings.Balancer.Strategy).
		Info("gateway started")
	return nil
}

func (g *Gateway) build() (*manager.Manager, error) {
	sinks, err := report.Build(g.config.Settings.Sinks)
	if err != nil {
		return nil, fmt.Errorf("building sinks: %w", err)
	}
	sinks = append(sinks, g.config.ExtraSinks...)

	mgr, err := manager.New(g.config.Settings.ManagerConfig(g.config.Factory, sinks))
	if err != nil {
		closeErrs := make([]error, 0, len(sinks))
		for _, s := range sinks {
			closeErrs = append(closeErrs, s.Close())
		}
		return nil, errors.Join(fmt.Errorf("creating manager: %w", err), errors.Join(closeErrs...))
	}
	return mgr, nil
}

// Stop shuts the manager down: pending acquires fail, pools are
// destroyed and sinks are closed. The context bounds the shutdown.
// Stopping a stopped gateway returns nil; a concurrent Stop waits for the
// one in progress.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	switch g.state {
	case StateStopped:
		g.mu.Unlock()
		return nil
	case StateStopping:
		done := g.done
		g.mu.Unlock()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case StateRunning:
	default:
		state := g.state
		g.mu.Unlock()
		return fmt.Errorf("stop in state %s: %w", state, ErrNotRunning)
	}
	g.state = StateStopping
	mgr := g.mgr
	g.mu.Unlock()

	log.Info("stopping gateway")
	g.emitStateChange(StateRunning, StateStopping, "gateway stopping")

	err := mgr.Shutdown(ctx)
	if err != nil {
		log.WithError(err).Warn("error shutting down pool manager")
		g.emitError(err, "pool manager shutdown")
	}
	// The manager closes its event stream on shutdown.
	g.forwardWG.Wait()

	g.transitionTo(StateStopped)
	g.emitStateChange(StateStopping, StateStopped, "gateway stopped")
	g.emitSimple(EventStopped, "gateway has stopped")

	g.mu.Lock()
	close(g.done)
	g.mu.Unlock()

	log.Info("gateway stopped")
	return err
}

// Close stops a running gateway using the configured shutdown timeout
// and closes every event stream. Suitable for use with defer.
func (g *Gateway) Close() error {
	var err error
	if g.State() == StateRunning {
		timeout := g.config.Settings.Gateway.ShutdownTimeout.Std()
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err = g.Stop(ctx)
	}
	g.closeOnce.Do(g.emitter.Close)
	return err
}

func (g *Gateway) running() (*manager.Manager, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	switch {
	case g.state == StateStopping || g.state == StateStopped:
		return nil, fmt.Errorf("gateway %s: %w", g.state, ErrStopped)
	case g.state != StateRunning || g.mgr == nil:
		return nil, ErrNotRunning
	}
	return g.mgr, nil
}

// Acquire validates the request and leases a connection from the
// manager.
func (g *Gateway) Acquire(ctx context.Context, requesterID string, opts manager.Options) (*manager.Lease, error) {
	if err := validation.AcquireParams(requesterID, opts.PreferredRegion); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}
	mgr, err := g.running()
	if err != nil {
		return nil, err
	}
	return mgr.Acquire(ctx, requesterID, opts)
}

// ReleaseByID returns the connection held by the lease with the given id.
func (g *Gateway) ReleaseByID(id string) error {
	mgr, err := g.running()
	if err != nil {
		return err
	}
	return mgr.ReleaseByID(id)
}

// Lease looks up an outstanding lease.
func (g *Gateway) Lease(id string) (*manager.Lease, bool) {
	mgr, err := g.running()
	if err != nil {
		return nil, false
	}
	return mgr.Lease(id)
}

// SystemStats returns per-region pool stats and the global summary.
func (g *Gateway) SystemStats() (manager.SystemStats, error) {
	mgr, err := g.running()
	if err != nil {
		return manager.SystemStats{}, err
	}
	return mgr.SystemStats(), nil
}

// RegionStats returns the pool stats and health of one region.
func (g *Gateway) RegionStats(region string) (pool.Stats, manager.RegionHealth, error) {
	mgr, err := g.running()
	if err != nil {
		return pool.Stats{}, manager.RegionHealth{}, err
	}
	p, ok := mgr.Pool(region)
	if !ok {
		return pool.Stats{}, manager.RegionHealth{}, fmt.Errorf("region %q: %w", region, manager.ErrUnknownRegion)
	}
	return p.Stats(), mgr.SystemHealth().Regions[region], nil
}

// SystemHealth returns the health summary. A gateway that is not running
// reports unhealthy.
func (g *Gateway) SystemHealth() manager.SystemHealth {
	mgr, err := g.running()
	if err != nil {
		return manager.SystemHealth{Timestamp: time.Now()}
	}
	return mgr.SystemHealth()
}

// Status returns current gateway status.
func (g *Gateway) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := g.config.Settings
	status := Status{
		State:    g.state,
		Name:     s.Gateway.Name,
		Regions:  s.RegionNames(),
		Strategy: s.Balancer.Strategy.String(),
		Failover: s.Balancer.Failover,
		Build:    version.Get(),
	}
	if g.state == StateRunning && g.mgr != nil {
		status.Leases = g.mgr.Leases()
		status.StartedAt = g.startedAt
		status.Uptime = time.Since(g.startedAt)
	}
	return status
}

// State returns the current lifecycle state.
func (g *Gateway) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Config returns the gateway configuration.
func (g *Gateway) Config() Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.config
}

// Manager returns the running pool manager, or nil.
func (g *Gateway) Manager() *manager.Manager {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.state != StateRunning {
		return nil
	}
	return g.mgr
}

// Events returns the gateway's primary event channel. It is closed by
// Close.
func (g *Gateway) Events() <-chan Event {
	return g.events
}

// Subscribe opens an additional event stream.
func (g *Gateway) Subscribe(buffer int) (<-chan Event, func()) {
	return g.emitter.Subscribe(buffer)
}

// DroppedEventCount returns how many event deliveries were skipped
// because a consumer was not keeping up.
func (g *Gateway) DroppedEventCount() uint64 {
	return g.emitter.Dropped()
}

// Done returns a channel that is closed when the gateway stops.
func (g *Gateway) Done() <-chan struct{} {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.done
}

func (g *Gateway) transitionTo(newState State) {
	g.mu.Lock()
	oldState := g.state
	g.state = newState
	g.mu.Unlock()
	log.WithField("oldState", oldState).WithField("newState", newState).Debug("gateway state transition")
}
