// Package manager owns one connection pool per region and routes each
// acquire to a region chosen by preference, health and a load balancing
// strategy. A failed acquire is retried once in another selection when
// failover is enabled.
package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"golang.org/x/sync/errgroup"

	"github.com/go-i2p/regionpool/lib/balancer"
	apperrors "github.com/go-i2p/regionpool/lib/errors"
	"github.com/go-i2p/regionpool/lib/events"
	"github.com/go-i2p/regionpool/lib/health"
	"github.com/go-i2p/regionpool/lib/metrics"
	"github.com/go-i2p/regionpool/lib/pool"
	"github.com/go-i2p/regionpool/lib/ratelimit"
	"github.com/go-i2p/regionpool/lib/resilience"
)

// Errors returned by the manager.
var (
	ErrShutdown        = apperrors.ErrManagerShutdown
	ErrNoHealthyRegion = apperrors.ErrNoHealthyRegion
	ErrUnknownRegion   = apperrors.ErrUnknownRegion
	ErrRateLimited     = apperrors.ErrRequesterRateLimited
	ErrLeaseNotFound   = apperrors.ErrLeaseNotFound
	ErrInvalidConfig   = apperrors.ErrConfiguration
)

// Options tune a single acquire.
type Options struct {
	Tier            pool.Tier
	PreferredRegion string
}

// Manager routes acquires across regional pools.
type Manager struct {
	cfg       Config
	regions   []string
	maxAgents int

	mu    sync.RWMutex
	pools map[string]*pool.Pool

	balancer  *balancer.Balancer
	monitor   *health.Monitor
	collector *metrics.Collector
	breakers  *resilience.Group
	limiter   *ratelimit.KeyedLimiter
	sinks     []Sink
	emitter   *events.Emitter[Event]

	leases sync.Map

	closed   atomic.Bool
	shutOnce sync.Once

	loopMu  sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a pool for every configured region. If any pool cannot be
// created the ones already opened are destroyed.
func New(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	m := &Manager{
		cfg:       cfg,
		regions:   make([]string, 0, len(cfg.Regions)),
		maxAgents: cfg.maxAgents(),
		pools:     make(map[string]*pool.Pool, len(cfg.Regions)),
		balancer:  balancer.New(cfg.Strategy),
		monitor:   health.NewMonitor(cfg.Health),
		collector: metrics.NewCollector(),
		sinks:     cfg.Sinks,
		emitter:   events.NewEmitter[Event](),
	}
	if cfg.CircuitBreakerEnabled {
		m.breakers = resilience.NewGroup(cfg.CircuitBreaker)
		m.breakers.OnStateChange(m.breakerChanged)
	}
	if cfg.RequesterRate > 0 {
		m.limiter = ratelimit.NewKeyed(cfg.RequesterRate, cfg.RequesterBurst, 0)
	}

	for _, rc := range cfg.Regions {
		p, err := pool.New(rc.Name, rc.Pool)
		if err != nil {
			for _, created := range m.pools {
				created.Destroy()
			}
			if m.limiter != nil {
				m.limiter.Close()
			}
			return nil, err
		}
		m.pools[rc.Name] = p
		m.regions = append(m.regions, rc.Name)
	}

	log.WithField("regions", m.regions).
		WithField("strategy", cfg.Strategy.String()).
		WithField("failover", cfg.Failover).
		WithField("max_agents", m.maxAgents).
		Info("pool manager created")
	return m, nil
}

// Regions returns the configured regions in selection order.
func (m *Manager) Regions() []string {
	return append([]string(nil), m.regions...)
}

// Monitor returns the health monitor fed by the manager.
func (m *Manager) Monitor() *health.Monitor {
	return m.monitor
}

// Collector returns the metrics collector fed by the manager.
func (m *Manager) Collector() *metrics.Collector {
	return m.collector
}

// Pool returns the pool for region.
func (m *Manager) Pool(region string) (*pool.Pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[region]
	return p, ok
}

func (m *Manager) hasRegion(region string) bool {
	for _, r := range m.regions {
		if r == region {
			return true
		}
	}
	return false
}

// Acquire leases a connection for requesterID. The region comes from
// SelectOptimalRegion; on failure, and when failover is enabled, one more
// attempt is made with the preferred region cleared.
func (m *Manager) Acquire(ctx context.Context, requesterID string, opts Options) (*Lease, error) {
	if m.closed.Load() {
		return nil, ErrShutdown
	}
	if m.limiter != nil && !m.limiter.Allow(requesterID) {
		metrics.RateLimitRejections.Inc()
		return nil, oops.In("manager").
			With("requester", requesterID).
			With("tier", opts.Tier.String()).
			Wrap(ErrRateLimited)
	}
	return m.acquire(ctx, requesterID, opts, false)
}

func (m *Manager) acquire(ctx context.Context, requesterID string, opts Options, failover bool) (*Lease, error) {
	region, err := m.SelectOptimalRegion(requesterID, opts.PreferredRegion, opts.Tier)
	if err != nil {
		metrics.NoHealthyRegion.Inc()
		return nil, m.acquireError(err, requesterID, "", opts, failover)
	}

	p, ok := m.Pool(region)
	if !ok {
		return nil, m.acquireError(ErrShutdown, requesterID, region, opts, failover)
	}

	start := time.Now()
	conn, err := m.acquireFrom(ctx, p, requesterID, opts.Tier)
	elapsed := time.Since(start)

	if err != nil {
		m.collector.RecordRequest(region, false, elapsed)
		m.feedHealth(region)

		if m.cfg.Failover && !failover && m.canFailover(ctx, err) {
			metrics.FailoversTotal.Inc()
			log.WithField("requester", requesterID).
				WithField("region", region).
				WithField("tier", opts.Tier.String()).
				WithError(err).
				Info("acquire failed, failing over")
			m.emit(Event{Kind: EventFailover, Failover: &FailoverEvent{
				Requester: requesterID,
				From:      region,
				Reason:    err.Error(),
			}})
			return m.acquire(ctx, requesterID, Options{Tier: opts.Tier}, true)
		}
		return nil, m.acquireError(err, requesterID, region, opts, failover)
	}

	m.collector.RecordRequest(region, true, elapsed)
	m.collector.RecordConnection(region, metrics.ConnectionOpen)
	m.recordHealth(region, health.Latency, float64(elapsed)/float64(time.Millisecond))
	m.feedHealth(region)

	lease := newLease(m, p, conn, requesterID, opts.Tier, failover)
	m.leases.Store(lease.id, lease)
	LeasesOutstanding.Inc()

	log.WithField("requester", requesterID).
		WithField("region", region).
		WithField("connection", conn.ID()).
		WithField("wait", elapsed).
		Debug("connection leased")
	return lease, nil
}

func (m *Manager) acquireFrom(ctx context.Context, p *pool.Pool, requesterID string, tier pool.Tier) (*pool.Connection, error) {
	if m.breakers == nil {
		return p.Acquire(ctx, requesterID, tier)
	}
	var conn *pool.Connection
	err := m.breakers.For(p.Region()).Execute(ctx, func(ctx context.Context) error {
		c, err := p.Acquire(ctx, requesterID, tier)
		conn = c
		return err
	})
	return conn, err
}

// canFailover rejects a retry once the pool or manager is gone or the
// caller has given up.
func (m *Manager) canFailover(ctx context.Context, err error) bool {
	if ctx.Err() != nil || m.closed.Load() {
		return false
	}
	if errors.Is(err, apperrors.ErrDestroyed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func (m *Manager) acquireError(err error, requesterID, region string, opts Options, failover bool) error {
	b := oops.In("manager").
		Tags("acquire").
		With("requester", requesterID).
		With("tier", opts.Tier.String()).
		With("failover", failover)
	if region != "" {
		b = b.With("region", region)
	}
	if opts.PreferredRegion != "" {
		b = b.With("preferred_region", opts.PreferredRegion)
	}
	return b.Wrap(err)
}

// feedHealth pushes the collector's success and error rates for region
// into the health monitor.
func (m *Manager) feedHealth(region string) {
	rate := m.collector.SuccessRate(region)
	m.recordHealth(region, health.SuccessRate, rate)
	m.recordHealth(region, health.ErrorRate, 100-rate)
}

// recordHealth feeds one metric to the monitor and reports whether it
// was accepted.
func (m *Manager) recordHealth(region string, kind health.MetricKind, value float64) bool {
	if err := m.monitor.RecordMetric(region, kind, value); err != nil {
		log.WithField("region", region).
			WithField("kind", kind.String()).
			WithError(err).
			Debug("health metric rejected")
		return false
	}
	return true
}

// Release returns a lease to its pool. A nil lease is ignored with a
// warning, as is a lease released twice.
func (m *Manager) Release(lease *Lease) {
	if lease == nil {
		log.Warn("release of nil lease ignored")
		return
	}
	if _, ok := m.leases.Load(lease.id); !ok {
		log.WithField("lease", lease.id).Warn("release of unknown lease ignored")
		return
	}
	lease.Release()
}

// ReleaseByID releases the outstanding lease with the given id.
func (m *Manager) ReleaseByID(id string) error {
	v, ok := m.leases.Load(id)
	if !ok {
		return ErrLeaseNotFound
	}
	v.(*Lease).Release()
	return nil
}

// Lease returns the outstanding lease with the given id.
func (m *Manager) Lease(id string) (*Lease, bool) {
	v, ok := m.leases.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Lease), true
}

// Leases returns the number of outstanding leases.
func (m *Manager) Leases() int {
	n := 0
	m.leases.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// SelectOptimalRegion picks the region for a request. A configured
// preferred region is used when it has no recorded success rate yet or
// one above PreferredRegionMinSuccess. Otherwise the strategy chooses
// among healthy regions.
func (m *Manager) SelectOptimalRegion(requesterID, preferredRegion string, tier pool.Tier) (string, error) {
	if m.closed.Load() {
		return "", ErrShutdown
	}

	if preferredRegion != "" {
		switch {
		case !m.hasRegion(preferredRegion):
			log.WithField("region", preferredRegion).Warn("preferred region not configured, ignoring")
		case m.breakerOpen(preferredRegion):
			// fall through to the strategy
		default:
			rate, ok := m.monitor.SuccessRate(preferredRegion)
			if !ok || rate > PreferredRegionMinSuccess {
				return preferredRegion, nil
			}
		}
	}

	candidates := make([]balancer.Candidate, len(m.regions))
	for i, r := range m.regions {
		candidates[i] = balancer.Candidate{Region: r, Healthy: m.RegionHealthy(r)}
		if m.balancer.Strategy() == balancer.LeastConnections {
			if p, ok := m.Pool(r); ok {
				candidates[i].ActiveConnections = p.Stats().ActiveConnections
			}
		}
	}

	region, err := m.balancer.Pick(requesterID, candidates)
	if err != nil {
		log.WithField("requester", requesterID).WithField("tier", tier.String()).Warn("no healthy region")
		return "", err
	}
	return region, nil
}

// RegionHealthy reports whether region takes part in selection: its
// breaker is not open and it has no recorded success rate or one above
// HealthyRegionMinSuccess.
func (m *Manager) RegionHealthy(region string) bool {
	if m.breakerOpen(region) {
		return false
	}
	rate, ok := m.monitor.SuccessRate(region)
	return !ok || rate > HealthyRegionMinSuccess
}

func (m *Manager) breakerOpen(region string) bool {
	return m.breakers != nil && !m.breakers.Available(region)
}

func (m *Manager) breakerChanged(region string, from, to resilience.State) {
	m.emit(Event{Kind: EventCircuit, Circuit: &CircuitEvent{Region: region, From: from, To: to}})
}

// Subscribe returns a stream of manager events in generation order.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	return m.emitter.Subscribe(buffer)
}

func (m *Manager) emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	m.emitter.Emit(ev)
}

// Start runs the health monitor and the periodic metrics and health
// report jobs until ctx ends or Shutdown is called.
func (m *Manager) Start(ctx context.Context) error {
	if m.closed.Load() {
		return ErrShutdown
	}

	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.running {
		return nil
	}
	m.running = true

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if err := m.monitor.Start(ctx); err != nil {
		cancel()
		m.running = false
		return err
	}
	reports, unsubscribe := m.monitor.Subscribe(events.DefaultBufferSize)

	m.wg.Add(3)
	go func() {
		defer m.wg.Done()
		defer unsubscribe()
		m.forwardReports(ctx, reports)
	}()
	go func() {
		defer m.wg.Done()
		m.every(ctx, m.cfg.MetricsInterval, func() { m.CollectMetrics(ctx) })
	}()
	go func() {
		defer m.wg.Done()
		m.every(ctx, m.cfg.ReportInterval, func() { m.ReportSystemHealth(ctx) })
	}()

	log.WithField("metrics_interval", m.cfg.MetricsInterval).
		WithField("report_interval", m.cfg.ReportInterval).
		Debug("pool manager started")
	return nil
}

func (m *Manager) every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func (m *Manager) forwardReports(ctx context.Context, reports <-chan health.Report) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-reports:
			if !ok {
				return
			}
			m.emit(Event{Kind: EventRegionReport, Report: &r, Timestamp: r.Timestamp})
		}
	}
}

func (m *Manager) stopLoops() {
	m.loopMu.Lock()
	if !m.running {
		m.loopMu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	m.loopMu.Unlock()

	m.wg.Wait()
}

// Shutdown stops the periodic jobs, destroys every pool concurrently and
// closes the sinks. Later calls return nil; acquires after Shutdown fail
// with ErrShutdown.
func (m *Manager) Shutdown(ctx context.Context) error {
	var err error
	m.shutOnce.Do(func() {
		m.closed.Store(true)
		m.stopLoops()

		m.mu.Lock()
		pools := m.pools
		m.pools = make(map[string]*pool.Pool)
		m.mu.Unlock()

		g, _ := errgroup.WithContext(ctx)
		for _, p := range pools {
			g.Go(func() error {
				p.Destroy()
				pool.UpdateMetrics(p.Stats())
				return nil
			})
		}
		_ = g.Wait()

		m.monitor.Close()
		if m.limiter != nil {
			m.limiter.Close()
		}
		err = m.closeSinks()
		m.emitter.Close()

		log.WithField("regions", len(pools)).Info("pool manager shut down")
	})
	return err
}

// Closed reports whether Shutdown has been called.
func (m *Manager) Closed() bool {
	return m.closed.Load()
}
