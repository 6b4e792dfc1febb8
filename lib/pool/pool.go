package pool

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/go-i2p/regionpool/lib/errors"
)

// Errors returned by the pool. They wrap the shared sentinels in lib/errors.
var (
	// ErrDestroyed is returned by any operation after Destroy.
	ErrDestroyed = apperrors.ErrPoolDestroyed
	// ErrCapacity is returned when the pool already holds MaxConnections.
	ErrCapacity = apperrors.ErrPoolCapacity
	// ErrTimeout is returned when a request is not matched in time.
	ErrTimeout = apperrors.ErrAcquireTimeout
	// ErrInvalidConfig is returned by New for an unusable configuration.
	ErrInvalidConfig = apperrors.ErrPoolConfig
)

// Factory creates the resource backing a new connection. It runs with the
// pool lock held and must return promptly.
type Factory func(region string) (io.Closer, error)

// Config configures a regional pool.
type Config struct {
	// MinConnections is created up front and maintained by the health check.
	// Default: 2
	MinConnections int
	// MaxConnections caps the connection set.
	// Default: 10
	MaxConnections int
	// ConnectionTimeout bounds how long a request may wait in the queue.
	// Leases held longer than twice this value are flagged unhealthy.
	// Default: 30 seconds
	ConnectionTimeout time.Duration
	// IdleTimeout is how long an available connection may sit unused
	// before the health check evicts it.
	// Default: 5 minutes
	IdleTimeout time.Duration
	// HealthCheckInterval is how often the health check runs.
	// Set to 0 to disable the background loop.
	// Default: 30 seconds
	HealthCheckInterval time.Duration
	// Factory optionally backs each connection with a real resource.
	Factory Factory
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MinConnections:      2,
		MaxConnections:      10,
		ConnectionTimeout:   30 * time.Second,
		IdleTimeout:         5 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.MaxConnections <= 0 {
		return fmt.Errorf("%w: max connections must be positive", ErrInvalidConfig)
	}
	if c.MinConnections < 0 {
		return fmt.Errorf("%w: min connections must not be negative", ErrInvalidConfig)
	}
	if c.MinConnections > c.MaxConnections {
		return fmt.Errorf("%w: min connections %d exceeds max %d",
			ErrInvalidConfig, c.MinConnections, c.MaxConnections)
	}
	if c.ConnectionTimeout <= 0 {
		return fmt.Errorf("%w: connection timeout must be positive", ErrInvalidConfig)
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("%w: idle timeout must be positive", ErrInvalidConfig)
	}
	if c.HealthCheckInterval < 0 {
		return fmt.Errorf("%w: health check interval must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Pool owns the connections of a single region. The connection set,
// available list and pending queue are only touched under mu.
type Pool struct {
	region string
	config Config

	mu        sync.Mutex
	conns     map[string]*Connection
	available []*Connection
	queue     waitQueue
	destroyed bool

	stopHealth chan struct{}
	healthDone chan struct{}

	created  atomic.Uint64
	evicted  atomic.Uint64
	timeouts atomic.Uint64
	served   atomic.Uint64
	canceled atomic.Uint64
}

// New creates a pool for region, synchronously opens MinConnections and
// starts the health check loop.
func New(region string, cfg Config) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		region:     region,
		config:     cfg,
		conns:      make(map[string]*Connection, cfg.MaxConnections),
		available:  make([]*Connection, 0, cfg.MaxConnections),
		stopHealth: make(chan struct{}),
		healthDone: make(chan struct{}),
	}

	p.mu.Lock()
	for len(p.conns) < cfg.MinConnections {
		if _, err := p.createLocked(); err != nil {
			for _, c := range p.conns {
				c.closeResource()
			}
			p.mu.Unlock()
			return nil, fmt.Errorf("pool %s: opening minimum connections: %w", region, err)
		}
	}
	p.mu.Unlock()

	if cfg.HealthCheckInterval > 0 {
		go p.healthCheckLoop()
	} else {
		close(p.healthDone)
	}

	log.WithField("region", region).
		WithField("min", cfg.MinConnections).
		WithField("max", cfg.MaxConnections).
		Debug("pool created")
	return p, nil
}

// Region returns the region served by the pool.
func (p *Pool) Region() string {
	return p.region
}

// Config returns the pool configuration.
func (p *Pool) Config() Config {
	return p.config
}

// createLocked adds a connection to the set and the available list.
func (p *Pool) createLocked() (*Connection, error) {
	if p.destroyed {
		return nil, ErrDestroyed
	}
	if len(p.conns) >= p.config.MaxConnections {
		return nil, ErrCapacity
	}

	var resource io.Closer
	if p.config.Factory != nil {
		var err error
		resource, err = p.config.Factory(p.region)
		if err != nil {
			return nil, fmt.Errorf("pool %s: creating connection: %w", p.region, err)
		}
	}

	c := newConnection(p.region, resource, time.Now())
	p.conns[c.id] = c
	p.available = append(p.available, c)
	p.created.Add(1)
	log.WithField("region", p.region).WithField("connection", c.id).Debug("connection created")
	return c, nil
}

// CreateConnection adds one connection to the pool. It fails with
// ErrCapacity when the pool is full. Waiting requests are served by the
// new connection immediately.
func (p *Pool) CreateConnection() (*Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, err := p.createLocked()
	if err != nil {
		return nil, err
	}
	p.processQueueLocked()
	return c, nil
}

// Acquire waits for a connection on behalf of requester. Requests with a
// prioritized tier are served before standard ones; within a band the
// order is FIFO. It returns ErrTimeout if no connection is matched within
// ConnectionTimeout, ErrDestroyed if the pool is or becomes destroyed, and
// ctx.Err() if ctx ends first.
func (p *Pool) Acquire(ctx context.Context, requester string, tier Tier) (*Connection, error) {
	start := time.Now()

	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return nil, ErrDestroyed
	}

	req := &request{
		requester:  requester,
		tier:       tier,
		enqueuedAt: start,
		result:     make(chan result, 1),
	}
	p.queue.push(req)
	req.timer = time.AfterFunc(p.config.ConnectionTimeout, func() { p.expire(req) })
	p.processQueueLocked()
	p.mu.Unlock()

	select {
	case res := <-req.result:
		if res.err == nil {
			PoolAcquireLatency.ObserveDuration(time.Since(start))
		}
		return res.conn, res.err
	case <-ctx.Done():
	}

	p.mu.Lock()
	if !req.settled {
		req.settled = true
		req.timer.Stop()
		p.queue.remove(req)
		p.mu.Unlock()
		p.canceled.Add(1)
		return nil, ctx.Err()
	}
	p.mu.Unlock()

	// Settled concurrently with cancellation. A matched connection goes
	// back to the pool; a timeout or destroy error is reported as is.
	res := <-req.result
	if res.conn == nil {
		return nil, res.err
	}
	p.Release(res.conn)
	p.canceled.Add(1)
	return nil, ctx.Err()
}

// expire fails a request whose timer fired before it was matched.
func (p *Pool) expire(req *request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if req.settled {
		return
	}
	p.queue.remove(req)
	req.settle(result{err: ErrTimeout})
	p.timeouts.Add(1)
	PoolTimeoutsTotal.Inc(p.region)
	log.WithField("region", p.region).
		WithField("requester", req.requester).
		WithField("tier", req.tier.String()).
		Debug("acquire timed out")
}

// processQueueLocked matches waiting requests to connections until either
// runs out. It never evicts a leased connection to make room.
func (p *Pool) processQueueLocked() {
	for p.queue.len() > 0 {
		conn := p.takeAvailableLocked()
		if conn == nil {
			if len(p.conns) >= p.config.MaxConnections {
				return
			}
			if _, err := p.createLocked(); err != nil {
				log.WithField("region", p.region).WithError(err).Warn("could not grow pool for waiting request")
				return
			}
			conn = p.takeAvailableLocked()
		}

		req := p.queue.pop()
		conn.lease(req.requester, req.tier, time.Now())
		req.settle(result{conn: conn})
	}
}

// takeAvailableLocked pops the most recently released connection.
func (p *Pool) takeAvailableLocked() *Connection {
	n := len(p.available)
	if n == 0 {
		return nil
	}
	c := p.available[n-1]
	p.available[n-1] = nil
	p.available = p.available[:n-1]
	return c
}

// Release returns a leased connection to the pool. Releasing a connection
// that the pool does not own, or that is not leased, is logged and ignored.
func (p *Pool) Release(conn *Connection) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if owned, ok := p.conns[conn.id]; !ok || owned != conn {
		log.WithField("region", p.region).WithField("connection", conn.id).Warn("release of unknown connection ignored")
		return
	}
	if !conn.Active() {
		log.WithField("region", p.region).WithField("connection", conn.id).Warn("release of idle connection ignored")
		return
	}

	conn.release(time.Now())
	p.available = append(p.available, conn)
	p.served.Add(1)

	if p.queue.len() > 0 {
		p.processQueueLocked()
	}
}

// RunHealthCheck performs one maintenance pass: it evicts available
// connections idle past IdleTimeout while the pool is above
// MinConnections, flags leases older than twice ConnectionTimeout as
// unhealthy and tops the pool back up to MinConnections.
func (p *Pool) RunHealthCheck() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return
	}
	now := time.Now()

	kept := make([]*Connection, 0, len(p.available))
	evicted := 0
	for _, c := range p.available {
		if len(p.conns) > p.config.MinConnections && c.idleLongerThan(p.config.IdleTimeout, now) {
			delete(p.conns, c.id)
			c.closeResource()
			evicted++
			continue
		}
		kept = append(kept, c)
	}
	p.available = kept
	if evicted > 0 {
		p.evicted.Add(uint64(evicted))
		PoolEvictionsTotal.Add(p.region, uint64(evicted))
		log.WithField("region", p.region).WithField("evicted", evicted).Debug("evicted idle connections")
	}

	for _, c := range p.conns {
		if c.leasedLongerThan(2*p.config.ConnectionTimeout, now) && c.markUnhealthy() {
			owner, _ := c.Owner()
			log.WithField("region", p.region).
				WithField("connection", c.id).
				WithField("owner", owner).
				Warn("long-running lease flagged unhealthy")
		}
	}

	for len(p.conns) < p.config.MinConnections {
		if _, err := p.createLocked(); err != nil {
			log.WithField("region", p.region).WithError(err).Warn("top-up connection failed")
			break
		}
	}

	if p.queue.len() > 0 {
		p.processQueueLocked()
	}
}

// healthCheckLoop runs RunHealthCheck every HealthCheckInterval.
func (p *Pool) healthCheckLoop() {
	defer close(p.healthDone)

	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopHealth:
			return
		case <-ticker.C:
			p.RunHealthCheck()
		}
	}
}

// Destroy fails every waiting request with ErrDestroyed, drops all
// connections and stops the health check. It is safe to call more than once.
func (p *Pool) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true

	pending := p.queue.drain()
	for _, req := range pending {
		req.settle(result{err: ErrDestroyed})
	}
	for _, c := range p.conns {
		c.closeResource()
	}
	p.conns = make(map[string]*Connection)
	p.available = nil
	close(p.stopHealth)
	p.mu.Unlock()

	<-p.healthDone

	log.WithField("region", p.region).WithField("failed_requests", len(pending)).Debug("pool destroyed")
}

// Connections returns a snapshot of every connection in the pool.
func (p *Pool) Connections() []ConnectionInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]ConnectionInfo, 0, len(p.conns))
	for _, c := range p.conns {
		out = append(out, c.Info())
	}
	return out
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Region               string  `json:"region"`
	TotalConnections     int     `json:"total_connections"`
	ActiveConnections    int     `json:"active_connections"`
	AvailableConnections int     `json:"available_connections"`
	PendingRequests      int     `json:"pending_requests"`
	MinConnections       int     `json:"min_connections"`
	MaxConnections       int     `json:"max_connections"`
	UnhealthyConnections int     `json:"unhealthy_connections"`
	Utilization          float64 `json:"utilization"`
	Created              uint64  `json:"created"`
	Evicted              uint64  `json:"evicted"`
	Timeouts             uint64  `json:"timeouts"`
	Served               uint64  `json:"served"`
	Canceled             uint64  `json:"canceled"`
	Destroyed            bool    `json:"destroyed"`
}

// Stats returns pool statistics without changing pool state.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Region:               p.region,
		TotalConnections:     len(p.conns),
		AvailableConnections: len(p.available),
		PendingRequests:      p.queue.len(),
		MinConnections:       p.config.MinConnections,
		MaxConnections:       p.config.MaxConnections,
		Created:              p.created.Load(),
		Evicted:              p.evicted.Load(),
		Timeouts:             p.timeouts.Load(),
		Served:               p.served.Load(),
		Canceled:             p.canceled.Load(),
		Destroyed:            p.destroyed,
	}
	for _, c := range p.conns {
		if c.Active() {
			s.ActiveConnections++
		}
		if c.Health() == Unhealthy {
			s.UnhealthyConnections++
		}
	}
	if s.TotalConnections > 0 {
		s.Utilization = float64(s.ActiveConnections) / float64(s.TotalConnections)
	}
	return s
}
