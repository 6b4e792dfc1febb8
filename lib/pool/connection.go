package pool

import (
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Health is the health flag of a single connection.
type Health int

const (
	// Healthy is the normal state.
	Healthy Health = iota
	// Unhealthy marks a connection leased for longer than twice the
	// connection timeout.
	Unhealthy
)

func (h Health) String() string {
	if h == Unhealthy {
		return "unhealthy"
	}
	return "healthy"
}

// Connection is a leasable handle owned by exactly one regional pool.
// Fields that change over the lifetime are guarded by mu; the pool only
// mutates them while holding its own lock.
type Connection struct {
	id        string
	region    string
	createdAt time.Time
	resource  io.Closer

	mu          sync.Mutex
	lastUsed    time.Time
	leasedAt    time.Time
	active      bool
	health      Health
	served      uint64
	avgResponse time.Duration
	owner       string
	tier        Tier
}

func newConnection(region string, resource io.Closer, now time.Time) *Connection {
	return &Connection{
		id:        ulid.Make().String(),
		region:    region,
		createdAt: now,
		lastUsed:  now,
		resource:  resource,
	}
}

// ID returns the unique connection id.
func (c *Connection) ID() string { return c.id }

// Region returns the region the connection belongs to.
func (c *Connection) Region() string { return c.region }

// CreatedAt returns when the connection was created.
func (c *Connection) CreatedAt() time.Time { return c.createdAt }

// Resource returns the underlying resource, or nil if the pool has no factory.
func (c *Connection) Resource() io.Closer { return c.resource }

// LastUsed returns when the connection was last released (or created).
func (c *Connection) LastUsed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

// Active reports whether the connection is currently leased.
func (c *Connection) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Health returns the connection health flag.
func (c *Connection) Health() Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.health
}

// Owner returns the current requester and tier while leased.
func (c *Connection) Owner() (string, Tier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner, c.tier
}

// ConnectionInfo is a point-in-time copy of a connection's state.
type ConnectionInfo struct {
	ID              string        `json:"id"`
	Region          string        `json:"region"`
	CreatedAt       time.Time     `json:"created_at"`
	LastUsed        time.Time     `json:"last_used"`
	Active          bool          `json:"active"`
	Health          string        `json:"health"`
	RequestsServed  uint64        `json:"requests_served"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	Owner           string        `json:"owner,omitempty"`
	Tier            string        `json:"tier,omitempty"`
}

// Info returns a snapshot of the connection.
func (c *Connection) Info() ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := ConnectionInfo{
		ID:              c.id,
		Region:          c.region,
		CreatedAt:       c.createdAt,
		LastUsed:        c.lastUsed,
		Active:          c.active,
		Health:          c.health.String(),
		RequestsServed:  c.served,
		AvgResponseTime: c.avgResponse,
	}
	if c.active {
		info.Owner = c.owner
		info.Tier = c.tier.String()
	}
	return info
}

func (c *Connection) lease(requester string, tier Tier, now time.Time) {
	c.mu.Lock()
	c.active = true
	c.owner = requester
	c.tier = tier
	c.leasedAt = now
	c.mu.Unlock()
}

// release ends the lease and folds its duration into the running average.
func (c *Connection) release(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	held := now.Sub(c.leasedAt)
	c.served++
	c.avgResponse = (c.avgResponse*time.Duration(c.served-1) + held) / time.Duration(c.served)
	c.active = false
	c.owner = ""
	c.tier = Standard
	c.health = Healthy
	c.lastUsed = now
}

// leasedLongerThan reports whether the connection has been leased for more than d.
func (c *Connection) leasedLongerThan(d time.Duration, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active && now.Sub(c.leasedAt) > d
}

// idleLongerThan reports whether an available connection has been idle for more than d.
func (c *Connection) idleLongerThan(d time.Duration, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.active && now.Sub(c.lastUsed) > d
}

func (c *Connection) markUnhealthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.health == Unhealthy {
		return false
	}
	c.health = Unhealthy
	return true
}

func (c *Connection) closeResource() {
	if c.resource == nil {
		return
	}
	go func() {
		if err := c.resource.Close(); err != nil {
			log.WithField("connection", c.id).WithError(err).Debug("closing pooled resource")
		}
	}()
}
