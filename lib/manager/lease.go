package manager

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/go-i2p/regionpool/lib/metrics"
	"github.com/go-i2p/regionpool/lib/pool"
)

// Lease is a connection handed out by the Manager, bound to the pool that
// owns it.
type Lease struct {
	id         string
	conn       *pool.Connection
	pool       *pool.Pool
	mgr        *Manager
	requester  string
	tier       pool.Tier
	acquiredAt time.Time
	failover   bool

	once sync.Once
}

func newLease(m *Manager, p *pool.Pool, conn *pool.Connection, requester string, tier pool.Tier, failover bool) *Lease {
	return &Lease{
		id:         uuid.NewString(),
		conn:       conn,
		pool:       p,
		mgr:        m,
		requester:  requester,
		tier:       tier,
		acquiredAt: time.Now(),
		failover:   failover,
	}
}

// ID returns the lease identifier.
func (l *Lease) ID() string { return l.id }

// Connection returns the leased connection.
func (l *Lease) Connection() *pool.Connection { return l.conn }

// Region returns the region the connection belongs to.
func (l *Lease) Region() string { return l.conn.Region() }

// Requester returns the identity the lease was acquired for.
func (l *Lease) Requester() string { return l.requester }

// Tier returns the tier the lease was acquired with.
func (l *Lease) Tier() pool.Tier { return l.tier }

// AcquiredAt returns when the lease was handed out.
func (l *Lease) AcquiredAt() time.Time { return l.acquiredAt }

// Failover reports whether the lease came from the failover attempt.
func (l *Lease) Failover() bool { return l.failover }

// Release returns the connection to its pool. Only the first call has an
// effect.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.pool.Release(l.conn)
		l.mgr.collector.RecordConnection(l.Region(), metrics.ConnectionClose)
		l.mgr.leases.Delete(l.id)
		LeaseDuration.ObserveDuration(time.Since(l.acquiredAt))
		LeasesOutstanding.Dec()
	})
}

// LeaseInfo is a JSON view of a lease.
type LeaseInfo struct {
	ID           string    `json:"lease_id"`
	ConnectionID string    `json:"connection_id"`
	Region       string    `json:"region"`
	Requester    string    `json:"requester_id"`
	Tier         pool.Tier `json:"tier"`
	AcquiredAt   time.Time `json:"acquired_at"`
	Failover     bool      `json:"failover"`
}

// Info returns a JSON view of the lease.
func (l *Lease) Info() LeaseInfo {
	return LeaseInfo{
		ID:           l.id,
		ConnectionID: l.conn.ID(),
		Region:       l.Region(),
		Requester:    l.requester,
		Tier:         l.tier,
		AcquiredAt:   l.acquiredAt,
		Failover:     l.failover,
	}
}
