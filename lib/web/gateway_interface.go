package web

import (
	"context"

	"github.com/go-i2p/regionpool/lib/gateway"
	"github.com/go-i2p/regionpool/lib/manager"
	"github.com/go-i2p/regionpool/lib/pool"
)

// Gateway is the subset of *gateway.Gateway the HTTP API uses.
type Gateway interface {
	Acquire(ctx context.Context, requesterID string, opts manager.Options) (*manager.Lease, error)
	ReleaseByID(id string) error
	Lease(id string) (*manager.Lease, bool)
	SystemStats() (manager.SystemStats, error)
	RegionStats(region string) (pool.Stats, manager.RegionHealth, error)
	SystemHealth() manager.SystemHealth
	Status() gateway.Status
	Subscribe(buffer int) (<-chan gateway.Event, func())
}

var _ Gateway = (*gateway.Gateway)(nil)
