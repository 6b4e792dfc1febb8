package manager

import (
	"time"

	"github.com/go-i2p/regionpool/lib/health"
	"github.com/go-i2p/regionpool/lib/resilience"
)

// EventKind identifies the payload of an Event.
type EventKind string

const (
	EventStats        EventKind = "stats"
	EventHealth       EventKind = "health"
	EventRegionReport EventKind = "region_report"
	EventFailover     EventKind = "failover"
	EventCircuit      EventKind = "circuit"
)

// FailoverEvent describes an acquire retried after a failure.
type FailoverEvent struct {
	Requester string `json:"requester_id"`
	From      string `json:"from_region"`
	Reason    string `json:"reason"`
}

// CircuitEvent describes a region breaker transition.
type CircuitEvent struct {
	Region string           `json:"region"`
	From   resilience.State `json:"from"`
	To     resilience.State `json:"to"`
}

// Event is one item of the manager's event stream. Exactly one payload
// field is set, matching Kind.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Stats     *SystemStats   `json:"stats,omitempty"`
	Health    *SystemHealth  `json:"health,omitempty"`
	Report    *health.Report `json:"report,omitempty"`
	Failover  *FailoverEvent `json:"failover,omitempty"`
	Circuit   *CircuitEvent  `json:"circuit,omitempty"`
}
