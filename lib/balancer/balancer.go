// Package balancer picks a target region for a request. It implements the
// round-robin, least-connections and regional-affinity strategies over a
// list of candidate regions supplied by the caller.
package balancer

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/samber/lo"

	apperrors "github.com/go-i2p/regionpool/lib/errors"
)

// ErrNoHealthyRegion is returned when no candidate is healthy.
var ErrNoHealthyRegion = apperrors.ErrNoHealthyRegion

// Strategy is a region selection algorithm.
type Strategy int

const (
	// RoundRobin cycles through healthy regions.
	RoundRobin Strategy = iota
	// LeastConnections picks the healthy region with the fewest leased
	// connections; the first listed region wins ties.
	LeastConnections
	// RegionalAffinity maps a requester to a fixed region by hash and falls
	// back to round-robin while that region is unhealthy.
	RegionalAffinity
)

func (s Strategy) String() string {
	switch s {
	case RoundRobin:
		return "round-robin"
	case LeastConnections:
		return "least-connections"
	case RegionalAffinity:
		return "regional-affinity"
	default:
		return "unknown"
	}
}

// ParseStrategy parses a strategy name. Underscores are accepted in place
// of dashes.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case "", "round-robin":
		return RoundRobin, nil
	case "least-connections":
		return LeastConnections, nil
	case "regional-affinity":
		return RegionalAffinity, nil
	default:
		return RoundRobin, fmt.Errorf("balancer: strategy %q: %w", s, apperrors.ErrInvalidInput)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(b []byte) error {
	parsed, err := ParseStrategy(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Candidate describes one configured region at selection time.
type Candidate struct {
	Region            string
	Healthy           bool
	ActiveConnections int
}

// Balancer selects regions with a fixed strategy. It is safe for
// concurrent use.
type Balancer struct {
	strategy Strategy
	cursor   atomic.Uint64
}

// New creates a balancer for the given strategy.
func New(strategy Strategy) *Balancer {
	return &Balancer{strategy: strategy}
}

// Strategy returns the configured strategy.
func (b *Balancer) Strategy() Strategy {
	return b.strategy
}

// Pick selects a region among candidates, which must be listed in
// configuration order.
func (b *Balancer) Pick(requesterID string, candidates []Candidate) (string, error) {
	healthy := lo.Filter(candidates, func(c Candidate, _ int) bool { return c.Healthy })
	if len(healthy) == 0 {
		return "", ErrNoHealthyRegion
	}

	switch b.strategy {
	case LeastConnections:
		return leastConnections(healthy), nil
	case RegionalAffinity:
		if c := candidates[AffinityIndex(requesterID, len(candidates))]; c.Healthy {
			return c.Region, nil
		}
		return b.roundRobin(healthy), nil
	default:
		return b.roundRobin(healthy), nil
	}
}

// roundRobin advances the shared cursor and indexes into the healthy list.
func (b *Balancer) roundRobin(healthy []Candidate) string {
	n := b.cursor.Add(1) - 1
	return healthy[n%uint64(len(healthy))].Region
}

func leastConnections(healthy []Candidate) string {
	best := healthy[0]
	for _, c := range healthy[1:] {
		if c.ActiveConnections < best.ActiveConnections {
			best = c
		}
	}
	return best.Region
}

// AffinityIndex hashes requesterID onto [0, n).
func AffinityIndex(requesterID string, n int) int {
	if n <= 0 {
		return 0
	}
	return int(xxhash.Sum64String(requesterID) % uint64(n))
}
