package resilience

import (
	"sort"
	"sync"
)

// Group holds one Breaker per region, created lazily.
type Group struct {
	mu       sync.RWMutex
	cfg      Config
	breakers map[string]*Breaker
	onChange func(region string, from, to State)
}

// NewGroup creates an empty breaker group.
func NewGroup(cfg Config) *Group {
	return &Group{
		cfg:      cfg.withDefaults(),
		breakers: make(map[string]*Breaker),
	}
}

// OnStateChange registers fn on every breaker in the group, including
// breakers created later.
func (g *Group) OnStateChange(fn func(region string, from, to State)) {
	g.mu.Lock()
	g.onChange = fn
	for _, b := range g.breakers {
		b.OnStateChange(fn)
	}
	g.mu.Unlock()
}

// For returns the breaker for region.
func (g *Group) For(region string) *Breaker {
	g.mu.RLock()
	b, ok := g.breakers[region]
	g.mu.RUnlock()
	if ok {
		return b
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok = g.breakers[region]; ok {
		return b
	}
	b = NewBreaker(region, g.cfg)
	if g.onChange != nil {
		b.OnStateChange(g.onChange)
	}
	g.breakers[region] = b
	return b
}

// Available reports whether region would currently accept a request,
// without reserving a probe.
func (g *Group) Available(region string) bool {
	return g.For(region).State() != Open
}

// Stats returns a snapshot of every breaker, sorted by region.
func (g *Group) Stats() []Stats {
	g.mu.RLock()
	out := make([]Stats, 0, len(g.breakers))
	for _, b := range g.breakers {
		out = append(out, b.Stats())
	}
	g.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Region < out[j].Region })
	return out
}
