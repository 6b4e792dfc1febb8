package resilience

// A Breaker guards a single region. Acquire failures in the region count
// towards opening it; while open the region is skipped by selection until
// the cool-down elapses and a limited number of probe acquires succeed.
//
//	Closed -> Open -> HalfOpen -> Closed
//	           ^         |
//	           +---------+ (probe failed)

import (
	"context"
	"sync"
	"time"
)

// State is the state of a Breaker.
type State int

const (
	// Closed passes every request through.
	Closed State = iota
	// Open rejects requests until the cool-down elapses.
	Open
	// HalfOpen admits a bounded number of probes.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config tunes a Breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that close it.
	SuccessThreshold int
	// CoolDown is how long the breaker stays open.
	CoolDown time.Duration
	// MaxProbes bounds concurrent half-open requests.
	MaxProbes int
}

// DefaultConfig returns the breaker defaults used for regions.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		CoolDown:         30 * time.Second,
		MaxProbes:        3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	if c.CoolDown <= 0 {
		c.CoolDown = d.CoolDown
	}
	if c.MaxProbes <= 0 {
		c.MaxProbes = d.MaxProbes
	}
	return c
}

// Breaker is a circuit breaker for one region.
type Breaker struct {
	mu     sync.Mutex
	cfg    Config
	region string
	now    func() time.Time

	state     State
	failures  int
	successes int
	probes    int

	openedAt    time.Time
	lastFailure time.Time
	lastChange  time.Time
	trips       uint64

	onChange func(region string, from, to State)
}

// NewBreaker creates a closed breaker for region. Zero config fields take
// their defaults.
func NewBreaker(region string, cfg Config) *Breaker {
	b := &Breaker{
		cfg:    cfg.withDefaults(),
		region: region,
		now:    time.Now,
		state:  Closed,
	}
	b.lastChange = b.now()
	return b
}

// Region returns the region this breaker guards.
func (b *Breaker) Region() string { return b.region }

// OnStateChange registers fn to run on every transition. It is called in
// its own goroutine.
func (b *Breaker) OnStateChange(fn func(region string, from, to State)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// State reports the current state. An open breaker whose cool-down has
// elapsed reads as half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.observedLocked()
}

func (b *Breaker) observedLocked() State {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.CoolDown {
		return HalfOpen
	}
	return b.state
}

// Allow reports whether a request may proceed and, in half-open, reserves
// one probe slot.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.openedAt) < b.cfg.CoolDown {
			return false
		}
		b.transitionLocked(HalfOpen)
		b.probes = 1
		return true
	case HalfOpen:
		if b.probes < b.cfg.MaxProbes {
			b.probes++
			return true
		}
		return false
	}
	return false
}

// Success records a successful acquire in the region.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.probes > 0 {
			b.probes--
		}
		if b.successes >= b.cfg.SuccessThreshold {
			b.transitionLocked(Closed)
		}
	case Open:
		log.WithField("region", b.region).Debug("success recorded while breaker open")
	}
}

// Failure records a failed acquire in the region.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()
	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transitionLocked(Open)
		}
	case HalfOpen:
		b.transitionLocked(Open)
	}
}

func (b *Breaker) transitionLocked(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.lastChange = b.now()

	switch to {
	case Closed:
		b.failures = 0
		b.successes = 0
		b.probes = 0
	case Open:
		b.openedAt = b.lastChange
		b.successes = 0
		b.trips++
		BreakerTrips.Inc(b.region)
	case HalfOpen:
		b.successes = 0
		b.probes = 0
	}
	BreakerState.Set(b.region, float64(to))

	log.WithField("region", b.region).
		WithField("from", from.String()).
		WithField("to", to.String()).
		Info("region breaker transition")

	if b.onChange != nil {
		go b.onChange(b.region, from, to)
	}
}

// Execute runs fn if the breaker allows it and records the outcome.
// Cancellation of ctx is not counted as a region failure.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !b.Allow() {
		BreakerRejections.Inc(b.region)
		return ErrCircuitOpen
	}
	if err := ctx.Err(); err != nil {
		b.releaseProbe()
		return err
	}

	err := fn(ctx)
	switch {
	case err == nil:
		b.Success()
	case ctx.Err() != nil:
		b.releaseProbe()
		return ctx.Err()
	default:
		b.Failure()
	}
	return err
}

func (b *Breaker) releaseProbe() {
	b.mu.Lock()
	if b.state == HalfOpen && b.probes > 0 {
		b.probes--
	}
	b.mu.Unlock()
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionLocked(Closed)
	b.failures = 0
	b.openedAt = time.Time{}
}

// ForceOpen opens the breaker regardless of counters.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionLocked(Open)
}

// Stats is a snapshot of a Breaker.
type Stats struct {
	Region      string    `json:"region"`
	State       State     `json:"state"`
	Failures    int       `json:"failures"`
	Trips       uint64    `json:"trips"`
	LastFailure time.Time `json:"last_failure,omitempty"`
	LastChange  time.Time `json:"last_change"`
}

// Stats returns a snapshot of the breaker.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Region:      b.region,
		State:       b.observedLocked(),
		Failures:    b.failures,
		Trips:       b.trips,
		LastFailure: b.lastFailure,
		LastChange:  b.lastChange,
	}
}
