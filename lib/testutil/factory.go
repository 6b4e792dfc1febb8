package testutil

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/go-i2p/regionpool/lib/pool"
)

// ErrFactory is returned by a CountingFactory told to fail.
var ErrFactory = errors.New("testutil: factory failure")

// CountingFactory builds pool resources and counts how many were opened
// and closed, per region.
type CountingFactory struct {
	mu     sync.Mutex
	opened map[string]int
	closed atomic.Int64

	// FailRegions makes creation fail for the listed regions.
	FailRegions map[string]bool
}

// NewCountingFactory creates an empty factory.
func NewCountingFactory() *CountingFactory {
	return &CountingFactory{opened: make(map[string]int)}
}

// Factory returns the pool.Factory backed by f.
func (f *CountingFactory) Factory() pool.Factory {
	return func(region string) (io.Closer, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.FailRegions[region] {
			return nil, ErrFactory
		}
		f.opened[region]++
		return &countingCloser{f: f}, nil
	}
}

// Opened returns how many resources were created for region.
func (f *CountingFactory) Opened(region string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened[region]
}

// TotalOpened returns how many resources were created in every region.
func (f *CountingFactory) TotalOpened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.opened {
		n += v
	}
	return n
}

// Closed returns how many resources were closed.
func (f *CountingFactory) Closed() int {
	return int(f.closed.Load())
}

type countingCloser struct {
	f    *CountingFactory
	once sync.Once
}

func (c *countingCloser) Close() error {
	c.once.Do(func() { c.f.closed.Add(1) })
	return nil
}
