// Package testutil provides fakes and harnesses for testing code built on
// the regionpool gateway without external services.
package testutil

import (
	"context"
	"sync"

	"github.com/go-i2p/regionpool/lib/manager"
)

// RecordingSink is a manager.Sink that keeps every summary it receives.
// Setting Err makes every publish fail with it.
type RecordingSink struct {
	mu     sync.Mutex
	name   string
	stats  []manager.SystemStats
	health []manager.SystemHealth
	closed bool

	Err error
}

// NewRecordingSink creates a sink reporting the given name.
func NewRecordingSink(name string) *RecordingSink {
	return &RecordingSink{name: name}
}

func (s *RecordingSink) Name() string { return s.name }

func (s *RecordingSink) PublishStats(_ context.Context, st manager.SystemStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.stats = append(s.stats, st)
	return nil
}

func (s *RecordingSink) PublishHealth(_ context.Context, h manager.SystemHealth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.health = append(s.health, h)
	return nil
}

func (s *RecordingSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Stats returns a copy of the received stats summaries.
func (s *RecordingSink) Stats() []manager.SystemStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]manager.SystemStats(nil), s.stats...)
}

// Health returns a copy of the received health summaries.
func (s *RecordingSink) Health() []manager.SystemHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]manager.SystemHealth(nil), s.health...)
}

// Closed reports whether Close was called.
func (s *RecordingSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ manager.Sink = (*RecordingSink)(nil)
