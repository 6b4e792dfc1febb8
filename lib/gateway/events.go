package gateway

import (
	"time"

	"github.com/go-i2p/regionpool/lib/manager"
)

// EventType categorizes gateway events. Pool manager events keep their
// manager.EventKind as type.
type EventType string

const (
	// EventStarted is emitted when the gateway starts successfully.
	EventStarted EventType = "started"
	// EventStopped is emitted when the gateway stops.
	EventStopped EventType = "stopped"
	// EventStateChanged is emitted on every lifecycle transition.
	EventStateChanged EventType = "state_changed"
	// EventError is emitted when starting or stopping fails.
	EventError EventType = "error"

	EventStats        = EventType(manager.EventStats)
	EventHealth       = EventType(manager.EventHealth)
	EventRegionReport = EventType(manager.EventRegionReport)
	EventFailover     = EventType(manager.EventFailover)
	EventCircuit      = EventType(manager.EventCircuit)
)

// StateChange holds the states of an EventStateChanged.
type StateChange struct {
	Old State `json:"old"`
	New State `json:"new"`
}

// Event is a gateway lifecycle event or a forwarded manager event.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	// Message is a human-readable description of the event.
	Message string `json:"message,omitempty"`
	// Error is set for EventError.
	Error string `json:"error,omitempty"`
	// State is set for EventStateChanged.
	State *StateChange `json:"state,omitempty"`
	// Pool is the forwarded manager event, if any.
	Pool *manager.Event `json:"pool,omitempty"`
}

func (g *Gateway) emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	g.emitter.Emit(ev)
}

func (g *Gateway) emitSimple(t EventType, message string) {
	g.emit(Event{Type: t, Message: message})
}

func (g *Gateway) emitError(err error, message string) {
	g.emit(Event{Type: EventError, Error: err.Error(), Message: message})
}

func (g *Gateway) emitStateChange(oldState, newState State, message string) {
	g.emit(Event{
		Type:    EventStateChanged,
		Message: message,
		State:   &StateChange{Old: oldState, New: newState},
	})
}

// forward relays manager events until the stream closes.
func (g *Gateway) forward(events <-chan manager.Event) {
	for ev := range events {
		g.emit(Event{Type: EventType(ev.Kind), Timestamp: ev.Timestamp, Pool: &ev})
	}
}
