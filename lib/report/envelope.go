// Package report delivers the pool manager's periodic stats and health
// summaries to systems outside the process: the log, NATS, Kafka, StatsD
// and DogStatsD.
package report

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/go-i2p/regionpool/lib/manager"
)

// Envelope kinds.
const (
	KindStats  = "stats"
	KindHealth = "health"
)

// Envelope wraps a summary published to a message broker.
type Envelope struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

var hostname = func() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}()

func encode(kind string, ts time.Time, payload any) (id string, data []byte, err error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", nil, err
	}
	env := Envelope{
		ID:        uuid.NewString(),
		Kind:      kind,
		Source:    hostname,
		Timestamp: ts,
		Payload:   raw,
	}
	data, err = json.Marshal(env)
	return env.ID, data, err
}

func encodeStats(s manager.SystemStats) (string, []byte, error) {
	return encode(KindStats, s.Timestamp, s)
}

func encodeHealth(h manager.SystemHealth) (string, []byte, error) {
	return encode(KindHealth, h.Timestamp, h)
}
