package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/go-i2p/regionpool/lib/gateway"
)

const (
	eventBuffer  = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleAPIEvents streams gateway events as JSON text frames. The
// optional "types" query parameter is a comma separated filter, e.g.
// ?types=failover,circuit.
func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	var types []gateway.EventType
	if q := r.URL.Query().Get("types"); q != "" {
		types = lo.FilterMap(strings.Split(q, ","), func(t string, _ int) (gateway.EventType, bool) {
			t = strings.TrimSpace(t)
			return gateway.EventType(t), t != ""
		})
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	defer conn.Close()
	select {
	case <-s.stopping:
		return
	default:
	}
	s.streams.Add(1)
	defer s.streams.Done()

	events, cancel := s.gw.Subscribe(eventBuffer)
	defer cancel()

	// The read side only handles control frames and notices the peer
	// closing.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	s.logger.Debug("event stream opened", "remote", r.RemoteAddr, "types", types)
	for {
		select {
		case <-closed:
			return
		case <-s.stopping:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"),
				time.Now().Add(writeWait))
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "gateway closed"),
					time.Now().Add(writeWait))
				return
			}
			if len(types) > 0 && !lo.Contains(types, ev.Type) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("event stream write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
