package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/lumen/internal/agent"
	"github.com/nugget/lumen/internal/events"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 15 * time.Second
	wsPongWait   = 2 * wsPingPeriod
)

// The clients are the app and local tooling, not browsers, so any
// origin is accepted.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsMessage is a client frame on /v1/ws.
type wsMessage struct {
	// Type is "request" or "cancel".
	Type    string        `json:"type"`
	Request agent.Request `json:"request"`
}

// wsConn serializes writes to a WebSocket connection.
type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) send(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.c.WriteJSON(v)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// keepalive pings until ctx is done and extends the read deadline on
// every pong.
func (w *wsConn) keepalive(ctx context.Context) {
	_ = w.c.SetReadDeadline(time.Now().Add(wsPongWait))
	w.c.SetPongHandler(func(string) error {
		return w.c.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		t := time.NewTicker(wsPingPeriod)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := w.ping(); err != nil {
					return
				}
			}
		}
	}()
}

// handleWebSocket accepts request and cancel frames and streams each
// request's events back as JSON frames.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	conn := &wsConn{c: c}
	defer c.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	conn.keepalive(ctx)

	start := time.Now()
	s.logger.Info("websocket client connected", "remote", r.RemoteAddr)
	s.publish(events.KindClientConnected, map[string]any{"transport": "ws", "remote": r.RemoteAddr})
	defer func() {
		s.logger.Info("websocket client disconnected", "remote", r.RemoteAddr)
		s.publish(events.KindClientDisconnected, map[string]any{
			"transport":   "ws",
			"remote":      r.RemoteAddr,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}()

	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read failed", "error", err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = conn.send(agent.Event{Kind: agent.EventError, Error: "invalid frame: " + err.Error()})
			continue
		}

		switch msg.Type {
		case "request":
			if err := checkRequest(msg.Request); err != nil {
				_ = conn.send(agent.Event{Kind: agent.EventError, Error: err.Error()})
				continue
			}
			ch := s.driver.SendStreamRequest(ctx, msg.Request)
			wg.Add(1)
			go func() {
				defer wg.Done()
				for ev := range ch {
					if err := conn.send(ev); err != nil {
						s.logger.Debug("websocket write failed", "error", err)
						cancel()
					}
				}
			}()
		case "cancel":
			s.driver.Cancel()
		default:
			_ = conn.send(agent.Event{Kind: agent.EventError, Error: "unknown frame type: " + msg.Type})
		}
	}
}

// handleEvents mirrors the event bus to a WebSocket client until it
// disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		s.fail(w, http.StatusServiceUnavailable, "event bus not configured")
		return
	}
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	conn := &wsConn{c: c}
	defer c.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	conn.keepalive(ctx)

	sub := s.bus.Subscribe(64)
	defer s.bus.Unsubscribe(sub)

	// The client sends nothing; reading surfaces the close and pongs.
	go func() {
		defer cancel()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := conn.send(ev); err != nil {
				return
			}
		}
	}
}
