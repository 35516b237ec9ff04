// Package server exposes a running game session to UI clients over
// websockets. Clients receive every engine event as a JSON frame and may send
// control commands back.
package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/abmakes/atoz-engine-go/internal/engine"
	"github.com/abmakes/atoz-engine-go/internal/engine/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local presentation tool, any origin may connect
	},
}

// Frame is the wire form of one engine event.
type Frame struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// Command is a control message from a UI client.
type Command struct {
	Action   string `json:"action"` // "submitAnswer", "pause", "resume", "end"
	OptionID string `json:"optionId,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Feed relays session events to connected websocket clients and applies
// their commands to the session.
type Feed struct {
	session *engine.Session
	logger  *zap.Logger

	mu      sync.Mutex
	clients map[*client]bool
	unsubs  []func()
	closed  bool
}

// NewFeed subscribes to every event type the session can emit.
func NewFeed(session *engine.Session, logger *zap.Logger) *Feed {
	f := &Feed{
		session: session,
		logger:  logger,
		clients: make(map[*client]bool),
	}
	bus := session.Managers().Bus
	for _, et := range events.AllTypes() {
		f.unsubs = append(f.unsubs, bus.Subscribe(et, f.relay))
	}
	return f
}

func (f *Feed) relay(e events.Event) {
	data, err := json.Marshal(Frame{
		Type:      string(e.Type),
		Payload:   e.Payload,
		Timestamp: e.Timestamp.UnixMilli(),
	})
	if err != nil {
		f.logger.Error("encode event frame", zap.String("type", string(e.Type)), zap.Error(err))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.send <- data:
		default:
			// Slow client, drop it rather than stall the engine.
			close(c.send)
			delete(f.clients, c)
		}
	}
}

// ServeHTTP upgrades the request and attaches the client to the feed.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 64)}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		conn.Close()
		return
	}
	f.clients[c] = true
	f.mu.Unlock()

	f.logger.Info("ui client connected", zap.String("remote", conn.RemoteAddr().String()))

	go f.writePump(c)
	go f.readPump(c)
}

func (f *Feed) writePump(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (f *Feed) readPump(c *client) {
	defer f.drop(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			f.logger.Warn("malformed client command", zap.Error(err))
			continue
		}
		f.apply(cmd)
	}
}

func (f *Feed) apply(cmd Command) {
	var err error
	switch cmd.Action {
	case "submitAnswer":
		err = f.session.SubmitAnswer(cmd.OptionID)
	case "pause":
		err = f.session.Pause()
	case "resume":
		err = f.session.Resume()
	case "end":
		err = f.session.End()
	default:
		f.logger.Warn("unknown client command", zap.String("action", cmd.Action))
		return
	}
	if err != nil {
		f.logger.Warn("client command rejected",
			zap.String("action", cmd.Action),
			zap.Error(err),
		)
	}
}

func (f *Feed) drop(c *client) {
	f.mu.Lock()
	if f.clients[c] {
		delete(f.clients, c)
		close(c.send)
	}
	f.mu.Unlock()
	c.conn.Close()
}

// Close detaches the feed from the bus and disconnects all clients.
func (f *Feed) Close() {
	for _, unsub := range f.unsubs {
		unsub()
	}
	f.unsubs = nil

	f.mu.Lock()
	f.closed = true
	for c := range f.clients {
		delete(f.clients, c)
		close(c.send)
	}
	f.mu.Unlock()
}
