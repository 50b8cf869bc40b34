// Package hub implements the Client Hub (C4): it tracks connected
// WebSocket clients tagged by role and fans outbound messages out to them.
// Fan-out follows the snapshot-then-send pattern used throughout the
// engine: the connection list is copied under the hub's lock, then each
// send happens outside it, non-blocking, dropping slow consumers.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Role is the client kind a connection identified as.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleSubtitler Role = "subtitler"
	RoleSpectator Role = "spectator"
)

// Conn wraps a websocket connection with its role and a bounded outbound
// queue; one goroutine per connection drains the queue and writes to the
// socket, so Send is always non-blocking from the caller's perspective.
type Conn struct {
	ID   string
	Role Role

	ws      *websocket.Conn
	outbox  chan []byte
	closed  chan struct{}
	closeMu sync.Mutex
	didClose bool
}

func newConn(id string, role Role, ws *websocket.Conn) *Conn {
	c := &Conn{
		ID:     id,
		Role:   role,
		ws:     ws,
		outbox: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *Conn) writeLoop() {
	for {
		select {
		case b, ok := <-c.outbox:
			if !ok {
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// send enqueues b without blocking; if the outbox is full the message is
// dropped, matching the hub's best-effort delivery contract.
func (c *Conn) send(b []byte) {
	select {
	case c.outbox <- b:
	default:
		slog.Warn("hub: dropping message to slow consumer", "connId", c.ID)
	}
}

// Close tears down the connection's write loop and underlying socket. Safe
// to call more than once.
func (c *Conn) Close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.didClose {
		return
	}
	c.didClose = true
	close(c.closed)
	close(c.outbox)
	c.ws.Close()
}

// Hub tracks every connected client by role.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

func New() *Hub {
	return &Hub{conns: make(map[string]*Conn)}
}

// Add registers a new connection under id with the given role.
func (h *Hub) Add(id string, role Role, ws *websocket.Conn) *Conn {
	c := newConn(id, role, ws)
	h.mu.Lock()
	h.conns[id] = c
	h.mu.Unlock()
	return c
}

// SetRole updates the role of an already-registered connection, used once
// a client's identify message arrives.
func (h *Hub) SetRole(id string, role Role) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.conns[id]; ok {
		c.Role = role
	}
}

// Remove unregisters and closes the connection for id, if present.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	c, ok := h.conns[id]
	if ok {
		delete(h.conns, id)
	}
	h.mu.Unlock()
	if ok {
		c.Close()
	}
}

// SendTo best-effort sends msg to the connection with the given id. Silently
// a no-op if that connection is not currently registered.
func (h *Hub) SendTo(connID string, msg any) {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Error("hub: marshal outbound message", "error", err)
		return
	}
	c.send(b)
}

// Broadcast fans msg out to every connection for which filter returns true.
// A nil filter broadcasts to everyone.
func (h *Hub) Broadcast(msg any, filter func(Role) bool) {
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Error("hub: marshal outbound message", "error", err)
		return
	}
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		if filter == nil || filter(c.Role) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.send(b)
	}
}

func (h *Hub) ToAdmins(msg any)     { h.Broadcast(msg, func(r Role) bool { return r == RoleAdmin }) }
func (h *Hub) ToSubtitlers(msg any) { h.Broadcast(msg, func(r Role) bool { return r == RoleSubtitler }) }
func (h *Hub) ToSpectators(msg any) { h.Broadcast(msg, func(r Role) bool { return r == RoleSpectator }) }

// ToSubtitlersExcept fans out to every subtitler connection except the one
// identified by exceptConnID, matching the submission gate's "echo to
// other subtitlers" rule.
func (h *Hub) ToSubtitlersExcept(exceptConnID string, msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Error("hub: marshal outbound message", "error", err)
		return
	}
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns))
	for id, c := range h.conns {
		if c.Role == RoleSubtitler && id != exceptConnID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.send(b)
	}
}

// InitPayload is the payload sent to a client immediately on connect.
type InitPayload struct {
	Type         string `json:"type"`
	ConnID       string `json:"connId"`
	Running      bool   `json:"running"`
	DelaySec     int    `json:"delaySec"`
	Mode         string `json:"mode"`
	FragmentMode bool   `json:"fragmentMode"`
}
