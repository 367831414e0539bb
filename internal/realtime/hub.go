// Package realtime pushes doubt lifecycle events to connected clients over
// websockets. Identity is bound to a connection at handshake from a
// verified access token, and events are fanned out only to the doubt's
// participants; clients never influence delivery by what they send.
package realtime

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Event is one message pushed to a client. Name keeps the wire contract of
// the event channel: "newDoubt", "doubt:<id>" and "doubt:<id>:status".
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload"`
}

// Client is the per-connection session object. It owns one writer
// goroutine; the hub never writes to a socket directly.
type Client struct {
	UserID string
	Role   string

	conn   *websocket.Conn
	send   chan Event
	ctx    context.Context
	cancel context.CancelFunc
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*Client]struct{})}
}

// Attach registers an authenticated connection and starts its write and
// keep-alive loops. The caller must Detach when the connection ends.
func (h *Hub) Attach(userID, role string, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		UserID: userID,
		Role:   role,
		conn:   conn,
		send:   make(chan Event, 64),
		ctx:    ctx,
		cancel: cancel,
	}
	h.register(c)

	go c.writeLoop()
	go c.keepAliveLoop()

	return c
}

func (h *Hub) Detach(c *Client) {
	c.cancel()
	h.unregister(c)
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "bye")
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.UserID] == nil {
		h.clients[c.UserID] = make(map[*Client]struct{})
	}
	h.clients[c.UserID][c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.UserID)
		}
	}
}

// publish fans an event out to every connection of the given users. A full
// send buffer drops the event for that connection: delivery is best effort
// and a reconnecting client refetches state anyway.
func (h *Hub) publish(ev Event, userIDs ...string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, uid := range userIDs {
		for c := range h.clients[uid] {
			select {
			case c.send <- ev:
			default:
				log.Printf("realtime: dropping %s for user %s (slow consumer)", ev.Name, uid)
			}
		}
	}
}

// DoubtCreated notifies the assigned teacher that a new doubt arrived.
func (h *Hub) DoubtCreated(doubt any, teacherID string) {
	h.publish(Event{
		Name:    "newDoubt",
		Payload: map[string]any{"doubt": doubt, "teacherId": teacherID},
	}, teacherID)
}

// ReplyAdded notifies both participants of a new thread message.
func (h *Hub) ReplyAdded(doubtID string, reply any, participants ...string) {
	h.publish(Event{
		Name:    fmt.Sprintf("doubt:%s", doubtID),
		Payload: map[string]any{"reply": reply},
	}, participants...)
}

// StatusChanged notifies both participants of a lifecycle transition.
func (h *Hub) StatusChanged(doubtID, status string, participants ...string) {
	h.publish(Event{
		Name:    fmt.Sprintf("doubt:%s:status", doubtID),
		Payload: map[string]any{"status": status},
	}, participants...)
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.send:
			writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := wsjson.Write(writeCtx, c.conn, ev); err != nil {
				cancel()
				c.cancel()
				return
			}
			cancel()
		}
	}
}

func (c *Client) keepAliveLoop() {
	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.cancel()
				return
			}
		}
	}
}
