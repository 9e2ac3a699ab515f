package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tessner/clack/internal/domain"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 8192
	sendBufSize    = 256
)

// Client is a single WebSocket connection. One user may hold several at
// once (one per device/tab); each gets its own id and send queue.
type Client struct {
	hub      *Hub
	router   *Router
	conn     *websocket.Conn
	id       uuid.UUID
	identity domain.Identity

	// subscribed tracks which channel rooms this connection listens to.
	subscribed map[int64]struct{}
	mu         sync.RWMutex

	send chan []byte
	done chan struct{}
}

func NewClient(hub *Hub, router *Router, conn *websocket.Conn, identity domain.Identity) *Client {
	return &Client{
		hub:        hub,
		router:     router,
		conn:       conn,
		id:         uuid.New(),
		identity:   identity,
		subscribed: make(map[int64]struct{}),
		send:       make(chan []byte, sendBufSize),
		done:       make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Client) ID() uuid.UUID {
	return c.id
}

// Identity returns the validated identity claim this connection carries.
func (c *Client) Identity() domain.Identity {
	return c.identity
}

func (c *Client) subscribe(channelID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed[channelID] = struct{}{}
}

func (c *Client) unsubscribe(channelID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscribed, channelID)
}

func (c *Client) isSubscribedAny(channelIDs []int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range channelIDs {
		if _, ok := c.subscribed[id]; ok {
			return true
		}
	}
	return false
}

// ReadPump reads inbound events and routes them until the connection
// drops, then tears down everything the connection owned.
func (c *Client) ReadPump() {
	defer func() {
		c.router.Disconnected(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		var event Event
		err := wsjson.Read(context.Background(), c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				log.Printf("ws: conn %s (user %d) closed", c.id, c.identity.UserID)
			} else {
				log.Printf("ws: read error on %s: %v", c.id, err)
			}
			return
		}

		c.router.Dispatch(c, &event)
	}
}

// WritePump drains the send queue to the socket and keeps the connection
// alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				log.Printf("ws: write error to %s: %v", c.id, err)
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				log.Printf("ws: ping error to %s: %v", c.id, err)
				return
			}
			c.router.Heartbeat(c)

		case <-c.done:
			return
		}
	}
}

// sendEvent queues an event for this connection only. Writes race the
// hub's eviction path, so a connection that is already done discards the
// event; send itself is never closed.
func (c *Client) sendEvent(eventType string, payload any) {
	evt, err := NewEvent(eventType, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	default:
	}
}

// sendError reports a failure to the offending connection only; nothing is
// broadcast.
func (c *Client) sendError(code, message, correlationID string) {
	c.sendEvent(EventError, ErrorPayload{Code: code, Message: message, CorrelationID: correlationID})
}
