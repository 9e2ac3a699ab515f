package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
)

// Hub owns the subscription table: every live connection, indexed by
// connection id and by user so one user's multiple devices are tracked
// independently and a broadcast reaches all of them.
type Hub struct {
	// conns maps connectionID → client; byUser is the reverse index.
	conns  map[uuid.UUID]*Client
	byUser map[int64]map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMsg
}

type broadcastMsg struct {
	// channelIDs is an any-of match against the client's subscriptions.
	channelIDs []int64
	data       []byte
	excludeConn uuid.UUID // skip one connection (e.g. the typer)
	excludeUser int64     // skip all of a user's connections
}

func NewHub() *Hub {
	return &Hub{
		conns:      make(map[uuid.UUID]*Client),
		byUser:     make(map[int64]map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMsg, 256),
	}
}

// Run is the Hub's single-owner event loop; all map mutation happens here.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case client := <-h.register:
			h.conns[client.id] = client
			if h.byUser[client.identity.UserID] == nil {
				h.byUser[client.identity.UserID] = make(map[uuid.UUID]*Client)
			}
			h.byUser[client.identity.UserID][client.id] = client
			log.Printf("ws hub: user %d connected via %s (%d conns)", client.identity.UserID, client.id, len(h.conns))

		case client := <-h.unregister:
			if _, ok := h.conns[client.id]; ok {
				h.drop(client)
				log.Printf("ws hub: user %d disconnected %s (%d conns)", client.identity.UserID, client.id, len(h.conns))
			}

		case msg := <-h.broadcast:
			for _, client := range h.conns {
				if msg.excludeConn != uuid.Nil && client.id == msg.excludeConn {
					continue
				}
				if msg.excludeUser != 0 && client.identity.UserID == msg.excludeUser {
					continue
				}
				if !client.isSubscribedAny(msg.channelIDs) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// Send queue full: the client is too slow to keep the
					// ordering contract; drop it and let it reconcile via
					// the backlog API after reconnecting.
					h.drop(client)
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.conns, client.id)
	if mm := h.byUser[client.identity.UserID]; mm != nil {
		delete(mm, client.id)
		if len(mm) == 0 {
			delete(h.byUser, client.identity.UserID)
		}
	}
	// Only done is closed. The connection's read pump may still be
	// dispatching one last inbound event, and its reply path writes to
	// send; send stays open so those writes are discarded instead of
	// panicking.
	close(client.done)
}

// Register hands a new connection to the hub loop.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a connection; safe to call from the read pump's
// teardown path.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastToChannel fans an event out to every connection subscribed to
// the channel. Events enqueue in call order and each connection's send
// queue is FIFO, so subscribers observe commit order.
func (h *Hub) BroadcastToChannel(channelID int64, event *Event, excludeConn uuid.UUID) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("ws hub: marshal error: %v", err)
		return
	}
	h.broadcast <- &broadcastMsg{
		channelIDs:  []int64{channelID},
		data:        data,
		excludeConn: excludeConn,
	}
}

// BroadcastToChannels delivers one event to every connection subscribed to
// any of the channels, at most once per connection even when it is
// subscribed to several of them. Used for presence fan-out scoped to the
// subject's shared channels.
func (h *Hub) BroadcastToChannels(channelIDs []int64, event *Event, excludeUser int64) {
	if len(channelIDs) == 0 {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("ws hub: marshal error: %v", err)
		return
	}
	h.broadcast <- &broadcastMsg{
		channelIDs:  channelIDs,
		data:        data,
		excludeUser: excludeUser,
	}
}
