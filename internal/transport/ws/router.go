package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tessner/clack/internal/domain"
	"github.com/tessner/clack/internal/presence"
	"github.com/tessner/clack/internal/repository"
	"github.com/tessner/clack/internal/service"
	"github.com/tessner/clack/internal/typing"
)

const dispatchTimeout = 5 * time.Second

// Router is the gateway's inbound side: it authorizes and dispatches
// client events to the message pipeline, typing tracker, and presence
// registry, and owns the connection lifecycle hooks.
type Router struct {
	hub         *Hub
	messages    *service.MessageService
	channelRepo repository.ChannelRepository
	presence    *presence.Registry
	typing      *typing.Tracker
}

func NewRouter(
	hub *Hub,
	messages *service.MessageService,
	channelRepo repository.ChannelRepository,
	registry *presence.Registry,
	tracker *typing.Tracker,
) *Router {
	return &Router{
		hub:         hub,
		messages:    messages,
		channelRepo: channelRepo,
		presence:    registry,
		typing:      tracker,
	}
}

// Connected registers the connection and, if it is the user's first,
// announces the online transition to shared-channel members only.
func (r *Router) Connected(c *Client) {
	r.hub.Register(c)
	if r.presence.ConnOpened(c.identity.UserID) {
		r.broadcastPresence(c.identity.UserID, domain.StatusOnline)
	}
}

// Disconnected tears down everything the connection owned. Pending sends
// are abandoned, not retried; the client reconciles via the backlog API.
func (r *Router) Disconnected(c *Client) {
	r.hub.Unregister(c)
	if r.presence.ConnClosed(c.identity.UserID) {
		// Last connection gone: clear any live typing state too.
		for _, channelID := range r.typing.StopAll(c.identity.UserID) {
			r.broadcastTyping(EventUserStoppedTyping, channelID, c.identity.UserID, "")
		}
		r.broadcastPresence(c.identity.UserID, domain.StatusOffline)
	}
}

// Heartbeat renews the presence mirror TTL on each successful ping.
func (r *Router) Heartbeat(c *Client) {
	r.presence.Touch(c.identity.UserID)
}

// Dispatch routes one inbound event. Validation and authorization failures
// are answered with an error event to this connection only.
func (r *Router) Dispatch(c *Client, event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	switch event.Type {
	case EventJoinChannels:
		var p JoinChannelsPayload
		if !decode(c, event, &p) {
			return
		}
		r.joinChannels(ctx, c, p.ChannelIDs)

	case EventLeaveChannel:
		var p LeaveChannelPayload
		if !decode(c, event, &p) {
			return
		}
		c.unsubscribe(p.ChannelID)

	case EventSendMessage:
		var p SendMessagePayload
		if !decode(c, event, &p) {
			return
		}
		r.sendMessage(ctx, c, p)

	case EventEditMessage:
		var p EditMessagePayload
		if !decode(c, event, &p) {
			return
		}
		_, err := r.messages.Edit(ctx, c.identity.UserID, p.MessageID, service.EditMessageInput{Content: p.Content})
		if err != nil {
			c.sendError(errorCode(err), err.Error(), "")
		}

	case EventDeleteMessage:
		var p DeleteMessagePayload
		if !decode(c, event, &p) {
			return
		}
		if err := r.messages.Delete(ctx, c.identity.UserID, p.MessageID); err != nil {
			c.sendError(errorCode(err), err.Error(), "")
		}

	case EventAddReaction:
		var p ReactionTogglePayload
		if !decode(c, event, &p) {
			return
		}
		if err := r.messages.AddReaction(ctx, c.identity.UserID, p.MessageID, p.Emoji); err != nil {
			c.sendError(errorCode(err), err.Error(), "")
		}

	case EventRemoveReaction:
		var p ReactionTogglePayload
		if !decode(c, event, &p) {
			return
		}
		if err := r.messages.RemoveReaction(ctx, c.identity.UserID, p.MessageID, p.Emoji); err != nil {
			c.sendError(errorCode(err), err.Error(), "")
		}

	case EventTypingStart:
		var p TypingStatePayload
		if !decode(c, event, &p) {
			return
		}
		r.typingStart(ctx, c, p.ChannelID)

	case EventTypingStop:
		var p TypingStatePayload
		if !decode(c, event, &p) {
			return
		}
		if r.typing.Stop(p.ChannelID, c.identity.UserID) {
			r.broadcastTyping(EventUserStoppedTyping, p.ChannelID, c.identity.UserID, c.identity.Name)
		}

	case EventMarkRead:
		var p MarkReadPayload
		if !decode(c, event, &p) {
			return
		}
		if _, err := r.messages.MarkRead(ctx, c.identity.UserID, p.ChannelID, p.LastMessageID); err != nil {
			c.sendError(errorCode(err), err.Error(), "")
		}

	case EventSetStatus:
		var p SetStatusPayload
		if !decode(c, event, &p) {
			return
		}
		if r.presence.SetStatus(c.identity.UserID, p.Status) {
			r.broadcastPresence(c.identity.UserID, p.Status)
		}

	case EventPing:
		r.presence.Touch(c.identity.UserID)
		c.sendEvent(EventPong, nil)

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+event.Type, "")
	}
}

// joinChannels subscribes the connection to each channel it is a member
// of. Forbidden channels are reported and dropped from the set; allowed
// ones still join (no all-or-nothing).
func (r *Router) joinChannels(ctx context.Context, c *Client, channelIDs []int64) {
	for _, channelID := range channelIDs {
		member, err := r.channelRepo.GetMember(ctx, channelID, c.identity.UserID)
		if err != nil {
			c.sendError("INTERNAL", "could not verify membership", "")
			continue
		}
		if member == nil {
			c.sendError("FORBIDDEN", fmt.Sprintf("not a member of channel %d", channelID), "")
			continue
		}
		c.subscribe(channelID)
	}
}

func (r *Router) sendMessage(ctx context.Context, c *Client, p SendMessagePayload) {
	_, err := r.messages.Send(ctx, c.identity.UserID, p.ChannelID, service.SendMessageInput{
		Content:       p.Content,
		ParentID:      p.ParentID,
		Mentions:      p.Mentions,
		CorrelationID: p.CorrelationID,
	})
	if err != nil {
		// The correlation id rides back so the client can retry a
		// non-idempotent send without duplicating it.
		c.sendError(errorCode(err), err.Error(), p.CorrelationID)
		return
	}
	// An explicit send implies the typer stopped.
	if r.typing.Stop(p.ChannelID, c.identity.UserID) {
		r.broadcastTyping(EventUserStoppedTyping, p.ChannelID, c.identity.UserID, c.identity.Name)
	}
}

func (r *Router) typingStart(ctx context.Context, c *Client, channelID int64) {
	member, err := r.channelRepo.GetMember(ctx, channelID, c.identity.UserID)
	if err != nil || member == nil {
		c.sendError("FORBIDDEN", fmt.Sprintf("not a member of channel %d", channelID), "")
		return
	}
	// Broadcast only on the absent→present transition; refreshes just
	// extend the deadline.
	if r.typing.Start(channelID, c.identity.UserID) {
		evt, err := NewEvent(EventUserTyping, UserTypingPayload{
			ChannelID: channelID,
			UserID:    c.identity.UserID,
			UserName:  c.identity.Name,
		})
		if err != nil {
			return
		}
		r.hub.BroadcastToChannel(channelID, evt, c.id)
	}
}

// TypingExpired is the tracker's sweep callback: a client that vanished
// mid-type still produces a stopped-typing event.
func (r *Router) TypingExpired(channelID, userID int64) {
	r.broadcastTyping(EventUserStoppedTyping, channelID, userID, "")
}

func (r *Router) broadcastTyping(eventType string, channelID, userID int64, userName string) {
	evt, err := NewEvent(eventType, UserTypingPayload{ChannelID: channelID, UserID: userID, UserName: userName})
	if err != nil {
		return
	}
	r.hub.BroadcastToChannels([]int64{channelID}, evt, userID)
}

// broadcastPresence announces a transition to the subject's shared
// channels only, never globally.
func (r *Router) broadcastPresence(userID int64, status string) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	channelIDs, err := r.channelRepo.ListChannelIDsByUser(ctx, userID)
	if err != nil {
		log.Printf("ws router: presence scope for %d: %v", userID, err)
		return
	}
	evt, err := NewEvent(EventPresenceChanged, PresenceChangedPayload{UserID: userID, Status: status})
	if err != nil {
		return
	}
	r.hub.BroadcastToChannels(channelIDs, evt, userID)
}

func decode(c *Client, event *Event, into any) bool {
	if err := json.Unmarshal(event.Payload, into); err != nil {
		c.sendError("INVALID_PAYLOAD", "invalid "+event.Type+" payload", "")
		return false
	}
	return true
}

// errorCode maps service errors onto wire error codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrEmptyContent):
		return "VALIDATION_ERROR"
	case errors.Is(err, service.ErrNotChannelMember),
		errors.Is(err, service.ErrNotMessageOwner),
		errors.Is(err, service.ErrNotChannelAdmin):
		return "FORBIDDEN"
	case errors.Is(err, service.ErrMessageNotFound),
		errors.Is(err, service.ErrChannelNotFound):
		return "NOT_FOUND"
	default:
		return "INTERNAL"
	}
}
