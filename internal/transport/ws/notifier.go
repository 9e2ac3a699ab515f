package ws

import (
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/tessner/clack/internal/domain"
)

// HubNotifier implements service.Notifier over the WebSocket Hub.
type HubNotifier struct {
	hub *Hub
}

func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) NewMessage(msg *domain.Message, correlationID string) {
	evt, err := NewEvent(EventNewMessage, NewMessagePayload{
		Message:       *msg,
		ChannelID:     msg.ChannelID,
		CorrelationID: correlationID,
	})
	if err != nil {
		log.Printf("ws notifier: marshal error: %v", err)
		return
	}
	n.hub.BroadcastToChannel(msg.ChannelID, evt, uuid.Nil)
}

func (n *HubNotifier) MessageEdited(channelID, messageID int64, content string, updatedAt time.Time) {
	evt, err := NewEvent(EventMessageEdited, MessageEditedPayload{
		MessageID: messageID,
		ChannelID: channelID,
		Content:   content,
		UpdatedAt: updatedAt,
	})
	if err != nil {
		log.Printf("ws notifier: marshal error: %v", err)
		return
	}
	n.hub.BroadcastToChannel(channelID, evt, uuid.Nil)
}

func (n *HubNotifier) MessageDeleted(channelID, messageID int64) {
	evt, err := NewEvent(EventMessageDeleted, MessageDeletedPayload{MessageID: messageID, ChannelID: channelID})
	if err != nil {
		log.Printf("ws notifier: marshal error: %v", err)
		return
	}
	n.hub.BroadcastToChannel(channelID, evt, uuid.Nil)
}

func (n *HubNotifier) ReactionAdded(channelID int64, reaction *domain.Reaction) {
	n.reactionEvent(EventReactionAdded, channelID, reaction)
}

func (n *HubNotifier) ReactionRemoved(channelID int64, reaction *domain.Reaction) {
	n.reactionEvent(EventReactionRemoved, channelID, reaction)
}

func (n *HubNotifier) reactionEvent(eventType string, channelID int64, reaction *domain.Reaction) {
	evt, err := NewEvent(eventType, ReactionEventPayload{
		MessageID: reaction.MessageID,
		ChannelID: channelID,
		UserID:    reaction.UserID,
		Emoji:     reaction.Emoji,
	})
	if err != nil {
		log.Printf("ws notifier: marshal error: %v", err)
		return
	}
	n.hub.BroadcastToChannel(channelID, evt, uuid.Nil)
}

// MarkedRead goes to the other members for their read-receipt UI; the
// reader already knows.
func (n *HubNotifier) MarkedRead(channelID, userID int64, lastReadAt time.Time) {
	evt, err := NewEvent(EventMarkedRead, MarkedReadPayload{
		ChannelID:  channelID,
		UserID:     userID,
		LastReadAt: lastReadAt,
	})
	if err != nil {
		log.Printf("ws notifier: marshal error: %v", err)
		return
	}
	n.hub.BroadcastToChannels([]int64{channelID}, evt, userID)
}
