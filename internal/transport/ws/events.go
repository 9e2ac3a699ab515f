package ws

import (
	"encoding/json"
	"time"

	"github.com/tessner/clack/internal/domain"
)

// Event types - Client → Server
const (
	EventJoinChannels   = "join-channels"
	EventLeaveChannel   = "leave-channel"
	EventSendMessage    = "send-message"
	EventEditMessage    = "edit-message"
	EventDeleteMessage  = "delete-message"
	EventAddReaction    = "add-reaction"
	EventRemoveReaction = "remove-reaction"
	EventTypingStart    = "typing-start"
	EventTypingStop     = "typing-stop"
	EventMarkRead       = "mark-read"
	EventSetStatus      = "set-status"
	EventPing           = "ping"
)

// Event types - Server → Client
const (
	EventNewMessage        = "new-message"
	EventMessageEdited     = "message-edited"
	EventMessageDeleted    = "message-deleted"
	EventReactionAdded     = "reaction-added"
	EventReactionRemoved   = "reaction-removed"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventPresenceChanged   = "presence-changed"
	EventMarkedRead        = "messages-marked-read"
	EventError             = "error"
	EventPong              = "pong"
)

// Event is the envelope for every frame in both directions.
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

// --- Client → Server payloads ---

type JoinChannelsPayload struct {
	ChannelIDs []int64 `json:"channel_ids"`
}

type LeaveChannelPayload struct {
	ChannelID int64 `json:"channel_id"`
}

type SendMessagePayload struct {
	ChannelID     int64   `json:"channel_id"`
	Content       string  `json:"content"`
	ParentID      *int64  `json:"parent_id,omitempty"`
	Mentions      []int64 `json:"mentions,omitempty"`
	CorrelationID string  `json:"correlation_id,omitempty"`
}

type EditMessagePayload struct {
	MessageID int64  `json:"message_id"`
	Content   string `json:"content"`
}

type DeleteMessagePayload struct {
	MessageID int64 `json:"message_id"`
}

type ReactionTogglePayload struct {
	MessageID int64  `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type TypingStatePayload struct {
	ChannelID int64 `json:"channel_id"`
}

type MarkReadPayload struct {
	ChannelID     int64 `json:"channel_id"`
	LastMessageID int64 `json:"last_message_id,omitempty"`
}

type SetStatusPayload struct {
	Status string `json:"status"`
}

// --- Server → Client payloads ---

type NewMessagePayload struct {
	Message       domain.Message `json:"message"`
	ChannelID     int64          `json:"channel_id"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

// MessageEditedPayload carries only the changed fields, not the whole
// message object.
type MessageEditedPayload struct {
	MessageID int64     `json:"message_id"`
	ChannelID int64     `json:"channel_id"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MessageDeletedPayload struct {
	MessageID int64 `json:"message_id"`
	ChannelID int64 `json:"channel_id"`
}

type ReactionEventPayload struct {
	MessageID int64  `json:"message_id"`
	ChannelID int64  `json:"channel_id"`
	UserID    int64  `json:"user_id"`
	Emoji     string `json:"emoji"`
}

type UserTypingPayload struct {
	ChannelID int64  `json:"channel_id"`
	UserID    int64  `json:"user_id"`
	UserName  string `json:"user_name,omitempty"`
}

type PresenceChangedPayload struct {
	UserID int64  `json:"user_id"`
	Status string `json:"status"`
}

type MarkedReadPayload struct {
	ChannelID  int64     `json:"channel_id"`
	UserID     int64     `json:"user_id"`
	LastReadAt time.Time `json:"last_read_at"`
}

type ErrorPayload struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// NewEvent wraps a payload in the envelope with the current timestamp.
func NewEvent(eventType string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		Payload:   data,
		Timestamp: time.Now().Unix(),
	}, nil
}
