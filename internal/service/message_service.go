package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tessner/clack/internal/domain"
	"github.com/tessner/clack/internal/repository"
	"github.com/tessner/clack/pkg/ids"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNotMessageOwner = errors.New("only the message sender can perform this action")
	ErrEmptyContent    = errors.New("message content is empty")
)

// reactionRetries bounds internal retries for the idempotent reaction
// toggles on transient persistence failure. Non-idempotent sends are never
// retried here; the caller holds the correlation id and decides.
const reactionRetries = 3

// Notifier broadcasts real-time events to connected clients. The pipeline
// only calls it after the durable write has committed.
type Notifier interface {
	// NewMessage carries the sender's correlation id so the sender can
	// match the broadcast to its pending send.
	NewMessage(msg *domain.Message, correlationID string)
	MessageEdited(channelID, messageID int64, content string, updatedAt time.Time)
	MessageDeleted(channelID, messageID int64)
	ReactionAdded(channelID int64, reaction *domain.Reaction)
	ReactionRemoved(channelID int64, reaction *domain.Reaction)
	MarkedRead(channelID, userID int64, lastReadAt time.Time)
}

type MessageService struct {
	messageRepo repository.MessageRepository
	channelRepo repository.ChannelRepository
	notifier    Notifier
	locks       channelLocks
}

func NewMessageService(messageRepo repository.MessageRepository, channelRepo repository.ChannelRepository) *MessageService {
	return &MessageService{
		messageRepo: messageRepo,
		channelRepo: channelRepo,
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *MessageService) SetNotifier(n Notifier) {
	s.notifier = n
}

type SendMessageInput struct {
	Content       string  `json:"content"`
	Type          string  `json:"type"`
	ParentID      *int64  `json:"parent_id,omitempty"`
	Mentions      []int64 `json:"mentions,omitempty"`
	CorrelationID string  `json:"correlation_id,omitempty"`
}

type EditMessageInput struct {
	Content string `json:"content"`
}

type MessageListResponse struct {
	Messages []domain.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// Send validates, persists, and broadcasts a new message. The id is
// assigned and the write committed under the channel's lock, so ids reach
// subscribers in commit order; sends to other channels are unaffected.
func (s *MessageService) Send(ctx context.Context, senderID, channelID int64, input SendMessageInput) (*domain.Message, error) {
	member, err := s.channelRepo.GetMember(ctx, channelID, senderID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrNotChannelMember
	}

	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	msgType := input.Type
	if msgType == "" {
		msgType = domain.MessageTypeText
	}

	if input.ParentID != nil {
		parent, err := s.messageRepo.GetByID(ctx, *input.ParentID)
		if err != nil {
			return nil, err
		}
		if parent == nil || parent.ChannelID != channelID {
			return nil, ErrMessageNotFound
		}
	}

	unlock := s.locks.lock(channelID)
	defer unlock()

	now := time.Now()
	msg := &domain.Message{
		ID:        ids.Next(),
		ChannelID: channelID,
		SenderID:  senderID,
		Content:   &content,
		Type:      msgType,
		ParentID:  input.ParentID,
		Mentions:  dedupe(input.Mentions),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("persisting message: %w", err)
	}

	// Broadcast while still holding the lock so fan-out enqueues in
	// commit order.
	if s.notifier != nil {
		s.notifier.NewMessage(msg, input.CorrelationID)
	}

	return msg, nil
}

func (s *MessageService) Edit(ctx context.Context, userID, messageID int64, input EditMessageInput) (*domain.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil || msg.IsDeleted {
		return nil, ErrMessageNotFound
	}
	if msg.SenderID != userID {
		return nil, ErrNotMessageOwner
	}

	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	msg.Content = &content
	msg.IsEdited = true
	msg.UpdatedAt = time.Now()
	if err := s.messageRepo.Update(ctx, msg); err != nil {
		return nil, fmt.Errorf("updating message: %w", err)
	}

	if s.notifier != nil {
		s.notifier.MessageEdited(msg.ChannelID, msg.ID, content, msg.UpdatedAt)
	}

	return msg, nil
}

// Delete soft-deletes: the row stays so the id remains a valid thread
// anchor. Channel owners and admins may delete others' messages.
func (s *MessageService) Delete(ctx context.Context, userID, messageID int64) error {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil || msg.IsDeleted {
		return ErrMessageNotFound
	}

	if msg.SenderID != userID {
		member, err := s.channelRepo.GetMember(ctx, msg.ChannelID, userID)
		if err != nil {
			return err
		}
		if member == nil || (member.Role != domain.RoleOwner && member.Role != domain.RoleAdmin) {
			return ErrNotMessageOwner
		}
	}

	if err := s.messageRepo.SoftDelete(ctx, messageID, time.Now()); err != nil {
		return err
	}

	if s.notifier != nil {
		s.notifier.MessageDeleted(msg.ChannelID, messageID)
	}

	return nil
}

// AddReaction is an idempotent toggle: reacting twice with the same triple
// is a no-op and does not re-broadcast.
func (s *MessageService) AddReaction(ctx context.Context, userID, messageID int64, emoji string) error {
	msg, err := s.memberOfMessage(ctx, userID, messageID)
	if err != nil {
		return err
	}

	reaction := &domain.Reaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: time.Now(),
	}

	var added bool
	for attempt := 0; attempt < reactionRetries; attempt++ {
		added, err = s.messageRepo.AddReaction(ctx, reaction)
		if err == nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("adding reaction: %w", err)
	}

	if added && s.notifier != nil {
		s.notifier.ReactionAdded(msg.ChannelID, reaction)
	}
	return nil
}

func (s *MessageService) RemoveReaction(ctx context.Context, userID, messageID int64, emoji string) error {
	msg, err := s.memberOfMessage(ctx, userID, messageID)
	if err != nil {
		return err
	}

	var removed bool
	for attempt := 0; attempt < reactionRetries; attempt++ {
		removed, err = s.messageRepo.RemoveReaction(ctx, messageID, userID, emoji)
		if err == nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("removing reaction: %w", err)
	}

	if removed && s.notifier != nil {
		s.notifier.ReactionRemoved(msg.ChannelID, &domain.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji})
	}
	return nil
}

// MarkRead advances the reader's cursor and tells the other members for
// their read-receipt UI.
func (s *MessageService) MarkRead(ctx context.Context, userID, channelID, lastMessageID int64) (*domain.ChannelMember, error) {
	cm, err := s.channelRepo.MarkRead(ctx, channelID, userID, lastMessageID, time.Now())
	if err != nil {
		return nil, err
	}
	if cm == nil {
		return nil, ErrNotChannelMember
	}

	if s.notifier != nil && cm.LastReadAt != nil {
		s.notifier.MarkedRead(channelID, userID, *cm.LastReadAt)
	}
	return cm, nil
}

// List is the backlog/history query: `before` pages into history, `after`
// is reconnect catch-up. Results are ordered by id ascending either way.
func (s *MessageService) List(ctx context.Context, userID, channelID int64, before, after int64, limit int) (*MessageListResponse, error) {
	member, err := s.channelRepo.GetMember(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrNotChannelMember
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	// Fetch one extra row to learn whether more remain.
	messages, err := s.messageRepo.ListByChannel(ctx, channelID, before, after, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(messages) > limit
	if hasMore {
		if after > 0 {
			messages = messages[:limit]
		} else {
			messages = messages[len(messages)-limit:]
		}
	}

	if messages == nil {
		messages = []domain.Message{}
	}

	return &MessageListResponse{Messages: messages, HasMore: hasMore}, nil
}

func (s *MessageService) ListThread(ctx context.Context, userID, parentID int64, limit int) ([]domain.Message, error) {
	parent, err := s.messageRepo.GetByID(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, ErrMessageNotFound
	}

	member, err := s.channelRepo.GetMember(ctx, parent.ChannelID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrNotChannelMember
	}

	if limit <= 0 || limit > 200 {
		limit = 100
	}
	return s.messageRepo.ListThread(ctx, parentID, limit)
}

func (s *MessageService) Search(ctx context.Context, userID, channelID int64, query string, limit int) ([]domain.Message, error) {
	member, err := s.channelRepo.GetMember(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrNotChannelMember
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Message{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.messageRepo.Search(ctx, channelID, query, limit)
}

func (s *MessageService) ListReactions(ctx context.Context, userID, messageID int64) ([]domain.Reaction, error) {
	if _, err := s.memberOfMessage(ctx, userID, messageID); err != nil {
		return nil, err
	}
	return s.messageRepo.ListReactions(ctx, messageID)
}

// RegisterAttachment records file metadata against a message the user
// sent; the binary itself lives in external storage.
func (s *MessageService) RegisterAttachment(ctx context.Context, userID, messageID int64, fileURL, fileType string, fileSize int64) (*domain.Attachment, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil || msg.IsDeleted {
		return nil, ErrMessageNotFound
	}
	if msg.SenderID != userID {
		return nil, ErrNotMessageOwner
	}

	a := &domain.Attachment{
		ID:        ids.Next(),
		MessageID: messageID,
		FileURL:   fileURL,
		FileType:  fileType,
		FileSize:  fileSize,
		CreatedAt: time.Now(),
	}
	if err := s.messageRepo.AddAttachment(ctx, a); err != nil {
		return nil, fmt.Errorf("registering attachment: %w", err)
	}
	return a, nil
}

// memberOfMessage resolves the message and checks the user belongs to its
// channel. Deleted messages are not found: no reacting to a tombstone.
func (s *MessageService) memberOfMessage(ctx context.Context, userID, messageID int64) (*domain.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil || msg.IsDeleted {
		return nil, ErrMessageNotFound
	}

	member, err := s.channelRepo.GetMember(ctx, msg.ChannelID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrNotChannelMember
	}
	return msg, nil
}

func dedupe(userIDs []int64) []int64 {
	if len(userIDs) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(userIDs))
	out := make([]int64, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
