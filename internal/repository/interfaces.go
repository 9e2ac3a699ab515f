package repository

import (
	"context"
	"time"

	"github.com/tessner/clack/internal/domain"
)

type ChannelRepository interface {
	Create(ctx context.Context, channel *domain.Channel) error
	GetByID(ctx context.Context, id int64) (*domain.Channel, error)
	Update(ctx context.Context, channel *domain.Channel) error
	Archive(ctx context.Context, id int64) error
	// GetDirect looks up the direct channel for an unordered user pair.
	GetDirect(ctx context.Context, userA, userB int64) (*domain.Channel, error)
	// CreateDirect atomically creates a direct channel, its normalized
	// pair row, and both memberships.
	CreateDirect(ctx context.Context, channel *domain.Channel, userA, userB int64) error
	ListByUser(ctx context.Context, userID int64) ([]domain.Channel, error)
	ListChannelIDsByUser(ctx context.Context, userID int64) ([]int64, error)
	AddMember(ctx context.Context, member *domain.ChannelMember) error
	RemoveMember(ctx context.Context, channelID, userID int64) error
	GetMember(ctx context.Context, channelID, userID int64) (*domain.ChannelMember, error)
	ListMembers(ctx context.Context, channelID int64) ([]domain.ChannelMember, error)
	// MarkRead advances the member's read cursor, clamped so it never
	// regresses, and returns the updated member row.
	MarkRead(ctx context.Context, channelID, userID, lastMsgID int64, at time.Time) (*domain.ChannelMember, error)
	UnreadCount(ctx context.Context, channelID, userID int64) (int, error)
}

type MessageRepository interface {
	// Create persists the message and, in the same transaction, bumps the
	// parent's thread reply count and the channel's last_message_at.
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id int64) (*domain.Message, error)
	ListByChannel(ctx context.Context, channelID int64, before, after int64, limit int) ([]domain.Message, error)
	ListThread(ctx context.Context, parentID int64, limit int) ([]domain.Message, error)
	Search(ctx context.Context, channelID int64, query string, limit int) ([]domain.Message, error)
	Update(ctx context.Context, msg *domain.Message) error
	SoftDelete(ctx context.Context, id int64, at time.Time) error
	// AddReaction reports whether a row was inserted; an existing
	// (message,user,emoji) triple is a no-op, not an error.
	AddReaction(ctx context.Context, r *domain.Reaction) (bool, error)
	RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) (bool, error)
	ListReactions(ctx context.Context, messageID int64) ([]domain.Reaction, error)
	AddAttachment(ctx context.Context, a *domain.Attachment) error
	ListAttachments(ctx context.Context, messageID int64) ([]domain.Attachment, error)
}
