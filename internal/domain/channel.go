package domain

import "time"

const (
	ChannelTypePublic  = "public"
	ChannelTypePrivate = "private"
	ChannelTypeDirect  = "direct"
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type Channel struct {
	ID            int64      `json:"id"`
	OrgID         int64      `json:"org_id"`
	Name          string     `json:"name"`
	Description   *string    `json:"description,omitempty"`
	Type          string     `json:"type"`
	CreatedBy     int64      `json:"created_by"`
	IsArchived    bool       `json:"is_archived"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type ChannelMember struct {
	ChannelID     int64      `json:"channel_id"`
	UserID        int64      `json:"user_id"`
	Role          string     `json:"role"`
	LastReadAt    *time.Time `json:"last_read_at,omitempty"`
	LastReadMsgID int64      `json:"last_read_msg_id,omitempty"`
	JoinedAt      time.Time  `json:"joined_at"`
}

// ChannelSummary is a channel plus the requesting user's unread count,
// computed on demand from last_read_msg_id.
type ChannelSummary struct {
	Channel
	UnreadCount int `json:"unread_count"`
}
