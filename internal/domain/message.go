package domain

import "time"

const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"
)

type Message struct {
	ID               int64      `json:"id"`
	ChannelID        int64      `json:"channel_id"`
	SenderID         int64      `json:"sender_id"`
	Content          *string    `json:"content,omitempty"`
	Type             string     `json:"type"`
	ParentID         *int64     `json:"parent_id,omitempty"`
	ThreadReplyCount int        `json:"thread_reply_count"`
	Mentions         []int64    `json:"mentions,omitempty"`
	IsEdited         bool       `json:"is_edited"`
	IsDeleted        bool       `json:"is_deleted,omitempty"`
	DeletedAt        *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type Reaction struct {
	MessageID int64     `json:"message_id"`
	UserID    int64     `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

type Mention struct {
	MessageID int64 `json:"message_id"`
	UserID    int64 `json:"user_id"`
}

// Attachment holds file metadata only; the binary lives in external storage.
type Attachment struct {
	ID        int64     `json:"id"`
	MessageID int64     `json:"message_id"`
	FileURL   string    `json:"file_url"`
	FileType  string    `json:"file_type"`
	FileSize  int64     `json:"file_size"`
	CreatedAt time.Time `json:"created_at"`
}
