package domain

import "time"

// Identity is the already-validated user claim the upstream auth service
// attaches to every connection. The core never issues or verifies
// credentials beyond checking the claim's signature.
type Identity struct {
	UserID    int64   `json:"user_id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusOffline = "offline"
)

// Presence is a user's status aggregated across all of their simultaneous
// connections. Ephemeral; never persisted durably.
type Presence struct {
	UserID      int64     `json:"user_id"`
	Status      string    `json:"status"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	Connections int       `json:"-"`
}
