// Package presence tracks online/away/offline status per user, aggregated
// across all of that user's simultaneous connections.
package presence

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/tessner/clack/internal/domain"
)

// Mirror publishes liveness to an external store (Redis) so other
// gateways and ops tooling can observe it. Mirror failures are logged,
// never fatal: the in-memory registry stays authoritative for this node.
type Mirror interface {
	Online(ctx context.Context, userID int64, status string) error
	Offline(ctx context.Context, userID int64) error
}

// StatusLookup is an optional Mirror capability: resolving users who hold
// their connections on another gateway, where the local registry only
// sees them as offline.
type StatusLookup interface {
	Lookup(ctx context.Context, userID int64) (status string, online bool, err error)
}

type record struct {
	status   string
	lastSeen time.Time
	conns    int
}

type Registry struct {
	mu     sync.Mutex
	users  map[int64]*record
	mirror Mirror
}

func NewRegistry(mirror Mirror) *Registry {
	return &Registry{
		users:  make(map[int64]*record),
		mirror: mirror,
	}
}

// ConnOpened registers one more connection for the user and reports
// whether this transitioned the user to online (true only for the first
// connection, so a second tab never re-emits presence).
func (r *Registry) ConnOpened(userID int64) (becameOnline bool) {
	r.mu.Lock()
	rec, ok := r.users[userID]
	if !ok {
		rec = &record{status: domain.StatusOnline}
		r.users[userID] = rec
		becameOnline = true
	}
	rec.conns++
	rec.lastSeen = time.Now()
	status := rec.status
	r.mu.Unlock()

	if r.mirror != nil {
		if err := r.mirror.Online(context.Background(), userID, status); err != nil {
			log.Printf("presence: mirror online %d: %v", userID, err)
		}
	}
	return becameOnline
}

// ConnClosed drops one connection and reports whether the user went
// offline (last connection closed). No grace period: the mirror's TTL is
// what absorbs flapping for remote observers.
func (r *Registry) ConnClosed(userID int64) (wentOffline bool) {
	r.mu.Lock()
	rec, ok := r.users[userID]
	if ok {
		rec.conns--
		rec.lastSeen = time.Now()
		if rec.conns <= 0 {
			delete(r.users, userID)
			wentOffline = true
		}
	}
	r.mu.Unlock()

	if wentOffline && r.mirror != nil {
		if err := r.mirror.Offline(context.Background(), userID); err != nil {
			log.Printf("presence: mirror offline %d: %v", userID, err)
		}
	}
	return wentOffline
}

// SetStatus applies a client-asserted overlay (away, or back to online).
// The registry stores and re-broadcasts it but never infers it. Returns
// false for unknown users, offline assertions, or no-op changes.
func (r *Registry) SetStatus(userID int64, status string) (changed bool) {
	if status != domain.StatusOnline && status != domain.StatusAway {
		return false
	}

	r.mu.Lock()
	rec, ok := r.users[userID]
	if ok && rec.status != status {
		rec.status = status
		rec.lastSeen = time.Now()
		changed = true
	}
	r.mu.Unlock()

	if changed && r.mirror != nil {
		if err := r.mirror.Online(context.Background(), userID, status); err != nil {
			log.Printf("presence: mirror status %d: %v", userID, err)
		}
	}
	return changed
}

// Touch renews the mirror TTL; called on connection heartbeats.
func (r *Registry) Touch(userID int64) {
	r.mu.Lock()
	rec, ok := r.users[userID]
	var status string
	if ok {
		rec.lastSeen = time.Now()
		status = rec.status
	}
	r.mu.Unlock()

	if ok && r.mirror != nil {
		if err := r.mirror.Online(context.Background(), userID, status); err != nil {
			log.Printf("presence: mirror touch %d: %v", userID, err)
		}
	}
}

// Get returns the user's presence; unknown users are offline.
func (r *Registry) Get(userID int64) domain.Presence {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.users[userID]
	if !ok {
		return domain.Presence{UserID: userID, Status: domain.StatusOffline}
	}
	return domain.Presence{
		UserID:      userID,
		Status:      rec.status,
		LastSeenAt:  rec.lastSeen,
		Connections: rec.conns,
	}
}

// Resolve is Snapshot plus the mirror fallback: users this node sees as
// offline are looked up in the mirror, so clients still learn about peers
// connected through another gateway. Lookup failures degrade to offline.
func (r *Registry) Resolve(ctx context.Context, userIDs []int64) []domain.Presence {
	out := r.Snapshot(userIDs)

	lookup, ok := r.mirror.(StatusLookup)
	if !ok {
		return out
	}
	for i := range out {
		if out[i].Status != domain.StatusOffline {
			continue
		}
		status, online, err := lookup.Lookup(ctx, out[i].UserID)
		if err != nil {
			log.Printf("presence: mirror lookup %d: %v", out[i].UserID, err)
			continue
		}
		if online {
			out[i].Status = status
		}
	}
	return out
}

// Snapshot resolves presence for a batch of users in one lock pass.
func (r *Registry) Snapshot(userIDs []int64) []domain.Presence {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Presence, 0, len(userIDs))
	for _, id := range userIDs {
		rec, ok := r.users[id]
		if !ok {
			out = append(out, domain.Presence{UserID: id, Status: domain.StatusOffline})
			continue
		}
		out = append(out, domain.Presence{
			UserID:      id,
			Status:      rec.status,
			LastSeenAt:  rec.lastSeen,
			Connections: rec.conns,
		})
	}
	return out
}
