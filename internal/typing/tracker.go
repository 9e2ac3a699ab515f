// Package typing tracks ephemeral per-(channel,user) typing state with
// automatic expiry, independent of any transport library.
package typing

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long a typing entry survives without a refresh.
	DefaultTTL = 3 * time.Second

	sweepEvery = time.Second
)

type key struct {
	channelID int64
	userID    int64
}

// Conf tunes the tracker; the zero value gets sane defaults. Clock is
// injectable for tests.
type Conf struct {
	TTL        time.Duration
	SweepEvery time.Duration
	Clock      func() time.Time
}

func (c *Conf) norm() {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = sweepEvery
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Tracker is an expiring map of who is typing where. Entries lapse after
// the TTL even if the client vanishes mid-type without an explicit stop;
// the sweep fires onExpire for each lapsed entry so subscribers still see
// a stopped-typing event.
type Tracker struct {
	mu       sync.Mutex
	entries  map[key]time.Time
	conf     Conf
	onExpire func(channelID, userID int64)
}

func NewTracker(conf Conf, onExpire func(channelID, userID int64)) *Tracker {
	conf.norm()
	return &Tracker{
		entries:  make(map[key]time.Time),
		conf:     conf,
		onExpire: onExpire,
	}
}

// Run sweeps expired entries until ctx is done.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.conf.SweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.sweepOnce(t.conf.Clock())
		}
	}
}

// Start inserts or refreshes the entry and reports whether this was an
// absent→present transition. Callers broadcast only on transition to
// avoid event storms from per-keystroke refreshes.
func (t *Tracker) Start(channelID, userID int64) (started bool) {
	now := t.conf.Clock()
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{channelID, userID}
	deadline, ok := t.entries[k]
	started = !ok || now.After(deadline)
	t.entries[k] = now.Add(t.conf.TTL)
	return started
}

// Stop removes the entry immediately; reports whether it existed.
func (t *Tracker) Stop(channelID, userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{channelID, userID}
	deadline, ok := t.entries[k]
	delete(t.entries, k)
	return ok && t.conf.Clock().Before(deadline)
}

// StopAll clears every entry for the user (connection teardown) and
// returns the channel ids that were live, so stopped-typing can still be
// broadcast.
func (t *Tracker) StopAll(userID int64) []int64 {
	now := t.conf.Clock()
	t.mu.Lock()
	defer t.mu.Unlock()

	var channels []int64
	for k, deadline := range t.entries {
		if k.userID != userID {
			continue
		}
		if now.Before(deadline) {
			channels = append(channels, k.channelID)
		}
		delete(t.entries, k)
	}
	return channels
}

// IsTyping lazily treats a lapsed entry as absent even before the sweep
// has run.
func (t *Tracker) IsTyping(channelID, userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	deadline, ok := t.entries[key{channelID, userID}]
	return ok && t.conf.Clock().Before(deadline)
}

// Typing lists users currently typing in the channel.
func (t *Tracker) Typing(channelID int64) []int64 {
	now := t.conf.Clock()
	t.mu.Lock()
	defer t.mu.Unlock()

	var users []int64
	for k, deadline := range t.entries {
		if k.channelID == channelID && now.Before(deadline) {
			users = append(users, k.userID)
		}
	}
	return users
}

func (t *Tracker) sweepOnce(now time.Time) {
	type expired struct{ channelID, userID int64 }

	t.mu.Lock()
	var lapsed []expired
	for k, deadline := range t.entries {
		if now.After(deadline) {
			lapsed = append(lapsed, expired{k.channelID, k.userID})
			delete(t.entries, k)
		}
	}
	t.mu.Unlock()

	// Fire callbacks outside the lock.
	if t.onExpire != nil {
		for _, e := range lapsed {
			t.onExpire(e.channelID, e.userID)
		}
	}
}
