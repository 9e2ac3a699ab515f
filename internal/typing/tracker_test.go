package typing

import (
	"sort"
	"sync"
	"testing"
	"time"
)

// fakeClock advances manually so expiry is deterministic.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTracker(onExpire func(channelID, userID int64)) (*Tracker, *fakeClock) {
	clock := newFakeClock()
	tr := NewTracker(Conf{TTL: 3 * time.Second, Clock: clock.Now}, onExpire)
	return tr, clock
}

func TestStartReportsTransitionOnly(t *testing.T) {
	tr, _ := newTestTracker(nil)

	if !tr.Start(10, 1) {
		t.Fatal("first start should report a transition")
	}
	if tr.Start(10, 1) {
		t.Fatal("refresh should not report a transition")
	}
	if !tr.Start(20, 1) {
		t.Fatal("same user in another channel is a separate entry")
	}
	if !tr.IsTyping(10, 1) || !tr.IsTyping(20, 1) {
		t.Fatal("both entries should be live")
	}
}

func TestRefreshExtendsDeadline(t *testing.T) {
	tr, clock := newTestTracker(nil)

	tr.Start(10, 1)
	clock.Advance(2 * time.Second)
	tr.Start(10, 1)
	clock.Advance(2 * time.Second)

	if !tr.IsTyping(10, 1) {
		t.Fatal("refreshed entry should survive past the original deadline")
	}
}

func TestStopRemovesEntry(t *testing.T) {
	tr, _ := newTestTracker(nil)

	tr.Start(10, 1)
	if !tr.Stop(10, 1) {
		t.Fatal("stopping a live entry should report true")
	}
	if tr.Stop(10, 1) {
		t.Fatal("stopping an absent entry should report false")
	}
	if tr.IsTyping(10, 1) {
		t.Fatal("stopped entry should be gone")
	}
}

func TestSweepFiresExpiryCallbacks(t *testing.T) {
	var mu sync.Mutex
	var fired [][2]int64
	tr, clock := newTestTracker(func(channelID, userID int64) {
		mu.Lock()
		fired = append(fired, [2]int64{channelID, userID})
		mu.Unlock()
	})

	tr.Start(10, 1)
	tr.Start(10, 2)
	clock.Advance(2 * time.Second)
	tr.Start(20, 3)

	clock.Advance(2 * time.Second)
	tr.sweepOnce(clock.Now())

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 2 {
		t.Fatalf("expected 2 expiries, got %d", len(fired))
	}
	sort.Slice(fired, func(i, j int) bool { return fired[i][1] < fired[j][1] })
	if fired[0] != [2]int64{10, 1} || fired[1] != [2]int64{10, 2} {
		t.Fatalf("unexpected expiries: %v", fired)
	}
	if !tr.IsTyping(20, 3) {
		t.Fatal("fresher entry should survive the sweep")
	}
}

func TestLapsedEntryIsAbsentBeforeSweep(t *testing.T) {
	tr, clock := newTestTracker(nil)

	tr.Start(10, 1)
	clock.Advance(4 * time.Second)

	if tr.IsTyping(10, 1) {
		t.Fatal("lapsed entry should read as not typing even before the sweep")
	}
	if !tr.Start(10, 1) {
		t.Fatal("starting over a lapsed entry is a transition again")
	}
	if tr.Stop(10, 99) {
		t.Fatal("unrelated stop should report false")
	}
}

func TestStopAllReturnsLiveChannels(t *testing.T) {
	tr, clock := newTestTracker(nil)

	tr.Start(10, 1)
	tr.Start(20, 1)
	clock.Advance(4 * time.Second)
	tr.Start(30, 2)
	tr.Start(40, 1)

	channels := tr.StopAll(1)
	if len(channels) != 1 || channels[0] != 40 {
		t.Fatalf("expected only the live channel 40, got %v", channels)
	}
	if !tr.IsTyping(30, 2) {
		t.Fatal("other users' entries must be untouched")
	}
	if tr.Start(10, 1) != true {
		t.Fatal("cleared entries should be gone entirely")
	}
}

func TestTypingListsLiveUsers(t *testing.T) {
	tr, clock := newTestTracker(nil)

	tr.Start(10, 1)
	tr.Start(10, 2)
	clock.Advance(2 * time.Second)
	tr.Start(10, 3)
	clock.Advance(2 * time.Second)

	users := tr.Typing(10)
	if len(users) != 1 || users[0] != 3 {
		t.Fatalf("expected only user 3 live, got %v", users)
	}
}
