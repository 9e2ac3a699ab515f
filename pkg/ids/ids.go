// Package ids generates snowflake-style int64 identifiers: 41 bits of
// millisecond timestamp, 10 bits of node id, 12 bits of sequence. Ids from
// a single process are strictly increasing, which the message pipeline
// relies on for its per-channel ordering guarantee.
package ids

import (
	"sync"
	"time"
)

type generator struct {
	mu      sync.Mutex
	epochMS int64
	nodeID  int64 // 0..1023
	seq     int64 // 0..4095
	lastMS  int64
}

var (
	defaultGen *generator
	once       sync.Once
)

func initDefault() {
	once.Do(func() {
		defaultGen = &generator{
			epochMS: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
			nodeID:  1,
		}
	})
}

// Next returns a new id from the default generator.
func Next() int64 {
	initDefault()
	return defaultGen.next()
}

// SetNodeID configures the node bits (0..1023). Call once at startup before
// the first Next.
func SetNodeID(nodeID int64) {
	initDefault()
	if nodeID < 0 || nodeID > 1023 {
		nodeID = 1
	}
	defaultGen.nodeID = nodeID
}

func (g *generator) next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		now := time.Now().UnixMilli()
		if now < g.lastMS {
			// Clock went backwards; wait it out rather than risk a
			// non-monotonic id.
			time.Sleep(time.Duration(g.lastMS-now) * time.Millisecond)
			continue
		}
		if now == g.lastMS {
			g.seq = (g.seq + 1) & 0xFFF
			if g.seq == 0 {
				// Sequence exhausted for this millisecond.
				for now <= g.lastMS {
					now = time.Now().UnixMilli()
				}
			}
		} else {
			g.seq = 0
		}
		g.lastMS = now

		return ((now - g.epochMS) << 22) | (g.nodeID << 12) | g.seq
	}
}
