package service

import "sync"

// channelLocks serializes message commits per channel: one committer per
// channelId at a time, channels fully parallel with each other.
type channelLocks struct {
	locks sync.Map // int64 -> *sync.Mutex
}

func (l *channelLocks) lock(channelID int64) (unlock func()) {
	v, _ := l.locks.LoadOrStore(channelID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
