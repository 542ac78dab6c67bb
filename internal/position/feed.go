package position

import (
	"sync"
	"time"

	"ride-engagement/internal/engagement/model"
)

// Feed holds the latest GPS fix from whatever transport delivered it
// (WebSocket, message queue). Current returns nil when no fix has arrived
// yet or the last one is older than maxAge — "no check this tick" for the
// geofence monitor.
type Feed struct {
	mu     sync.RWMutex
	last   *model.Position
	maxAge time.Duration
}

func NewFeed(maxAge time.Duration) *Feed {
	return &Feed{maxAge: maxAge}
}

func (f *Feed) Update(pos model.Position) {
	if pos.Timestamp.IsZero() {
		pos.Timestamp = time.Now()
	}
	f.mu.Lock()
	f.last = &pos
	f.mu.Unlock()
}

func (f *Feed) Current() *model.Position {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.last == nil {
		return nil
	}
	if f.maxAge > 0 && time.Since(f.last.Timestamp) > f.maxAge {
		return nil
	}
	pos := *f.last
	return &pos
}
