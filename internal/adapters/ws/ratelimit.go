package ws

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// slidingWindow counts events over a trailing window. It answers one
// question: has this connection sent more than limit events in the last
// window? The zero value is not usable; construct with newSlidingWindow.
type slidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	clock  quartz.Clock
	times  []time.Time
}

func newSlidingWindow(limit int, window time.Duration, clock quartz.Clock) *slidingWindow {
	return &slidingWindow{
		limit:  limit,
		window: window,
		clock:  clock,
	}
}

// Allow records one event and reports whether it is within the limit.
// Events older than the window fall out of the count.
func (l *slidingWindow) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	cutoff := now.Add(-l.window)

	keep := l.times[:0]
	for _, t := range l.times {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	l.times = keep

	if len(l.times) >= l.limit {
		return false
	}

	l.times = append(l.times, now)
	return true
}
