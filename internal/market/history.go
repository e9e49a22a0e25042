package market

import (
	"sync"
	"time"
)

// History is a bounded, lock-guarded snapshot ring. The breaker appends one
// entry per poll and scans the recovery window during CheckRecovery; once the
// capacity is reached the oldest entry is evicted.
type History struct {
	mu  sync.RWMutex
	buf []Snapshot
	cap int
}

const defaultHistoryCap = 1000

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = defaultHistoryCap
	}
	return &History{
		buf: make([]Snapshot, 0, capacity),
		cap: capacity,
	}
}

func (h *History) Append(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buf) >= h.cap {
		copy(h.buf, h.buf[1:])
		h.buf = h.buf[:len(h.buf)-1]
	}
	h.buf = append(h.buf, snap)
}

// Latest returns the most recent snapshot, if any.
func (h *History) Latest() (Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.buf) == 0 {
		return Snapshot{}, false
	}
	return h.buf[len(h.buf)-1], true
}

// Since returns a copy of all snapshots taken at or after t, oldest first.
func (h *History) Since(t time.Time) []Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []Snapshot
	for _, s := range h.buf {
		if !s.Timestamp.Before(t) {
			out = append(out, s)
		}
	}
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.buf)
}
