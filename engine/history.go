package engine

import "time"

// History is the time-ordered event buffer of a single identifier.
// Arrival order is treated as time order, so eviction only inspects the front.
type History struct {
	window time.Duration
	events []Event
}

func NewHistory(window time.Duration) *History {
	return &History{window: window}
}

// Record appends ev and evicts every event older than now minus the window.
// now is the caller's clock, not ev.Timestamp, so a burst with compressed
// timestamps is not evicted mid-burst.
func (h *History) Record(ev Event, now time.Time) {
	h.events = append(h.events, ev)
	h.Evict(now)
}

// Evict drops events with timestamp < now - window from the oldest end.
func (h *History) Evict(now time.Time) {
	cutoff := now.Add(-h.window)
	i := 0
	for i < len(h.events) && h.events[i].Timestamp.Before(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	n := copy(h.events, h.events[i:])
	for j := n; j < len(h.events); j++ {
		h.events[j] = Event{}
	}
	h.events = h.events[:n]
}

// Window returns a copy of the retained events, oldest first.
func (h *History) Window() []Event {
	out := make([]Event, len(h.events))
	copy(out, h.events)
	return out
}

func (h *History) Len() int {
	return len(h.events)
}
