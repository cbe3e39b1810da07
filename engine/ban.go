package engine

import (
	"sort"
	"sync"
	"time"
)

// BanEvent is emitted once, when an identifier first reaches the threshold.
type BanEvent struct {
	Identifier string    `json:"identifier"`
	Score      float64   `json:"score"`
	Timestamp  time.Time `json:"timestamp"`
	Rules      []string  `json:"rules"`
}

// FlaggedSet is a grow-only set of identifiers safe for concurrent use.
type FlaggedSet struct {
	mu  sync.RWMutex
	ids map[string]time.Time
}

func NewFlaggedSet() *FlaggedSet {
	return &FlaggedSet{ids: make(map[string]time.Time)}
}

// Add inserts id and reports whether it was newly added.
func (f *FlaggedSet) Add(id string, at time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ids[id]; ok {
		return false
	}
	f.ids[id] = at
	return true
}

func (f *FlaggedSet) Contains(id string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.ids[id]
	return ok
}

// List returns the flagged identifiers sorted.
func (f *FlaggedSet) List() []string {
	f.mu.RLock()
	out := make([]string, 0, len(f.ids))
	for id := range f.ids {
		out = append(out, id)
	}
	f.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (f *FlaggedSet) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}
