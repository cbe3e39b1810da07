// Package engine scores request streams per identifier and decides when an
// identifier should be banned.
//
// Each event runs one read-modify-write cycle for its identifier: the event is
// appended to a sliding window, features are recomputed from the window,
// tracked features are folded into a rolling baseline to obtain deviations,
// a fixed rule table turns the snapshot into a score, and the score is
// compared to the ban threshold. Identifiers are isolated by their own lock;
// only the flagged set is shared.
package engine

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

var ErrInvalidConfig = errors.New("invalid engine config")

type Config struct {
	// Window is how long events are retained per identifier.
	Window time.Duration
	// BanThreshold is the score at or above which an identifier is flagged.
	BanThreshold float64
	// BaselineHistorySize is the number of past values kept per tracked feature.
	BaselineHistorySize int
	// AdminPaths and LoginPaths are substrings matched against request paths.
	AdminPaths []string
	LoginPaths []string
	// PriorBaseline measures deviations against the history before the
	// current value is appended. The default includes the current value.
	PriorBaseline bool
	// Clock drives eviction. Defaults to time.Now.
	Clock func() time.Time
}

func DefaultConfig() Config {
	return Config{
		Window:              60 * time.Second,
		BanThreshold:        10,
		BaselineHistorySize: 20,
		AdminPaths:          []string{"/admin", "/dashboard", "/settings/users", "/management"},
		LoginPaths:          []string{"/login", "/signin", "/auth", "/authenticate"},
	}
}

func (c Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be positive, got %s", ErrInvalidConfig, c.Window)
	}
	if c.BaselineHistorySize <= 0 {
		return fmt.Errorf("%w: baseline history size must be positive, got %d", ErrInvalidConfig, c.BaselineHistorySize)
	}
	if math.IsNaN(c.BanThreshold) || c.BanThreshold < 0 {
		return fmt.Errorf("%w: ban threshold must be non-negative, got %v", ErrInvalidConfig, c.BanThreshold)
	}
	return nil
}

// Assessment is the outcome of scoring one event.
type Assessment struct {
	Identifier string
	Score      float64
	Snapshot   Snapshot
	Rules      []string
	// Exceeded is true whenever Score reached the ban threshold.
	Exceeded bool
	// Banned is true only on the call that added the identifier to the
	// flagged set.
	Banned bool
}

// tracker is the per-identifier state. removed is set by Sweep so a caller
// holding a stale pointer knows to fetch a fresh tracker.
type tracker struct {
	mu       sync.Mutex
	history  *History
	baseline *Baseline
	last     Snapshot
	lastSeen time.Time
	removed  bool
}

type Engine struct {
	cfg       Config
	extractor Extractor
	rules     Rules
	flagged   *FlaggedSet

	mu       sync.Mutex
	trackers map[string]*tracker

	subMu       sync.RWMutex
	subscribers []func(BanEvent)
}

// New validates cfg and returns an engine using DefaultRules.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Engine{
		cfg: cfg,
		extractor: Extractor{
			AdminPaths: append([]string(nil), cfg.AdminPaths...),
			LoginPaths: append([]string(nil), cfg.LoginPaths...),
		},
		rules:    DefaultRules,
		flagged:  NewFlaggedSet(),
		trackers: make(map[string]*tracker),
	}, nil
}

// Subscribe registers fn to receive ban events. Subscribers run on the
// goroutine that recorded the banning event, after its identifier lock is
// released; slow work belongs in a goroutine of the subscriber's own.
func (e *Engine) Subscribe(fn func(BanEvent)) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subscribers = append(e.subscribers, fn)
}

// RecordEvent ingests ev for id and returns its risk score.
func (e *Engine) RecordEvent(id string, ev Event) float64 {
	return e.Assess(id, ev).Score
}

// Assess ingests ev for id and returns the full scoring outcome.
func (e *Engine) Assess(id string, ev Event) Assessment {
	var a Assessment
	for {
		t := e.trackerFor(id)
		t.mu.Lock()
		if t.removed {
			t.mu.Unlock()
			continue
		}
		a = e.score(id, t, ev)
		t.mu.Unlock()
		break
	}

	EventsTotal.Inc()
	RiskScore.Observe(a.Score)
	for _, r := range a.Rules {
		RuleHits.WithLabelValues(r).Inc()
	}

	if a.Banned {
		BansTotal.Inc()
		e.publish(BanEvent{
			Identifier: id,
			Score:      a.Score,
			Timestamp:  ev.Timestamp,
			Rules:      a.Rules,
		})
	}
	return a
}

// score runs the full cycle for one event. Caller holds t.mu.
func (e *Engine) score(id string, t *tracker, ev Event) Assessment {
	now := e.cfg.Clock()
	t.history.Record(ev, now)
	t.lastSeen = now

	snap := e.extractor.Extract(t.history.Window())
	t.baseline.Fold(&snap)
	if t.history.Len() == 0 {
		// An empty window reports no deviation either.
		snap = Snapshot{}
	}
	t.last = snap

	score, fired := e.rules.Evaluate(snap)
	exceeded := score >= e.cfg.BanThreshold
	banned := false
	if exceeded {
		banned = e.flagged.Add(id, now)
	}
	return Assessment{
		Identifier: id,
		Score:      score,
		Snapshot:   snap,
		Rules:      fired,
		Exceeded:   exceeded,
		Banned:     banned,
	}
}

// trackerFor returns the tracker for id, creating it on first use.
func (e *Engine) trackerFor(id string) *tracker {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.trackers[id]
	if !ok {
		t = &tracker{
			history:  NewHistory(e.cfg.Window),
			baseline: NewBaseline(e.cfg.BaselineHistorySize, e.cfg.PriorBaseline),
			lastSeen: e.cfg.Clock(),
		}
		e.trackers[id] = t
		TrackedIdentifiers.Inc()
	}
	return t
}

func (e *Engine) publish(ev BanEvent) {
	e.subMu.RLock()
	subs := make([]func(BanEvent), len(e.subscribers))
	copy(subs, e.subscribers)
	e.subMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// IsFlagged reports whether id has ever reached the ban threshold.
func (e *Engine) IsFlagged(id string) bool {
	return e.flagged.Contains(id)
}

// Flagged lists all flagged identifiers, sorted.
func (e *Engine) Flagged() []string {
	return e.flagged.List()
}

// FeatureSnapshot returns the snapshot computed at id's most recent event.
// Unknown identifiers yield the zero snapshot.
func (e *Engine) FeatureSnapshot(id string) Snapshot {
	e.mu.Lock()
	t, ok := e.trackers[id]
	e.mu.Unlock()
	if !ok {
		return Snapshot{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Tracked returns the number of identifiers with live state.
func (e *Engine) Tracked() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.trackers)
}

// Sweep drops the state of identifiers whose last event is older than idle
// and returns how many were dropped. The flagged set is not touched.
func (e *Engine) Sweep(idle time.Duration) int {
	cutoff := e.cfg.Clock().Add(-idle)

	e.mu.Lock()
	defer e.mu.Unlock()
	dropped := 0
	for id, t := range e.trackers {
		t.mu.Lock()
		if t.lastSeen.Before(cutoff) {
			t.removed = true
			delete(e.trackers, id)
			dropped++
		}
		t.mu.Unlock()
	}
	TrackedIdentifiers.Sub(float64(dropped))
	return dropped
}
