package engine

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero window", func(c *Config) { c.Window = 0 }},
		{"negative window", func(c *Config) { c.Window = -time.Second }},
		{"zero baseline", func(c *Config) { c.BaselineHistorySize = 0 }},
		{"negative threshold", func(c *Config) { c.BanThreshold = -1 }},
		{"nan threshold", func(c *Config) { c.BanThreshold = math.NaN() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
	if _, err := New(DefaultConfig()); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
}

func TestUnknownIdentifierHasZeroSnapshot(t *testing.T) {
	e := newTestEngine(t, newFakeClock(), nil)
	if s := e.FeatureSnapshot("10.0.0.9"); s != (Snapshot{}) {
		t.Fatalf("snapshot = %+v, want zero", s)
	}
	if e.IsFlagged("10.0.0.9") {
		t.Fatal("unknown identifier flagged")
	}
}

func TestBenignFirstEventNotBanned(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, nil)
	a := e.Assess("10.0.0.1", get(clock, "/home", 200, map[string]string{"User-Agent": "Mozilla/5.0"}))
	if a.Score != 0 || a.Banned || e.IsFlagged("10.0.0.1") {
		t.Fatalf("benign first event: score=%v banned=%v", a.Score, a.Banned)
	}
}

func TestSingleEventCanBanOnItsOwnFields(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, nil)
	ev := get(clock, "/admin/login", 401, map[string]string{"Authorization": "Basic abc"})
	a := e.Assess("10.0.0.2", ev)
	// token 3 + token/login 2 + admin 1.5 + errors 1.5 + 2.5
	if !approx(a.Score, 10.5) {
		t.Fatalf("score = %v (rules %v), want 10.5", a.Score, a.Rules)
	}
	if !a.Banned || !e.IsFlagged("10.0.0.2") {
		t.Fatal("expected ban on first event")
	}
}

func TestEvictionInvariant(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, func(c *Config) { c.Window = 10 * time.Second })
	id := "10.0.0.3"

	for i := 0; i < 30; i++ {
		e.RecordEvent(id, get(clock, "/page", 200, nil))
		clock.Advance(time.Second)

		e.mu.Lock()
		tr := e.trackers[id]
		e.mu.Unlock()
		cutoff := clock.Now().Add(-time.Second).Add(-10 * time.Second)
		for _, ev := range tr.history.Window() {
			if ev.Timestamp.Before(cutoff) {
				t.Fatalf("retained event at %s older than %s", ev.Timestamp, cutoff)
			}
		}
	}
	if got := e.FeatureSnapshot(id).RequestCount; got != 11 {
		t.Fatalf("request_count = %v, want 11 (window of 10s at 1 req/s)", got)
	}
}

func TestStaleEventYieldsZeroSnapshot(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, nil)
	old := NewEvent(clock.Now().Add(-time.Hour), "GET", "/admin", "", nil, 0, 500)
	a := e.Assess("10.0.0.4", old)
	if a.Snapshot != (Snapshot{}) || a.Score != 0 {
		t.Fatalf("stale event produced snapshot %+v score %v", a.Snapshot, a.Score)
	}
}

// 30 requests to one path in 0.29s.
func TestScenarioFlood(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, nil)
	var a Assessment
	for i := 0; i < 30; i++ {
		a = e.Assess("10.0.0.1", get(clock, "/api/data", 200, map[string]string{"User-Agent": "AttackerBot/1.0"}))
		clock.Advance(10 * time.Millisecond)
	}
	if a.Snapshot.RequestRate <= 50 {
		t.Fatalf("request_rate = %v, want > 50", a.Snapshot.RequestRate)
	}
	if !hasRule(a.Rules, "rate_high") || !hasRule(a.Rules, "rate_flood") {
		t.Fatalf("rules = %v, want rate_high and rate_flood", a.Rules)
	}
	if a.Score < 6.0 {
		t.Fatalf("score = %v, want >= 6", a.Score)
	}
}

// 20 failed logins then one success.
func TestScenarioBruteForce(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, nil)
	hdr := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	for i := 0; i < 20; i++ {
		e.RecordEvent("10.0.0.50", NewEvent(clock.Now(), "POST", "/login", "", hdr, 10, 401))
		clock.Advance(100 * time.Millisecond)
	}
	a := e.Assess("10.0.0.50", NewEvent(clock.Now(), "POST", "/login", "", hdr, 50, 200))

	if a.Snapshot.FailedLoginAttempts != 20 || a.Snapshot.LoginAttempts != 21 {
		t.Fatalf("failed/login = %v/%v, want 20/21", a.Snapshot.FailedLoginAttempts, a.Snapshot.LoginAttempts)
	}
	for _, r := range []string{"login_volume", "login_failures", "login_bruteforce"} {
		if !hasRule(a.Rules, r) {
			t.Errorf("rule %s did not fire, rules = %v", r, a.Rules)
		}
	}
	if !e.IsFlagged("10.0.0.50") {
		t.Fatal("brute force source not flagged")
	}
}

func TestScenarioShortBearerToken(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, nil)
	a := e.Assess("10.0.0.7", get(clock, "/api/protected", 200, map[string]string{"Authorization": "Bearer x"}))
	if a.Snapshot.InvalidTokenAttempts != 1 {
		t.Fatalf("invalid_token_attempts = %v, want 1", a.Snapshot.InvalidTokenAttempts)
	}
	if !hasRule(a.Rules, "token_invalid") || !approx(a.Score, 3.0) {
		t.Fatalf("score = %v rules = %v, want 3.0 from token_invalid", a.Score, a.Rules)
	}
}

// 15 distinct paths, one per second.
func TestScenarioExploration(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, nil)
	var a Assessment
	for i := 0; i < 15; i++ {
		a = e.Assess("172.16.0.5", get(clock, fmt.Sprintf("/explore/path_%d", i), 200, nil))
		clock.Advance(time.Second)
	}
	if a.Snapshot.UniquePathsCount != 15 {
		t.Fatalf("unique_paths_count = %v, want 15", a.Snapshot.UniquePathsCount)
	}
	if !approx(a.Snapshot.PathEntropy, 1) {
		t.Fatalf("path_entropy = %v, want 1", a.Snapshot.PathEntropy)
	}
	if !hasRule(a.Rules, "scan_unique_paths") {
		t.Errorf("scan_unique_paths did not fire, rules = %v", a.Rules)
	}
	if !hasRule(a.Rules, "entropy_high") && !hasRule(a.Rules, "entropy_deviation") {
		t.Errorf("no entropy rule fired, rules = %v", a.Rules)
	}
	// 0.5 unique paths + 1.0 entropy + 0.5 uniform payload
	if !approx(a.Score, 2.0) {
		t.Errorf("score = %v, want 2.0 (rules %v)", a.Score, a.Rules)
	}
}

func TestDeviationZeroUntilTwoSamples(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, nil)
	a := e.Assess("10.0.0.8", get(clock, "/a", 500, nil))
	s := a.Snapshot
	if s.RequestRateDeviation != 0 || s.UniquePathsCountDeviation != 0 || s.ErrorRateDeviation != 0 ||
		s.PayloadStddevDeviation != 0 || s.PathEntropyDeviation != 0 {
		t.Fatalf("deviations after first event: %+v", s)
	}
}

func TestFlaggedSetIsMonotonic(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, func(c *Config) { c.Window = 5 * time.Second })

	var bans []BanEvent
	e.Subscribe(func(b BanEvent) { bans = append(bans, b) })

	id := "10.0.0.66"
	for i := 0; i < 3; i++ {
		e.RecordEvent(id, get(clock, "/admin/login", 401, map[string]string{"Authorization": "garbage"}))
	}
	if !e.IsFlagged(id) {
		t.Fatal("expected flag")
	}

	clock.Advance(time.Minute)
	for i := 0; i < 20; i++ {
		if a := e.Assess(id, get(clock, "/home", 200, nil)); a.Banned {
			t.Fatal("Banned reported again for a flagged identifier")
		}
		clock.Advance(2 * time.Second)
		if !e.IsFlagged(id) {
			t.Fatal("flag removed")
		}
	}

	if len(bans) != 1 {
		t.Fatalf("got %d ban events, want 1", len(bans))
	}
	if bans[0].Identifier != id || bans[0].Score < 10 || len(bans[0].Rules) == 0 {
		t.Fatalf("unexpected ban event %+v", bans[0])
	}
	if got := e.Flagged(); len(got) != 1 || got[0] != id {
		t.Fatalf("Flagged() = %v", got)
	}
}

func TestBanThresholdInclusive(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, func(c *Config) { c.BanThreshold = 3.0 })
	a := e.Assess("10.0.0.9", get(clock, "/api", 200, map[string]string{"Authorization": "Bearer x"}))
	if !approx(a.Score, 3.0) || !a.Banned {
		t.Fatalf("score %v banned %v, want ban at score == threshold", a.Score, a.Banned)
	}
}

func TestExceededReportedAfterFlag(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, func(c *Config) { c.BanThreshold = 3.0 })
	hdr := map[string]string{"Authorization": "Bearer x"}

	first := e.Assess("10.0.0.9", get(clock, "/api", 200, hdr))
	if !first.Exceeded || !first.Banned {
		t.Fatalf("first = %+v, want exceeded and banned", first)
	}
	clock.Advance(time.Second)
	again := e.Assess("10.0.0.9", get(clock, "/api", 200, hdr))
	if !again.Exceeded || again.Banned {
		t.Fatalf("again = %+v, want exceeded without a second ban", again)
	}

	quiet := e.Assess("10.0.0.10", get(clock, "/", 200, nil))
	if quiet.Exceeded {
		t.Fatalf("benign event exceeded: %+v", quiet)
	}
}

func TestTrackedGaugeSumsEngines(t *testing.T) {
	clock := newFakeClock()
	before := testutil.ToFloat64(TrackedIdentifiers)

	a := newTestEngine(t, clock, nil)
	b := newTestEngine(t, clock, nil)
	a.RecordEvent("10.1.0.1", get(clock, "/", 200, nil))
	a.RecordEvent("10.1.0.2", get(clock, "/", 200, nil))
	b.RecordEvent("10.1.0.3", get(clock, "/", 200, nil))

	if got := testutil.ToFloat64(TrackedIdentifiers) - before; got != 3 {
		t.Fatalf("gauge delta = %v, want 3", got)
	}

	clock.Advance(time.Minute)
	if n := a.Sweep(time.Second); n != 2 {
		t.Fatalf("Sweep dropped %d, want 2", n)
	}
	if got := testutil.ToFloat64(TrackedIdentifiers) - before; got != 1 {
		t.Fatalf("gauge delta after sweep = %v, want 1", got)
	}
}

func TestConcurrentIdentifiersAreIsolated(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, func(c *Config) { c.Window = time.Hour })

	const (
		ids     = 8
		workers = 4
		perWork = 50
	)
	var wg sync.WaitGroup
	for i := 0; i < ids; i++ {
		id := fmt.Sprintf("10.1.0.%d", i)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for n := 0; n < perWork; n++ {
					e.RecordEvent(id, get(clock, "/x", 200, nil))
				}
			}()
		}
	}
	wg.Wait()

	for i := 0; i < ids; i++ {
		id := fmt.Sprintf("10.1.0.%d", i)
		if got := e.FeatureSnapshot(id).RequestCount; got != workers*perWork {
			t.Errorf("%s request_count = %v, want %d", id, got, workers*perWork)
		}
	}
}

func TestSweepDropsIdleState(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, nil)

	e.RecordEvent("idle", get(clock, "/admin/login", 401, map[string]string{"Authorization": "x"}))
	clock.Advance(2 * time.Minute)
	e.RecordEvent("active", get(clock, "/", 200, nil))

	if dropped := e.Sweep(time.Minute); dropped != 1 {
		t.Fatalf("Sweep dropped %d, want 1", dropped)
	}
	if e.Tracked() != 1 {
		t.Fatalf("Tracked() = %d, want 1", e.Tracked())
	}
	if s := e.FeatureSnapshot("idle"); s != (Snapshot{}) {
		t.Fatalf("swept identifier kept snapshot %+v", s)
	}
	if !e.IsFlagged("idle") {
		t.Fatal("Sweep must not clear the flagged set")
	}

	// A swept identifier starts over with a fresh baseline.
	a := e.Assess("idle", get(clock, "/", 200, nil))
	if a.Snapshot.RequestCount != 1 {
		t.Fatalf("request_count after sweep = %v, want 1", a.Snapshot.RequestCount)
	}
}

func TestSweepRacesWithAssess(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(t, clock, func(c *Config) { c.Window = time.Hour })

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				e.Sweep(-time.Second)
			}
		}
	}()
	for i := 0; i < 200; i++ {
		e.RecordEvent("10.2.0.1", get(clock, "/x", 200, nil))
	}
	close(stop)
	wg.Wait()
}
