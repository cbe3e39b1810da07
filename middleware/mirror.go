package middleware

import (
	"strings"
	"time"

	"ipsguard/engine"
	"ipsguard/logger"
	"ipsguard/store"
)

// BanMirror copies engine ban decisions into the block list. The engine
// publishes a ban only once per identifier, so OnAssess re-issues the block
// when a flagged identifier keeps scoring over the threshold after its
// previous block expired.
type BanMirror struct {
	Store store.Storer
	TTL   time.Duration
}

func (m *BanMirror) OnBan(b engine.BanEvent) {
	m.block(b.Identifier, b.Score, b.Rules, b.Timestamp)
}

func (m *BanMirror) OnAssess(id string, a engine.Assessment, ev engine.Event) {
	if !a.Exceeded || a.Banned || m.Store.IsBlocked(id) {
		return
	}
	logger.Info("Re-blocking flagged identifier", "identifier", id, "score", a.Score, "rules", a.Rules)
	m.block(id, a.Score, a.Rules, ev.Timestamp)
}

func (m *BanMirror) block(id string, score float64, rules []string, at time.Time) {
	b := store.Block{
		Reason:   strings.Join(rules, ","),
		Score:    score,
		Source:   "engine",
		BannedAt: at,
	}
	if m.TTL > 0 {
		b.ExpiresAt = at.Add(m.TTL)
	}
	if err := m.Store.Block(id, b); err != nil {
		logger.Error("Failed to mirror ban into block list", "identifier", id, "err", err)
	}
}
