package middleware

import (
	"net/http"
	"time"

	"ipsguard/logger"
	"ipsguard/store"

	json "github.com/goccy/go-json"
)

type blockedResponse struct {
	Blocked   bool       `json:"blocked"`
	Reason    string     `json:"reason"`
	Score     float64    `json:"score"`
	BannedAt  time.Time  `json:"banned_at"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// Enforce rejects clients present in the block list with 403 before any
// upstream work is done.
func Enforce(s store.Storer, trustForwarded bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r, trustForwarded)
		b, ok := s.Lookup(ip)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		reason := b.Reason
		if reason == "" {
			reason = "blocked"
		}
		source := b.Source
		if source == "" {
			source = "unknown"
		}
		BlockedRequests.WithLabelValues(source).Inc()
		logger.Debug("Blocked request rejected", "remote_addr", ip, "path", r.URL.Path, "reason", reason)

		resp := blockedResponse{
			Blocked:  true,
			Reason:   reason,
			Score:    b.Score,
			BannedAt: b.BannedAt,
		}
		if !b.ExpiresAt.IsZero() {
			exp := b.ExpiresAt
			resp.ExpiresAt = &exp
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(resp)
	})
}
