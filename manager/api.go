package manager

import (
	"net/http"
	"time"

	"ipsguard/engine"
	"ipsguard/geo"
	"ipsguard/logger"
	"ipsguard/store"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

// Inspector is the read side of the engine exposed to operators.
type Inspector interface {
	IsFlagged(id string) bool
	Flagged() []string
	Tracked() int
	FeatureSnapshot(id string) engine.Snapshot
}

type ManagementAPI struct {
	Store   store.Storer
	Engine  Inspector
	Geo     *geo.Locator
	limiter *rate.Limiter
	now     func() time.Time
}

type BlockRequest struct {
	IP       string `json:"ip"`
	Duration string `json:"duration"` // e.g. "1h", "permanent"
	Reason   string `json:"reason"`
}

type IdentityResponse struct {
	Identifier string          `json:"identifier"`
	Flagged    bool            `json:"flagged"`
	Blocked    bool            `json:"blocked"`
	Block      *store.Block    `json:"block,omitempty"`
	Country    string          `json:"country,omitempty"`
	Features   engine.Snapshot `json:"features"`
}

func NewManagementAPI(s store.Storer, eng Inspector, locator *geo.Locator) *ManagementAPI {
	return &ManagementAPI{
		Store:   s,
		Engine:  eng,
		Geo:     locator,
		limiter: rate.NewLimiter(rate.Limit(20), 40),
		now:     time.Now,
	}
}

func (api *ManagementAPI) ServeHTTP(mux *http.ServeMux) {
	mux.Handle("/api/status", api.limit(api.handleStatus))
	mux.Handle("/api/block", api.limit(api.handleBlock))
	mux.Handle("/api/identity", api.limit(api.handleIdentity))
}

func (api *ManagementAPI) limit(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !api.limiter.Allow() {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		h(w, r)
	})
}

func (api *ManagementAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Use GET", http.StatusMethodNotAllowed)
		return
	}
	blocks, err := api.Store.ListBlocks()
	if err != nil {
		logger.Error("Failed to list blocks", "err", err)
		http.Error(w, "Failed to list blocks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "active",
		"active_blocks": blocks,
		"flagged":       api.Engine.Flagged(),
		"tracked":       api.Engine.Tracked(),
		"timestamp":     api.now(),
	})
}

func (api *ManagementAPI) handleBlock(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req BlockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IP == "" {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		now := api.now()
		b := store.Block{Reason: req.Reason, Source: "manual", BannedAt: now}
		if b.Reason == "" {
			b.Reason = "manual"
		}
		switch req.Duration {
		case "permanent":
		case "":
			b.ExpiresAt = now.Add(24 * time.Hour)
		default:
			d, err := time.ParseDuration(req.Duration)
			if err != nil || d <= 0 {
				http.Error(w, "Invalid duration", http.StatusBadRequest)
				return
			}
			b.ExpiresAt = now.Add(d)
		}

		if err := api.Store.Block(req.IP, b); err != nil {
			logger.Error("Manual block failed", "ip", req.IP, "err", err)
			http.Error(w, "Block failed", http.StatusInternalServerError)
			return
		}
		logger.Info("Manual block issued", "ip", req.IP, "duration", req.Duration)
		writeJSON(w, http.StatusCreated, b)
		return
	}

	if r.Method == http.MethodDelete {
		ip := r.URL.Query().Get("ip")
		if ip == "" {
			http.Error(w, "IP required", http.StatusBadRequest)
			return
		}
		if err := api.Store.Unblock(ip); err != nil {
			http.Error(w, "Clear failed", http.StatusInternalServerError)
			return
		}
		logger.Info("Manual block clearance", "ip", ip)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// handleIdentity reports what the engine and the block list know about one
// identifier. Clearing a block does not clear the engine flag.
func (api *ManagementAPI) handleIdentity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Use GET", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}

	resp := IdentityResponse{
		Identifier: id,
		Flagged:    api.Engine.IsFlagged(id),
		Country:    api.Geo.Country(id),
		Features:   api.Engine.FeatureSnapshot(id),
	}
	if b, ok := api.Store.Lookup(id); ok {
		resp.Blocked = true
		resp.Block = &b
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
