package store

import "time"

// Block is an enforcement entry mirrored from a ban decision or issued
// manually through the management API.
type Block struct {
	Reason    string    `json:"reason"`
	Score     float64   `json:"score"`
	Source    string    `json:"source"` // "engine" or "manual"
	BannedAt  time.Time `json:"banned_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the block has a deadline that is past at now.
func (b Block) Expired(now time.Time) bool {
	return !b.ExpiresAt.IsZero() && now.After(b.ExpiresAt)
}

// Storer is the common interface for all block list backends (Redis, In-Memory)
type Storer interface {
	Block(key string, b Block) error
	Lookup(key string) (Block, bool)
	IsBlocked(key string) bool
	Unblock(key string) error
	ListBlocks() (map[string]Block, error)
}
