// Package statestore holds pending authorization state between the
// connect-init call and the consent callback. Entries are keyed by an
// unguessable state token, live for a fixed TTL, and are consumed exactly
// once: this is the CSRF and replay defense for the handshake.
package statestore

import (
	"context"
	"time"

	"github.com/burnt-labs/abstraxion-backend/storage"
)

// Entry is the pending-request context bound to one state token.
type Entry struct {
	UserID             string               `json:"user_id"`
	SessionKeyAddress  string               `json:"session_key_address"`
	Permissions        *storage.Permissions `json:"permissions,omitempty"`
	GrantedRedirectURL string               `json:"granted_redirect_url,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Keys   int64 `json:"keys"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	KSize  int64 `json:"ksize"`
	VSize  int64 `json:"vsize"`
}

// Store is a short-lived, TTL-bound token cache.
type Store interface {
	// Set stores entry under token for ttl.
	Set(ctx context.Context, token string, entry Entry, ttl time.Duration) error
	// Get returns the entry for token, or nil if absent or expired.
	Get(ctx context.Context, token string) (*Entry, error)
	// Delete removes token. Deleting an absent token is a no-op.
	Delete(ctx context.Context, token string) error
	// Stats returns cache counters.
	Stats(ctx context.Context) (Stats, error)
	// Clear removes all entries.
	Clear(ctx context.Context) error
	// Close releases the store's resources. Safe to call once.
	Close() error
}
