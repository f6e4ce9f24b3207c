// Package sessionstore persists the broker session AuthService produces,
// pluggable between a single-file JSON document and a database table.
package sessionstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Load when no session is currently persisted.
// Both backends must treat a missing store as "no session", never an error
// the caller needs to distinguish from malformed content.
var ErrNotFound = errors.New("sessionstore: no session found")

// Record is the persisted session entity. Only one record with
// Active=true exists per logical owner at a time; Save must atomically
// deactivate any prior active record for the same Owner.
type Record struct {
	Owner                    string
	Token                    string
	Hash                     string
	CreatedAt                time.Time
	ExpiresAt                time.Time
	LastRefreshAt            time.Time
	WebsocketConnected       bool
	WebsocketLastConnectedAt time.Time
	Active                   bool
	TerminationReason        string
}

// Store is the pluggable persistence contract both the file and database
// backends implement.
type Store interface {
	// Save persists record as the active session for its Owner, atomically
	// deactivating any previously active record for the same owner.
	Save(ctx context.Context, record Record) error

	// Load returns the active session for owner, or ErrNotFound if none
	// exists or the stored content is malformed (malformed content is
	// logged by the implementation and treated as missing, never returned
	// as an error the caller must branch on).
	Load(ctx context.Context, owner string) (Record, error)

	// Deactivate marks the active session for owner inactive with reason,
	// without deleting it (used by clear() and by shutdown).
	Deactivate(ctx context.Context, owner string, reason string) error

	// Close releases any resources (DB pool, cron scheduler) held by the
	// store.
	Close() error
}
