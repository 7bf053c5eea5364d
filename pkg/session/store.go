package session

import (
	"context"
	"errors"
)

// Common errors for session store operations.
var (
	// ErrSessionNotFound is returned when a session doesn't exist or expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("session store is closed")
	// ErrStoreUnavailable wraps transport failures reaching the store.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Store abstracts persistence of active sessions.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save creates or updates a session, refreshing its expiry.
	Save(ctx context.Context, s *Session) error

	// Get retrieves a session by ID.
	// Returns ErrSessionNotFound if the session doesn't exist.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// Touch refreshes a session's expiry without rewriting its data.
	// Returns ErrSessionNotFound if the session doesn't exist.
	Touch(ctx context.Context, sessionID string) error

	// ActiveIDs returns the IDs of all live sessions, pruning index
	// entries whose records have already expired.
	ActiveIDs(ctx context.Context) ([]string, error)

	// Ping checks connectivity to the underlying store.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
