package store

import (
	"context"
	"errors"
	"time"

	"github.com/wolfeidau/wardcast/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Defaults for the expiry policy.
const (
	DefaultSessionTimeout = 30 * time.Minute
	DefaultSweepInterval  = 5 * time.Minute
)

// SessionStore defines the interface for session storage operations. All
// methods must be safe for concurrent use: the accept loop, every connection
// handler, and the expiry sweep call into the same store.
type SessionStore interface {
	// Create stores a new session for the principal and returns its fresh
	// opaque token. Persistent sessions are exempt from the expiry sweep.
	Create(ctx context.Context, principal models.Principal, persistent bool) (string, error)

	// Validate resolves a token to its principal. Unknown tokens return
	// ErrSessionNotFound; expired sessions are evicted and return
	// ErrSessionExpired. Callers treat both outcomes identically.
	Validate(ctx context.Context, token string) (*models.Principal, error)

	// Refresh resets the expiry clock for a non-persistent session. It is a
	// no-op for persistent sessions and for unknown tokens.
	Refresh(ctx context.Context, token string) error

	// Evict removes the session if present. Idempotent; the session-ended
	// audit event fires at most once per session.
	Evict(ctx context.Context, token string) error

	// DeleteExpired evicts every non-persistent session whose idle time
	// exceeds the timeout, returning the number removed (cleanup job).
	DeleteExpired(ctx context.Context) (int, error)

	// Count returns the number of active sessions.
	Count(ctx context.Context) (int, error)

	// List returns a point-in-time snapshot of active sessions for
	// operational monitoring.
	List(ctx context.Context) ([]models.Session, error)

	// Timeout returns the idle timeout applied to non-persistent sessions.
	Timeout() time.Duration
}
