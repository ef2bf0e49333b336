package models

import (
	"time"
)

// Session binds an opaque token to a principal with expiry metadata. The
// token is the only value a client ever holds; all session state lives
// server-side.
type Session struct {
	Token     string // 128-bit random value, UUID-encoded
	Principal Principal

	CreatedAt    time.Time
	LastActivity time.Time

	// Persistent sessions ("remember me") are never evicted by the expiry
	// sweep.
	Persistent bool
}

// ExpiredAfter reports whether the session has been idle longer than timeout
// as of now. Persistent sessions never expire.
func (s *Session) ExpiredAfter(timeout time.Duration, now time.Time) bool {
	if s.Persistent {
		return false
	}
	return now.Sub(s.LastActivity) > timeout
}

// RemainingTTL returns how long the session has left before the sweep may
// evict it, or -1 for persistent sessions.
func (s *Session) RemainingTTL(timeout time.Duration, now time.Time) time.Duration {
	if s.Persistent {
		return -1
	}
	remaining := timeout - now.Sub(s.LastActivity)
	if remaining < 0 {
		return 0
	}
	return remaining
}
