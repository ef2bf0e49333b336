package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wolfeidau/wardcast/internal/audit"
	"github.com/wolfeidau/wardcast/internal/models"
	"github.com/wolfeidau/wardcast/internal/store"
)

// Config tunes the expiry policy of the in-memory store.
type Config struct {
	// SessionTimeout is the idle time after which a non-persistent session
	// expires. Defaults to store.DefaultSessionTimeout.
	SessionTimeout time.Duration

	// SweepInterval is the period of the background cleanup pass. Defaults
	// to store.DefaultSweepInterval.
	SweepInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = store.DefaultSessionTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = store.DefaultSweepInterval
	}
}

// SessionStore implements store.SessionStore using in-memory storage. Session
// state is process-local and lost on restart; a dropped connection does not
// remove its session, only inactivity or an explicit eviction does.
type SessionStore struct {
	mu sync.RWMutex

	sessions map[string]*models.Session // token -> Session

	cfg   Config
	sink  audit.Sink
	log   zerolog.Logger
	clock func() time.Time
}

// NewSessionStore creates a new in-memory session store. A nil sink discards
// audit events.
func NewSessionStore(cfg Config, sink audit.Sink, log zerolog.Logger) *SessionStore {
	cfg.applyDefaults()
	if sink == nil {
		sink = audit.NopSink{}
	}

	return &SessionStore{
		sessions: make(map[string]*models.Session),
		cfg:      cfg,
		sink:     sink,
		log:      log.With().Str("component", "session-store").Logger(),
		clock:    time.Now,
	}
}

// Create stores a new session and returns its token.
func (s *SessionStore) Create(ctx context.Context, principal models.Principal, persistent bool) (string, error) {
	token := uuid.NewString()
	now := s.clock()

	s.mu.Lock()
	s.sessions[token] = &models.Session{
		Token:        token,
		Principal:    principal,
		CreatedAt:    now,
		LastActivity: now,
		Persistent:   persistent,
	}
	s.mu.Unlock()

	s.log.Info().
		Str("username", principal.Username).
		Str("role", string(principal.Role)).
		Bool("persistent", persistent).
		Msg("session created")

	s.sink.SessionEvent(ctx, principal.ID, audit.EventSessionCreated, "user logged in")

	return token, nil
}

// Validate resolves a token to its principal, evicting it first if expired.
func (s *SessionStore) Validate(ctx context.Context, token string) (*models.Principal, error) {
	s.mu.RLock()
	session, exists := s.sessions[token]
	var clone models.Session
	if exists {
		clone = *session
	}
	s.mu.RUnlock()

	if !exists {
		return nil, store.ErrSessionNotFound
	}

	if clone.ExpiredAfter(s.cfg.SessionTimeout, s.clock()) {
		// A Refresh may land between the read above and the eviction; the
		// re-check under the write lock spares a freshly-refreshed session.
		if s.evictIfExpired(ctx, token) {
			return nil, store.ErrSessionExpired
		}
	}

	principal := clone.Principal
	return &principal, nil
}

// evictIfExpired removes the session only if it is still expired at the time
// the write lock is held. It reports whether the token is gone.
func (s *SessionStore) evictIfExpired(ctx context.Context, token string) bool {
	s.mu.Lock()
	session, exists := s.sessions[token]
	if exists && !session.ExpiredAfter(s.cfg.SessionTimeout, s.clock()) {
		s.mu.Unlock()
		return false
	}
	if exists {
		delete(s.sessions, token)
	}
	s.mu.Unlock()

	if !exists {
		return true
	}

	s.log.Info().Str("username", session.Principal.Username).Msg("session expired")
	s.sink.SessionEvent(ctx, session.Principal.ID, audit.EventSessionEnded, "session expired")

	return true
}

// Refresh resets the expiry clock for a non-persistent session.
func (s *SessionStore) Refresh(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[token]
	if !exists || session.Persistent {
		return nil
	}

	session.LastActivity = s.clock()
	return nil
}

// Evict removes the session if present. Safe to call repeatedly; the audit
// event fires only on the call that actually removes the entry.
func (s *SessionStore) Evict(ctx context.Context, token string) error {
	s.mu.Lock()
	session, exists := s.sessions[token]
	if exists {
		delete(s.sessions, token)
	}
	s.mu.Unlock()

	if !exists {
		return nil
	}

	s.log.Info().Str("username", session.Principal.Username).Msg("session ended")
	s.sink.SessionEvent(ctx, session.Principal.ID, audit.EventSessionEnded, "session evicted")

	return nil
}

// DeleteExpired evicts all expired non-persistent sessions (cleanup job).
func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	now := s.clock()

	s.mu.Lock()
	var evicted []*models.Session
	for token, session := range s.sessions {
		if session.ExpiredAfter(s.cfg.SessionTimeout, now) {
			evicted = append(evicted, session)
			delete(s.sessions, token)
		}
	}
	s.mu.Unlock()

	for _, session := range evicted {
		s.log.Info().Str("username", session.Principal.Username).Msg("cleaning up expired session")
		s.sink.SessionEvent(ctx, session.Principal.ID, audit.EventSessionEnded, "session expired")
	}

	return len(evicted), nil
}

// Count returns the number of active sessions.
func (s *SessionStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions), nil
}

// List returns a snapshot of active sessions for monitoring.
func (s *SessionStore) List(ctx context.Context) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]models.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, *session)
	}

	return sessions, nil
}

// Timeout returns the configured idle timeout.
func (s *SessionStore) Timeout() time.Duration {
	return s.cfg.SessionTimeout
}

// StartSweeper runs the periodic cleanup pass until ctx is cancelled. It only
// evicts stale entries; in-flight operations are never interrupted.
func (s *SessionStore) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Msg("session sweeper stopped")
			return
		case <-ticker.C:
			removed, err := s.DeleteExpired(ctx)
			if err != nil {
				s.log.Warn().Err(err).Msg("session sweep failed")
				continue
			}
			if removed > 0 {
				s.log.Info().Int("removed", removed).Msg("session sweep completed")
			}
		}
	}
}

// backdate rewinds a session's activity clock. Test hook.
func (s *SessionStore) backdate(token string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, exists := s.sessions[token]; exists {
		session.LastActivity = session.LastActivity.Add(-d)
	}
}
