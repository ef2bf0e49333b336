package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/wolfeidau/wardcast/internal/audit"
	"github.com/wolfeidau/wardcast/internal/models"
	"github.com/wolfeidau/wardcast/internal/store"
)

const keyPrefix = "session:"

// Config tunes the Redis-backed store.
type Config struct {
	// SessionTimeout is the idle TTL applied to non-persistent sessions.
	// Defaults to store.DefaultSessionTimeout.
	SessionTimeout time.Duration
}

// SessionStore implements store.SessionStore on Redis. Expiry is delegated to
// server-side TTLs: non-persistent sessions carry a TTL equal to the idle
// timeout, refreshed on activity; persistent sessions carry none.
type SessionStore struct {
	client *redis.Client
	cfg    Config
	sink   audit.Sink
	log    zerolog.Logger
}

// record is the stored session shape. The token is the key suffix and is not
// duplicated in the value.
type record struct {
	Principal    models.Principal `json:"principal"`
	CreatedAt    time.Time        `json:"created_at"`
	LastActivity time.Time        `json:"last_activity"`
	Persistent   bool             `json:"persistent"`
}

// NewSessionStore creates a Redis-backed session store. A nil sink discards
// audit events.
func NewSessionStore(client *redis.Client, cfg Config, sink audit.Sink, log zerolog.Logger) *SessionStore {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = store.DefaultSessionTimeout
	}
	if sink == nil {
		sink = audit.NopSink{}
	}

	return &SessionStore{
		client: client,
		cfg:    cfg,
		sink:   sink,
		log:    log.With().Str("component", "session-store-redis").Logger(),
	}
}

func key(token string) string {
	return keyPrefix + token
}

// Create stores a new session and returns its token.
func (s *SessionStore) Create(ctx context.Context, principal models.Principal, persistent bool) (string, error) {
	token := uuid.NewString()
	now := time.Now()

	data, err := json.Marshal(record{
		Principal:    principal,
		CreatedAt:    now,
		LastActivity: now,
		Persistent:   persistent,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := s.cfg.SessionTimeout
	if persistent {
		ttl = 0 // no expiry
	}

	if err := s.client.Set(ctx, key(token), data, ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	s.log.Info().
		Str("username", principal.Username).
		Str("role", string(principal.Role)).
		Bool("persistent", persistent).
		Msg("session created")

	s.sink.SessionEvent(ctx, principal.ID, audit.EventSessionCreated, "user logged in")

	return token, nil
}

// Validate resolves a token to its principal. Expired entries have already
// been dropped by Redis, so an absent key covers both outcomes.
func (s *SessionStore) Validate(ctx context.Context, token string) (*models.Principal, error) {
	val, err := s.client.Get(ctx, key(token)).Result()
	if err == redis.Nil {
		return nil, store.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var rec record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	principal := rec.Principal
	return &principal, nil
}

// Refresh resets the idle TTL for a non-persistent session.
func (s *SessionStore) Refresh(ctx context.Context, token string) error {
	val, err := s.client.Get(ctx, key(token)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	var rec record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if rec.Persistent {
		return nil
	}

	rec.LastActivity = time.Now()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return s.client.Set(ctx, key(token), data, s.cfg.SessionTimeout).Err()
}

// Evict removes the session if present.
func (s *SessionStore) Evict(ctx context.Context, token string) error {
	val, err := s.client.GetDel(ctx, key(token)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	var rec record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		// Entry is gone either way; nothing left to audit against.
		s.log.Warn().Err(err).Msg("evicted undecodable session record")
		return nil
	}

	s.log.Info().Str("username", rec.Principal.Username).Msg("session ended")
	s.sink.SessionEvent(ctx, rec.Principal.ID, audit.EventSessionEnded, "session evicted")

	return nil
}

// DeleteExpired is a no-op: Redis drops expired keys server-side.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	return 0, nil
}

// Count returns the number of active sessions.
func (s *SessionStore) Count(ctx context.Context) (int, error) {
	count := 0
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan sessions: %w", err)
	}

	return count, nil
}

// List returns a snapshot of active sessions for monitoring. Entries removed
// mid-scan are skipped.
func (s *SessionStore) List(ctx context.Context) ([]models.Session, error) {
	var sessions []models.Session

	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()

		val, err := s.client.Get(ctx, k).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}

		var rec record
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			s.log.Warn().Str("key", k).Err(err).Msg("skipping undecodable session record")
			continue
		}

		sessions = append(sessions, models.Session{
			Token:        k[len(keyPrefix):],
			Principal:    rec.Principal,
			CreatedAt:    rec.CreatedAt,
			LastActivity: rec.LastActivity,
			Persistent:   rec.Persistent,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}

	return sessions, nil
}

// Timeout returns the configured idle timeout.
func (s *SessionStore) Timeout() time.Duration {
	return s.cfg.SessionTimeout
}
