package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/wardcast/internal/audit"
	"github.com/wolfeidau/wardcast/internal/models"
	"github.com/wolfeidau/wardcast/internal/store"
)

type recordedEvent struct {
	PrincipalID string
	Kind        string
}

// recordingSink captures audit events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (s *recordingSink) SessionEvent(ctx context.Context, principalID, kind, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedEvent{PrincipalID: principalID, Kind: kind})
}

func (s *recordingSink) recorded() []recordedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedEvent(nil), s.events...)
}

func testPrincipal() models.Principal {
	return models.Principal{
		ID:       "7",
		Username: "drsmith",
		FullName: "Dr Smith",
		Role:     models.RoleDoctor,
	}
}

func newTestStore(sink audit.Sink) *SessionStore {
	return NewSessionStore(Config{}, sink, zerolog.Nop())
}

func TestSessionStore_CreateValidate(t *testing.T) {
	st := newTestStore(nil)
	ctx := context.Background()

	token, err := st.Create(ctx, testPrincipal(), false)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	principal, err := st.Validate(ctx, token)
	require.NoError(t, err)
	require.Equal(t, testPrincipal(), *principal)

	t.Run("tokens are unique", func(t *testing.T) {
		other, err := st.Create(ctx, testPrincipal(), false)
		require.NoError(t, err)
		require.NotEqual(t, token, other)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := st.Validate(ctx, "no-such-token")
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})
}

func TestSessionStore_Expiry(t *testing.T) {
	ctx := context.Background()

	t.Run("idle session expires and is evicted", func(t *testing.T) {
		st := newTestStore(nil)

		token, err := st.Create(ctx, testPrincipal(), false)
		require.NoError(t, err)

		st.backdate(token, 31*time.Minute)

		_, err = st.Validate(ctx, token)
		require.ErrorIs(t, err, store.ErrSessionExpired)

		// Entry is gone after the expired validation.
		_, err = st.Validate(ctx, token)
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("persistent session survives backdating", func(t *testing.T) {
		st := newTestStore(nil)

		token, err := st.Create(ctx, testPrincipal(), true)
		require.NoError(t, err)

		st.backdate(token, 31*time.Minute)

		principal, err := st.Validate(ctx, token)
		require.NoError(t, err)
		require.Equal(t, testPrincipal(), *principal)
	})
}

func TestSessionStore_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("refresh resets the expiry clock", func(t *testing.T) {
		st := newTestStore(nil)

		token, err := st.Create(ctx, testPrincipal(), false)
		require.NoError(t, err)

		// Just short of the timeout, refresh, then idle almost to the
		// timeout again: the session must still be valid.
		st.backdate(token, 29*time.Minute)
		require.NoError(t, st.Refresh(ctx, token))
		st.backdate(token, 29*time.Minute)

		_, err = st.Validate(ctx, token)
		require.NoError(t, err)
	})

	t.Run("refresh of unknown token is a no-op", func(t *testing.T) {
		st := newTestStore(nil)
		require.NoError(t, st.Refresh(ctx, "no-such-token"))
	})

	t.Run("refresh of persistent session is a no-op", func(t *testing.T) {
		st := newTestStore(nil)

		token, err := st.Create(ctx, testPrincipal(), true)
		require.NoError(t, err)
		require.NoError(t, st.Refresh(ctx, token))
	})

	t.Run("refresh racing an expiry eviction keeps the session", func(t *testing.T) {
		sink := &recordingSink{}
		st := NewSessionStore(Config{}, sink, zerolog.Nop())

		token, err := st.Create(ctx, testPrincipal(), false)
		require.NoError(t, err)

		// Stale at the point a validator checks it, but refreshed before the
		// eviction pass takes the write lock. The re-check must spare it.
		st.backdate(token, time.Hour)
		require.NoError(t, st.Refresh(ctx, token))
		require.False(t, st.evictIfExpired(ctx, token))

		principal, err := st.Validate(ctx, token)
		require.NoError(t, err)
		require.Equal(t, testPrincipal(), *principal)

		// No session-ended event may have fired.
		require.Equal(t, []recordedEvent{
			{PrincipalID: "7", Kind: audit.EventSessionCreated},
		}, sink.recorded())
	})
}

func TestSessionStore_Evict(t *testing.T) {
	ctx := context.Background()

	sink := &recordingSink{}
	st := newTestStore(sink)

	token, err := st.Create(ctx, testPrincipal(), false)
	require.NoError(t, err)

	require.NoError(t, st.Evict(ctx, token))

	_, err = st.Validate(ctx, token)
	require.ErrorIs(t, err, store.ErrSessionNotFound)

	// Idempotent: repeated evictions must not emit further audit events.
	require.NoError(t, st.Evict(ctx, token))
	require.NoError(t, st.Evict(ctx, token))

	events := sink.recorded()
	require.Equal(t, []recordedEvent{
		{PrincipalID: "7", Kind: audit.EventSessionCreated},
		{PrincipalID: "7", Kind: audit.EventSessionEnded},
	}, events)
}

func TestSessionStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()

	sink := &recordingSink{}
	st := newTestStore(sink)

	expired, err := st.Create(ctx, testPrincipal(), false)
	require.NoError(t, err)
	fresh, err := st.Create(ctx, models.Principal{ID: "8", Username: "joy", FullName: "Nurse Joy", Role: models.RoleNurse}, false)
	require.NoError(t, err)
	persistent, err := st.Create(ctx, models.Principal{ID: "9", Username: "kiosk", FullName: "Ward Kiosk", Role: models.RoleReceptionist}, true)
	require.NoError(t, err)

	st.backdate(expired, 31*time.Minute)
	st.backdate(persistent, 24*time.Hour)

	removed, err := st.DeleteExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = st.Validate(ctx, expired)
	require.ErrorIs(t, err, store.ErrSessionNotFound)

	_, err = st.Validate(ctx, fresh)
	require.NoError(t, err)

	_, err = st.Validate(ctx, persistent)
	require.NoError(t, err)

	count, err := st.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestSessionStore_List(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(nil)

	token, err := st.Create(ctx, testPrincipal(), false)
	require.NoError(t, err)

	sessions, err := st.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, token, sessions[0].Token)
	require.Equal(t, testPrincipal(), sessions[0].Principal)
	require.False(t, sessions[0].Persistent)
}

func TestSessionStore_Sweeper(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := NewSessionStore(Config{
		SessionTimeout: 10 * time.Millisecond,
		SweepInterval:  20 * time.Millisecond,
	}, nil, zerolog.Nop())

	_, err := st.Create(ctx, testPrincipal(), false)
	require.NoError(t, err)
	persistent, err := st.Create(ctx, testPrincipal(), true)
	require.NoError(t, err)

	go st.StartSweeper(ctx)

	require.Eventually(t, func() bool {
		count, err := st.Count(ctx)
		return err == nil && count == 1
	}, time.Second, 10*time.Millisecond)

	_, err = st.Validate(ctx, persistent)
	require.NoError(t, err)
}

func TestSessionStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				token, err := st.Create(ctx, testPrincipal(), j%2 == 0)
				if err != nil {
					t.Errorf("create failed: %v", err)
					return
				}

				if _, err := st.Validate(ctx, token); err != nil {
					t.Errorf("validate failed: %v", err)
					return
				}

				if err := st.Refresh(ctx, token); err != nil {
					t.Errorf("refresh failed: %v", err)
					return
				}

				if err := st.Evict(ctx, token); err != nil {
					t.Errorf("evict failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	count, err := st.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}
