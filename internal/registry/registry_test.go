package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/wardcast/internal/models"
)

// fakeConn is a minimal Connection for registry tests.
type fakeConn struct {
	token     string
	principal models.Principal

	mu     sync.Mutex
	sent   []string
	closed bool
}

func (f *fakeConn) Token() string { return f.token }

func (f *fakeConn) Principal() models.Principal { return f.principal }

func (f *fakeConn) Send(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, line)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func conn(token, username string, role models.Role) *fakeConn {
	return &fakeConn{
		token:     token,
		principal: models.Principal{ID: token, Username: username, Role: role},
	}
}

func TestRegistry_RegisterLookup(t *testing.T) {
	r := New()

	c := conn("tok-1", "drsmith", models.RoleDoctor)
	prev, replaced := r.Register("tok-1", c)
	require.Nil(t, prev)
	require.False(t, replaced)

	got, exists := r.Lookup("tok-1")
	require.True(t, exists)
	require.Same(t, c, got)

	_, exists = r.Lookup("tok-2")
	require.False(t, exists)

	require.Equal(t, 1, r.Len())
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	r := New()

	first := conn("tok-1", "drsmith", models.RoleDoctor)
	second := conn("tok-1", "drsmith", models.RoleDoctor)

	_, replaced := r.Register("tok-1", first)
	require.False(t, replaced)

	prev, replaced := r.Register("tok-1", second)
	require.True(t, replaced)
	require.Same(t, first, prev)

	got, exists := r.Lookup("tok-1")
	require.True(t, exists)
	require.Same(t, second, got)
	require.Equal(t, 1, r.Len())
}

func TestRegistry_Unregister(t *testing.T) {
	r := New()

	c := conn("tok-1", "drsmith", models.RoleDoctor)
	r.Register("tok-1", c)

	require.True(t, r.Unregister("tok-1", c))

	_, exists := r.Lookup("tok-1")
	require.False(t, exists)

	t.Run("unregister of absent token is a no-op", func(t *testing.T) {
		require.False(t, r.Unregister("tok-1", c))
	})

	t.Run("superseded connection cannot remove its replacement", func(t *testing.T) {
		stale := conn("tok-2", "joy", models.RoleNurse)
		current := conn("tok-2", "joy", models.RoleNurse)

		r.Register("tok-2", stale)
		r.Register("tok-2", current)

		require.False(t, r.Unregister("tok-2", stale))

		got, exists := r.Lookup("tok-2")
		require.True(t, exists)
		require.Same(t, current, got)
	})
}

func TestRegistry_ByRole(t *testing.T) {
	r := New()

	doctor := conn("tok-1", "drsmith", models.RoleDoctor)
	nurse := conn("tok-2", "joy", models.RoleNurse)
	patient := conn("tok-3", "bob", models.RolePatient)
	admin := conn("tok-4", "root", models.RoleAdmin)

	for _, c := range []*fakeConn{doctor, nurse, patient, admin} {
		r.Register(c.token, c)
	}

	doctors := r.ByRole(models.RoleDoctor)
	require.Len(t, doctors, 1)
	require.Same(t, doctor, doctors[0])

	require.Empty(t, r.ByRole(models.RolePharmacist))
	require.Len(t, r.Snapshot(), 4)
}

func TestRegistry_ConcurrentMutation(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c := conn("tok", "user", models.RoleNurse)
				r.Register(c.token, c)
				r.Snapshot()
				r.ByRole(models.RoleNurse)
				r.Unregister(c.token, c)
			}
		}(i)
	}
	wg.Wait()
}
