// Package registry indexes live client connections by session token for
// message routing. It never owns connection lifecycle; handlers insert and
// remove their own entries.
package registry

import (
	"sync"

	"github.com/wolfeidau/wardcast/internal/models"
)

// Connection is the routing-facing view of a connected client. Implementations
// must make Send and Close safe for concurrent use.
type Connection interface {
	// Token returns the session token the connection authenticated with.
	Token() string

	// Principal returns the identity bound during the handshake.
	Principal() models.Principal

	// Send writes one frame to the client. A dead connection returns an
	// error; it never panics.
	Send(line string) error

	// Close tears the connection down. Safe to call multiple times.
	Close() error
}

// Registry maps session tokens to live connections. All methods are safe for
// concurrent use; iteration happens over point-in-time snapshots, so entries
// added after a snapshot is taken are not guaranteed delivery for that call.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Connection
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		conns: make(map[string]Connection),
	}
}

// Register inserts or replaces the entry for token. Last registration wins:
// the previous connection, if any, is returned so the caller can close it.
func (r *Registry) Register(token string, conn Connection) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, replaced := r.conns[token]
	r.conns[token] = conn

	return prev, replaced
}

// Unregister removes the entry for token, but only while it still refers to
// conn. A handler whose registration was superseded by a reconnect must not
// remove the newer connection during its own teardown.
func (r *Registry) Unregister(token string, conn Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.conns[token]
	if !exists || current != conn {
		return false
	}

	delete(r.conns, token)
	return true
}

// Lookup returns the connection registered for token.
func (r *Registry) Lookup(token string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.conns[token]
	return conn, exists
}

// Snapshot returns all currently registered connections.
func (r *Registry) Snapshot() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}

	return conns
}

// ByRole returns the registered connections whose principal has the given
// role.
func (r *Registry) ByRole(role models.Role) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []Connection
	for _, conn := range r.conns {
		if conn.Principal().Role == role {
			conns = append(conns, conn)
		}
	}

	return conns
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}
