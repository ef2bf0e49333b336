// Package broker implements the session-aware notification broker: a TCP
// listener that authenticates line-oriented client connections against the
// session store and routes frames to one, many, or role-filtered subsets of
// them.
package broker

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/wolfeidau/wardcast/internal/models"
	"github.com/wolfeidau/wardcast/internal/protocol"
	"github.com/wolfeidau/wardcast/internal/registry"
	"github.com/wolfeidau/wardcast/internal/store"
)

// Config controls the broker listener.
type Config struct {
	// Listen is the TCP listen address, e.g. ":9595".
	Listen string
}

// Broker owns the accept loop and the fan-out operations. One goroutine per
// accepted connection performs blocking reads on its own stream; a blocked
// read on one connection never stalls another.
type Broker struct {
	cfg      Config
	log      zerolog.Logger
	sessions store.SessionStore
	reg      *registry.Registry

	mu       sync.Mutex
	listener net.Listener
	active   map[*handler]struct{}

	running  atomic.Bool
	handlers sync.WaitGroup
}

// New creates a broker routing through the given session store. Stores and
// registry are constructed explicitly and shared by reference; there is no
// process-global state.
func New(cfg Config, sessions store.SessionStore, log zerolog.Logger) *Broker {
	return &Broker{
		cfg:      cfg,
		log:      log.With().Str("component", "broker").Logger(),
		sessions: sessions,
		reg:      registry.New(),
		active:   make(map[*handler]struct{}),
	}
}

// Start binds the listen address and starts the accept loop on its own
// goroutine. A bind failure is returned and the broker is left fully stopped;
// it never runs in a partially-started state.
func (b *Broker) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", b.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", b.cfg.Listen, err)
	}

	b.mu.Lock()
	b.listener = listener
	b.mu.Unlock()

	b.running.Store(true)
	b.log.Info().Str("addr", listener.Addr().String()).Msg("notification broker started")

	go b.acceptLoop(ctx)

	return nil
}

func (b *Broker) acceptLoop(ctx context.Context) {
	for b.running.Load() {
		conn, err := b.listener.Accept()
		if err != nil {
			if b.running.Load() {
				b.log.Warn().Err(err).Msg("accept failed")
				continue
			}
			return
		}

		b.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("client connected")

		h := newHandler(b, conn)
		b.track(h)
		b.handlers.Add(1)
		go func() {
			defer b.handlers.Done()
			defer b.untrack(h)
			h.run(ctx)
		}()
	}
}

// Stop closes the listener, tears down every registered connection, and waits
// for the handler goroutines to drain. Safe to call multiple times and from a
// different goroutine than the accept loop.
func (b *Broker) Stop() {
	if !b.running.CompareAndSwap(true, false) {
		return
	}

	b.mu.Lock()
	listener := b.listener
	b.mu.Unlock()

	if listener != nil {
		if err := listener.Close(); err != nil {
			b.log.Warn().Err(err).Msg("failed to close listener")
		}
	}

	// Close every live handler, registered or not. A client still sitting in
	// the handshake has no registry entry yet but holds a blocked read; its
	// socket must be closed or the drain below never completes.
	for _, h := range b.liveHandlers() {
		_ = h.Close()
	}

	b.handlers.Wait()
	b.log.Info().Msg("notification broker stopped")
}

func (b *Broker) track(h *handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.active[h] = struct{}{}
}

func (b *Broker) untrack(h *handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.active, h)
}

func (b *Broker) liveHandlers() []*handler {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := make([]*handler, 0, len(b.active))
	for h := range b.active {
		handlers = append(handlers, h)
	}
	return handlers
}

// Running reports whether the accept loop is live.
func (b *Broker) Running() bool {
	return b.running.Load()
}

// Addr returns the bound listen address, or nil before Start.
func (b *Broker) Addr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.listener == nil {
		return nil
	}
	return b.listener.Addr()
}

// SendToSession unicasts one frame to the connection bound to token. It
// reports false when the token has no live connection or the send fails.
func (b *Broker) SendToSession(token, message string) bool {
	conn, exists := b.reg.Lookup(token)
	if !exists {
		b.log.Warn().Msg("no connected client for session")
		return false
	}

	if err := conn.Send(message); err != nil {
		b.log.Warn().Err(err).Str("username", conn.Principal().Username).Msg("unicast send failed")
		return false
	}

	return true
}

// BroadcastAll sends a frame to every registered connection, returning the
// number delivered. Individual send failures are logged and skipped.
func (b *Broker) BroadcastAll(message string) int {
	conns := b.reg.Snapshot()
	b.log.Info().Int("clients", len(conns)).Msg("broadcasting to all clients")

	return b.fanOut(conns, message)
}

// BroadcastToRole sends a frame to every connection whose principal has the
// given role, returning the number delivered.
func (b *Broker) BroadcastToRole(role models.Role, message string) int {
	conns := b.reg.ByRole(role)
	b.log.Info().Str("role", string(role)).Int("clients", len(conns)).Msg("broadcasting to role")

	return b.fanOut(conns, message)
}

// BroadcastEmergency fans an emergency frame out to the operational roles
// that must see it.
func (b *Broker) BroadcastEmergency(message string) int {
	delivered := 0
	for _, role := range models.EmergencyRoles {
		delivered += b.BroadcastToRole(role, message)
	}
	return delivered
}

func (b *Broker) fanOut(conns []registry.Connection, message string) int {
	delivered := 0
	for _, conn := range conns {
		if err := conn.Send(message); err != nil {
			b.log.Warn().Err(err).Str("username", conn.Principal().Username).Msg("broadcast send failed")
			continue
		}
		delivered++
	}

	return delivered
}

// DisconnectSession evicts the session for token and force-closes its live
// connection if one is registered (admin force-logout). It reports whether a
// connection was torn down.
func (b *Broker) DisconnectSession(ctx context.Context, token string) bool {
	if err := b.sessions.Evict(ctx, token); err != nil {
		b.log.Warn().Err(err).Msg("failed to evict session")
	}

	conn, exists := b.reg.Lookup(token)
	if !exists {
		return false
	}

	b.log.Info().Str("username", conn.Principal().Username).Msg("force disconnecting session")
	_ = conn.Send(protocol.Alert("Your session has been terminated by an administrator"))
	_ = conn.Close()

	return true
}

// ConnectedCount returns the number of authenticated connections.
func (b *Broker) ConnectedCount() int {
	return b.reg.Len()
}

// lookupByUsername finds a connected principal by username for direct chat
// routing.
func (b *Broker) lookupByUsername(username string) (registry.Connection, bool) {
	for _, conn := range b.reg.Snapshot() {
		if conn.Principal().Username == username {
			return conn, true
		}
	}
	return nil, false
}
