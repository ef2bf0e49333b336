package broker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/wolfeidau/wardcast/internal/models"
	"github.com/wolfeidau/wardcast/internal/protocol"
	"github.com/wolfeidau/wardcast/internal/registry"
)

var errConnClosed = errors.New("connection closed")

// connState tracks the handler's protocol state machine. Transitions run in
// one direction only; a handler is single-use per transport connection.
type connState int32

const (
	stateUnauthenticated connState = iota
	stateAuthenticated
	stateClosed
)

// handler owns one client connection: the one-shot AUTH handshake, the
// dispatch loop, and teardown. Only the registry ever sees it from outside,
// and then only through the registry.Connection interface.
type handler struct {
	broker *Broker
	conn   net.Conn
	log    zerolog.Logger

	state atomic.Int32

	// Bound during the handshake, immutable afterwards.
	token     string
	principal models.Principal

	connectedAt time.Time

	writeMu   sync.Mutex
	closeOnce sync.Once
}

var _ registry.Connection = (*handler)(nil)

func newHandler(b *Broker, conn net.Conn) *handler {
	return &handler{
		broker:      b,
		conn:        conn,
		log:         b.log.With().Str("remote", conn.RemoteAddr().String()).Logger(),
		connectedAt: time.Now(),
	}
}

// run drives the state machine until the transport closes or teardown is
// requested.
func (h *handler) run(ctx context.Context) {
	defer h.teardown()

	scanner := bufio.NewScanner(h.conn)

	if !h.handshake(ctx, scanner) {
		return
	}

	for scanner.Scan() {
		if h.state.Load() == int32(stateClosed) {
			return
		}
		h.dispatch(ctx, scanner.Text())
	}

	if err := scanner.Err(); err != nil && h.state.Load() != int32(stateClosed) {
		h.log.Warn().Err(err).Msg("client read failed")
	}
}

// handshake enforces the strict one-shot AUTH exchange. Any first frame other
// than a well-formed AUTH is fatal to the connection; there are no retries.
func (h *handler) handshake(ctx context.Context, scanner *bufio.Scanner) bool {
	if !scanner.Scan() {
		_ = h.Send(protocol.AuthRequired("Please authenticate first"))
		return false
	}

	cmd := protocol.Parse(scanner.Text())
	if cmd.Kind != protocol.KindAuth {
		_ = h.Send(protocol.AuthRequired("Please authenticate first"))
		return false
	}

	principal, err := h.broker.sessions.Validate(ctx, cmd.Token)
	if err != nil {
		_ = h.Send(protocol.AuthFailed("Invalid session token"))
		h.log.Warn().Err(err).Msg("client authentication failed")
		return false
	}

	h.token = cmd.Token
	h.principal = *principal
	h.state.Store(int32(stateAuthenticated))
	h.log = h.log.With().Str("username", principal.Username).Str("role", string(principal.Role)).Logger()

	// Last registration wins: a reconnect with the same token supersedes the
	// old connection, which is closed rather than left orphaned.
	if prev, replaced := h.broker.reg.Register(h.token, h); replaced {
		h.log.Warn().Msg("superseding existing connection for session")
		_ = prev.Close()
	}

	_ = h.Send(protocol.AuthSuccess("Welcome " + principal.FullName))
	h.log.Info().Msg("client authenticated")

	return true
}

func (h *handler) dispatch(ctx context.Context, line string) {
	cmd := protocol.Parse(line)

	h.log.Debug().Str("kind", cmd.Kind.String()).Msg("frame received")

	switch cmd.Kind {
	case protocol.KindPing:
		_ = h.Send(protocol.Pong())

	case protocol.KindChat:
		h.handleChat(cmd)

	case protocol.KindStatus:
		h.log.Info().Str("status", cmd.Text).Msg("status update")
		_ = h.Send(protocol.StatusUpdated("Status updated successfully"))

	case protocol.KindEmergency:
		h.handleEmergency(cmd)

	case protocol.KindAuth, protocol.KindUnknown:
		// AUTH is only valid as the first frame; anything unrecognized is
		// non-fatal once authenticated.
		h.log.Warn().Str("frame", cmd.Raw).Msg("ignoring unexpected frame")
	}
}

func (h *handler) handleChat(cmd protocol.Command) {
	h.log.Info().Str("target", cmd.Target).Msg("chat message")

	if target, found := h.broker.lookupByUsername(cmd.Target); found {
		if err := target.Send(protocol.Notification("CHAT", h.principal.FullName, cmd.Text)); err != nil {
			h.log.Warn().Err(err).Str("target", cmd.Target).Msg("chat delivery failed")
		}
	} else {
		h.log.Debug().Str("target", cmd.Target).Msg("chat target not connected")
	}

	_ = h.Send(protocol.ChatSent("Message sent to " + cmd.Target))
}

func (h *handler) handleEmergency(cmd protocol.Command) {
	h.log.Warn().Str("alert", cmd.Text).Msg("emergency alert")

	h.broker.BroadcastEmergency(protocol.Emergency(h.principal.FullName, cmd.Text))

	_ = h.Send(protocol.EmergencySent("Emergency alert broadcasted"))
}

// Token implements registry.Connection.
func (h *handler) Token() string {
	return h.token
}

// Principal implements registry.Connection.
func (h *handler) Principal() models.Principal {
	return h.principal
}

// Send writes one newline-terminated frame. Callers treat a failed send as
// best-effort and carry on; the error is for logging and delivery counting.
func (h *handler) Send(line string) error {
	if h.state.Load() == int32(stateClosed) {
		return errConnClosed
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if _, err := fmt.Fprintf(h.conn, "%s\n", line); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}

	return nil
}

// Close implements registry.Connection. It is an alias for teardown so the
// broker and a superseding handler can force a disconnect.
func (h *handler) Close() error {
	h.teardown()
	return nil
}

// teardown is idempotent: the registry entry is removed before the transport
// is released so routing stops seeing this connection first. Racing calls
// (read error vs. forced disconnect) produce exactly one observable teardown.
func (h *handler) teardown() {
	h.closeOnce.Do(func() {
		h.state.Store(int32(stateClosed))

		if h.token != "" {
			h.broker.reg.Unregister(h.token, h)
		}

		if err := h.conn.Close(); err != nil {
			h.log.Debug().Err(err).Msg("error closing client connection")
		}

		h.log.Info().Dur("connected", time.Since(h.connectedAt)).Msg("client disconnected")
	})
}
