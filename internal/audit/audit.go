package audit

import (
	"context"

	"github.com/rs/zerolog"
)

// Event kinds recorded against a session lifecycle.
const (
	EventSessionCreated = "SESSION_CREATED"
	EventSessionEnded   = "SESSION_ENDED"
)

// Sink receives session lifecycle events. Implementations must be safe for
// concurrent use and must never block session flow; callers treat every call
// as fire-and-forget and ignore failures.
type Sink interface {
	SessionEvent(ctx context.Context, principalID, kind, detail string)
}

// LogSink writes audit events to the structured log. It stands in for the
// external audit boundary when no durable sink is configured.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "audit").Logger()}
}

func (s *LogSink) SessionEvent(ctx context.Context, principalID, kind, detail string) {
	s.log.Info().
		Str("principal_id", principalID).
		Str("event", kind).
		Str("detail", detail).
		Msg("session audit event")
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) SessionEvent(ctx context.Context, principalID, kind, detail string) {}
