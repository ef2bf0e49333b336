// Package protocol implements the line-oriented text protocol spoken between
// the broker and its clients. One frame per line, UTF-8, newline terminated.
package protocol

import (
	"fmt"
	"strings"
)

// Inbound frame prefixes.
const (
	prefixAuth      = "AUTH:"
	prefixPing      = "PING"
	prefixChat      = "CHAT:"
	prefixStatus    = "STATUS:"
	prefixEmergency = "EMERGENCY:"
)

// Kind identifies an inbound command. The set is closed so dispatch can
// switch exhaustively instead of chaining prefix checks.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindPing
	KindChat
	KindStatus
	KindEmergency
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "AUTH"
	case KindPing:
		return "PING"
	case KindChat:
		return "CHAT"
	case KindStatus:
		return "STATUS"
	case KindEmergency:
		return "EMERGENCY"
	default:
		return "UNKNOWN"
	}
}

// Command is a parsed inbound frame.
type Command struct {
	Kind Kind

	Token  string // AUTH
	Target string // CHAT recipient username
	Text   string // CHAT, STATUS, EMERGENCY payload

	Raw string // original line, kept for logging
}

// Parse turns one inbound line into a Command. Frames that carry a known
// prefix but a malformed body come back as KindUnknown; the caller logs and
// ignores those.
func Parse(line string) Command {
	cmd := Command{Kind: KindUnknown, Raw: line}

	switch {
	case strings.HasPrefix(line, prefixAuth):
		token := line[len(prefixAuth):]
		if token == "" {
			return cmd
		}
		cmd.Kind = KindAuth
		cmd.Token = token

	case strings.HasPrefix(line, prefixPing):
		cmd.Kind = KindPing

	case strings.HasPrefix(line, prefixChat):
		// CHAT:<target>:<text>
		target, text, ok := strings.Cut(line[len(prefixChat):], ":")
		if !ok || target == "" {
			return cmd
		}
		cmd.Kind = KindChat
		cmd.Target = target
		cmd.Text = text

	case strings.HasPrefix(line, prefixStatus):
		cmd.Kind = KindStatus
		cmd.Text = line[len(prefixStatus):]

	case strings.HasPrefix(line, prefixEmergency):
		cmd.Kind = KindEmergency
		cmd.Text = line[len(prefixEmergency):]
	}

	return cmd
}

// Outbound frame builders. Kept as plain functions so handlers and broadcast
// routines share one encoding of each reply.

func AuthSuccess(welcome string) string {
	return "AUTH_SUCCESS:" + welcome
}

func AuthFailed(reason string) string {
	return "AUTH_FAILED:" + reason
}

func AuthRequired(prompt string) string {
	return "AUTH_REQUIRED:" + prompt
}

func Pong() string {
	return "PONG"
}

func ChatSent(info string) string {
	return "CHAT_SENT:" + info
}

func StatusUpdated(info string) string {
	return "STATUS_UPDATED:" + info
}

func EmergencySent(info string) string {
	return "EMERGENCY_SENT:" + info
}

func Emergency(sender, text string) string {
	return fmt.Sprintf("EMERGENCY:%s - %s", sender, text)
}

func Notification(kind, title, message string) string {
	return fmt.Sprintf("NOTIFICATION:%s:%s:%s", kind, title, message)
}

func Alert(text string) string {
	return "ALERT:" + text
}
