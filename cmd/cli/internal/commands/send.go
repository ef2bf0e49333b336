package commands

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type SendCmd struct {
	Server  string        `help:"Broker address" default:"localhost:9595"`
	Token   string        `help:"Session token" env:"WARDCAST_TOKEN" required:""`
	Timeout time.Duration `help:"Dial timeout" default:"10s"`

	Kind string   `arg:"" help:"Frame kind" enum:"ping,chat,status,emergency"`
	Args []string `arg:"" optional:"" help:"Frame payload: chat takes <target> <text...>, status and emergency take <text...>"`
}

func (s *SendCmd) Run(ctx context.Context, globals *Globals) error {
	frame, err := s.buildFrame()
	if err != nil {
		return err
	}

	conn, scanner, err := dialAndAuth(s.Server, s.Token, s.Timeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := fmt.Fprintln(conn, frame); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}

	// Print the direct reply. Broadcast deliveries to this session may arrive
	// first; keep reading briefly until the ack shows up.
	_ = conn.SetReadDeadline(time.Now().Add(s.Timeout))
	for scanner.Scan() {
		reply := scanner.Text()
		fmt.Println(reply)
		if isAck(reply) {
			return nil
		}
	}

	return fmt.Errorf("no reply from broker")
}

func (s *SendCmd) buildFrame() (string, error) {
	switch s.Kind {
	case "ping":
		return "PING", nil
	case "chat":
		if len(s.Args) < 2 {
			return "", fmt.Errorf("chat requires a target and a message")
		}
		return fmt.Sprintf("CHAT:%s:%s", s.Args[0], strings.Join(s.Args[1:], " ")), nil
	case "status":
		if len(s.Args) == 0 {
			return "", fmt.Errorf("status requires a message")
		}
		return "STATUS:" + strings.Join(s.Args, " "), nil
	case "emergency":
		if len(s.Args) == 0 {
			return "", fmt.Errorf("emergency requires a message")
		}
		return "EMERGENCY:" + strings.Join(s.Args, " "), nil
	default:
		return "", fmt.Errorf("unknown frame kind %q", s.Kind)
	}
}

func isAck(reply string) bool {
	for _, prefix := range []string{"PONG", "CHAT_SENT:", "STATUS_UPDATED:", "EMERGENCY_SENT:"} {
		if strings.HasPrefix(reply, prefix) {
			return true
		}
	}
	return false
}
