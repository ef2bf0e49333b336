package commands

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"
)

type Globals struct {
	Debug   bool
	Version string
}

// dialAndAuth opens a connection and performs the one-shot AUTH handshake,
// returning the connection and a reader positioned after the handshake reply.
func dialAndAuth(server, token string, timeout time.Duration) (net.Conn, *bufio.Scanner, error) {
	conn, err := net.DialTimeout("tcp", server, timeout)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", server, err)
	}

	if _, err := fmt.Fprintf(conn, "AUTH:%s\n", token); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to send auth: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		conn.Close()
		return nil, nil, fmt.Errorf("connection closed during handshake")
	}

	reply := scanner.Text()
	if !strings.HasPrefix(reply, "AUTH_SUCCESS") {
		conn.Close()
		return nil, nil, fmt.Errorf("authentication rejected: %s", reply)
	}

	fmt.Println(reply)

	return conn, scanner, nil
}
