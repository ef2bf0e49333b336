package commands

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type ListenCmd struct {
	Server  string        `help:"Broker address" default:"localhost:9595"`
	Token   string        `help:"Session token" env:"WARDCAST_TOKEN" required:""`
	Timeout time.Duration `help:"Dial timeout" default:"10s"`
	Ping    time.Duration `help:"Liveness probe interval (0 disables)" default:"30s"`
}

func (l *ListenCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Listening for notifications from %s\n", l.Server)

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = time.Second
	expo.MaxInterval = 30 * time.Second

	for {
		err := l.listenOnce(ctx, expo)
		if ctx.Err() != nil {
			fmt.Println("Shutting down")
			return nil
		}

		wait := expo.NextBackOff()
		fmt.Printf("Connection lost (%v), reconnecting in %s\n", err, wait)

		select {
		case <-ctx.Done():
			fmt.Println("Shutting down")
			return nil
		case <-time.After(wait):
		}
	}
}

func (l *ListenCmd) listenOnce(ctx context.Context, expo *backoff.ExponentialBackOff) error {
	conn, scanner, err := dialAndAuth(l.Server, l.Token, l.Timeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Authenticated; reset the reconnect backoff.
	expo.Reset()

	// Close the connection when the context ends so the read loop unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if l.Ping > 0 {
		go pingLoop(conn, l.Ping, done)
	}

	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("connection closed by broker")
}

func pingLoop(conn net.Conn, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if _, err := fmt.Fprintln(conn, "PING"); err != nil {
				return
			}
		}
	}
}
