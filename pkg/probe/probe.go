// Package probe waits for a local server to accept TCP connections.
package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultInterval is the pause between connection attempts.
	DefaultInterval = 500 * time.Millisecond

	dialTimeout = 250 * time.Millisecond
)

// WaitForServer dials localhost:port until a connection succeeds or timeout
// elapses. It returns false on timeout or context cancellation; connection
// refusals are expected and never surfaced as errors. The only error case is
// an invalid port.
func WaitForServer(ctx context.Context, port int, timeout, interval time.Duration) (bool, error) {
	if port <= 0 || port > 65535 {
		return false, fmt.Errorf("invalid port: %d", port)
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	addr := net.JoinHostPort("localhost", fmt.Sprintf("%d", port))
	deadline := time.Now().Add(timeout)

	log := zap.S().Named("probe")
	log.Debugw("waiting for local server", "addr", addr, "timeout", timeout)

	for {
		if tryConnect(addr) {
			log.Debugw("local server is up", "addr", addr)
			return true, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			log.Debugw("gave up waiting for local server", "addr", addr)
			return false, nil
		}
		wait := interval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return false, nil
		case <-time.After(wait):
		}
	}
}

// tryConnect makes a single attempt and closes the socket immediately.
func tryConnect(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
