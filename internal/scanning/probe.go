package scanning

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"time"
)

// Prober classifies a single port on a single host. Implementations
// must be safe for concurrent use.
type Prober interface {
	Protocol() Protocol
	Probe(ctx context.Context, ip net.IP, port uint16, timeout time.Duration) ProbeOutcome
}

// isTimeout reports whether err is a probe timeout (deadline exceeded
// on the socket or the context).
func isTimeout(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
}

// isConnRefused reports whether err surfaced ECONNREFUSED, which for
// TCP means an RST and for a connected UDP socket an ICMP port
// unreachable.
func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// isUnreachable reports whether err indicates a host or network
// unreachable condition.
func isUnreachable(err error) bool {
	return errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH)
}
