package discovery

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"
)

// tcpDiscoverHost probes the well-known port list with plain TCP
// connections. Both an accepted handshake and a refused connection
// prove something answered; only silence across every port leaves the
// host down.
func tcpDiscoverHost(ctx context.Context, ip net.IP, timeout time.Duration) (bool, time.Duration) {
	var dialer net.Dialer

	for _, port := range wellKnownDiscoveryPorts {
		if ctx.Err() != nil {
			return false, 0
		}

		addr := net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))
		dialCtx, cancel := context.WithTimeout(ctx, timeout)

		start := time.Now()
		conn, err := dialer.DialContext(dialCtx, "tcp4", addr)
		elapsed := time.Since(start)
		cancel()

		if err == nil {
			_ = conn.Close()
			return true, elapsed
		}
		if errors.Is(err, syscall.ECONNREFUSED) {
			return true, elapsed
		}
	}
	return false, 0
}
