package scanning

import (
	"context"
	"net"
	"strconv"
	"time"

	neterrors "github.com/anstrom/netreach/internal/errors"
)

// ConnectProber classifies TCP ports with a full three-way handshake.
// It needs no special privileges.
type ConnectProber struct {
	dialer net.Dialer
}

// NewConnectProber creates a connect-scan prober.
func NewConnectProber() *ConnectProber {
	return &ConnectProber{}
}

// Protocol implements Prober.
func (p *ConnectProber) Protocol() Protocol {
	return ProtocolTCP
}

// Probe dials the target port. A completed handshake is open, an RST is
// closed, and silence until the deadline is filtered.
func (p *ConnectProber) Probe(ctx context.Context, ip net.IP, port uint16, timeout time.Duration) ProbeOutcome {
	addr := net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	conn, err := p.dialer.DialContext(dialCtx, "tcp4", addr)
	elapsed := time.Since(start)

	if err == nil {
		_ = conn.Close()
		return ProbeOutcome{State: StateOpen, ResponseTime: elapsed}
	}

	switch {
	case isConnRefused(err):
		return ProbeOutcome{State: StateClosed, ResponseTime: elapsed}
	case isUnreachable(err):
		return ProbeOutcome{
			State:        StateFiltered,
			ResponseTime: elapsed,
			Err:          neterrors.ErrNetworkUnreachable(addr, err),
		}
	case isTimeout(err):
		return ProbeOutcome{State: StateFiltered, ResponseTime: elapsed, TimedOut: true}
	default:
		return ProbeOutcome{State: StateFiltered, ResponseTime: elapsed}
	}
}
