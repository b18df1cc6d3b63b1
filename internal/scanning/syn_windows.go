//go:build windows

package scanning

import (
	"context"
	"net"
	"time"

	neterrors "github.com/anstrom/netreach/internal/errors"
)

// SYNProber is unavailable on Windows: raw TCP sockets cannot carry
// crafted SYN segments there.
type SYNProber struct{}

// NewSYNProber creates a SYN prober stub.
func NewSYNProber() *SYNProber {
	return &SYNProber{}
}

// Protocol implements Prober.
func (p *SYNProber) Protocol() Protocol {
	return ProtocolTCP
}

// Probe always fails with a permission error on this platform.
func (p *SYNProber) Probe(_ context.Context, _ net.IP, _ uint16, _ time.Duration) ProbeOutcome {
	return ProbeOutcome{State: StateUnknown, Err: neterrors.ErrPermission("syn_probe")}
}
