//go:build !linux

package discovery

import (
	"context"
	"net"
	"time"

	neterrors "github.com/anstrom/netreach/internal/errors"
)

// arpHost requires AF_PACKET sockets, which only Linux provides.
func arpHost(_ context.Context, _ net.IP, _ time.Duration) (bool, time.Duration, error) {
	return false, 0, neterrors.NewDiscoveryError(neterrors.CodeConfiguration,
		"ARP discovery is only supported on Linux")
}
