package discovery

import (
	"net"

	neterrors "github.com/anstrom/netreach/internal/errors"
	"github.com/anstrom/netreach/internal/target"
)

// localSegmentFor returns the interface whose IPv4 subnet contains ip.
func localSegmentFor(ip net.IP) (*net.Interface, *net.IPNet, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, nil, err
	}
	for i := range ifaces {
		iface := ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			if ipnet.Contains(ip) {
				return &iface, ipnet, nil
			}
		}
	}
	return nil, nil, nil
}

// checkARPReachable verifies every target sits on a directly attached
// subnet. ARP cannot cross a router, so anything off-segment is a
// configuration error rather than a silent fallback.
func checkARPReachable(addrs []target.Address) error {
	for _, addr := range addrs {
		iface, _, err := localSegmentFor(addr.IP)
		if err != nil {
			return neterrors.WrapDiscoveryError(neterrors.CodeDiscoveryFailed,
				"Failed to enumerate local interfaces", err)
		}
		if iface == nil {
			return neterrors.NewConfigFieldError(neterrors.CodeConfiguration,
				"ARP discovery requires targets on a directly attached subnet",
				"targets", addr.IP.String())
		}
	}
	return nil
}
