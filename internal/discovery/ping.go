package discovery

import (
	"context"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	neterrors "github.com/anstrom/netreach/internal/errors"
)

const (
	icmpProtocolNumber = 1
	pingReadBuffer     = 1500
)

var pingPayload = []byte("netreach-discovery")

// pingHost sends one ICMP echo request and waits for the reply. A raw
// ICMP socket is used when the process is privileged; otherwise the
// unprivileged datagram ICMP socket type is used.
func pingHost(ctx context.Context, ip net.IP, timeout time.Duration) (bool, time.Duration, error) {
	privileged := os.Geteuid() == 0

	network := "udp4"
	var dst net.Addr = &net.UDPAddr{IP: ip}
	if privileged {
		network = "ip4:icmp"
		dst = &net.IPAddr{IP: ip}
	}

	conn, err := icmp.ListenPacket(network, "0.0.0.0")
	if err != nil {
		if privileged {
			return false, 0, neterrors.WrapDiscoveryError(neterrors.CodeDiscoveryFailed,
				"Failed to open ICMP socket", err)
		}
		return false, 0, neterrors.ErrPermission("icmp_ping")
	}
	defer conn.Close()

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xffff,
			Seq:  1,
			Data: pingPayload,
		},
	}
	wire, err := msg.Marshal(nil)
	if err != nil {
		return false, 0, neterrors.WrapDiscoveryError(neterrors.CodeDiscoveryFailed,
			"Failed to marshal echo request", err)
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)

	start := time.Now()
	if _, err := conn.WriteTo(wire, dst); err != nil {
		return false, 0, neterrors.WrapDiscoveryError(neterrors.CodeNetworkUnreachable,
			"Failed to send echo request", err)
	}

	buf := make([]byte, pingReadBuffer)
	for {
		if ctx.Err() != nil {
			return false, 0, nil
		}
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			// Deadline passed without a reply.
			return false, 0, nil
		}

		reply, err := icmp.ParseMessage(icmpProtocolNumber, buf[:n])
		if err != nil {
			continue
		}
		if reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		if peerIP := addrIP(peer); peerIP != nil && !peerIP.Equal(ip) {
			continue
		}
		return true, time.Since(start), nil
	}
}

func addrIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.IPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	default:
		return nil
	}
}
