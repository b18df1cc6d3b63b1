//go:build !windows

package scanning

import (
	"context"
	"math/rand"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/sys/unix"

	neterrors "github.com/anstrom/netreach/internal/errors"
	"github.com/anstrom/netreach/internal/logging"
)

const (
	// Ephemeral source port range for crafted segments.
	ephemeralPortMin = 32768
	ephemeralPortMax = 61000

	synRecvBuffer = 4096
	synTTL        = 64
	synWindow     = 65535
)

// SYNProber classifies TCP ports with half-open probes: a crafted SYN
// segment on a raw socket, classified by the SYN-ACK or RST that comes
// back. A SYN-ACK is answered with an RST so no connection is left
// half-open. Requires raw socket privileges.
type SYNProber struct {
	fallback *ConnectProber
}

// NewSYNProber creates a SYN prober. Callers must verify raw socket
// privileges with CanOpenRawSocket before dispatching probes.
func NewSYNProber() *SYNProber {
	return &SYNProber{fallback: NewConnectProber()}
}

// Protocol implements Prober.
func (p *SYNProber) Protocol() Protocol {
	return ProtocolTCP
}

// Probe sends one SYN segment and waits for the classification reply.
func (p *SYNProber) Probe(ctx context.Context, ip net.IP, port uint16, timeout time.Duration) ProbeOutcome {
	dst := ip.To4()
	if dst == nil {
		return ProbeOutcome{State: StateUnknown,
			Err: neterrors.NewScanErrorWithTarget(neterrors.CodeTargetInvalid, "Not an IPv4 address", ip.String())}
	}

	// Loopback never routes through the raw path usefully; a plain
	// handshake gives the same classification there.
	if dst.IsLoopback() {
		return p.fallback.Probe(ctx, ip, port, timeout)
	}

	src, err := localIPFor(dst)
	if err != nil {
		return ProbeOutcome{State: StateFiltered,
			Err: neterrors.ErrNetworkUnreachable(ip.String(), err)}
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_TCP)
	if err != nil {
		if err == unix.EPERM || err == unix.EACCES {
			return ProbeOutcome{State: StateUnknown, Err: neterrors.ErrPermission("syn_probe")}
		}
		return ProbeOutcome{State: StateUnknown,
			Err: neterrors.WrapScanError(neterrors.CodeScanFailed, "Failed to open raw socket", err)}
	}
	defer unix.Close(fd)

	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_HDRINCL, 1); err != nil {
		return ProbeOutcome{State: StateUnknown,
			Err: neterrors.WrapScanError(neterrors.CodeScanFailed, "Failed to set IP_HDRINCL", err)}
	}

	sport := uint16(ephemeralPortMin + rand.Intn(ephemeralPortMax-ephemeralPortMin))
	seq := rand.Uint32()

	pkt, err := buildSegment(src, dst, sport, port, seq, 0, true, false)
	if err != nil {
		return ProbeOutcome{State: StateUnknown,
			Err: neterrors.WrapScanError(neterrors.CodeScanFailed, "Failed to serialize SYN segment", err)}
	}

	var sa unix.SockaddrInet4
	copy(sa.Addr[:], dst)
	sa.Port = int(port)

	start := time.Now()
	if err := unix.Sendto(fd, pkt, 0, &sa); err != nil {
		if isUnreachable(err) {
			return ProbeOutcome{State: StateFiltered,
				Err: neterrors.ErrNetworkUnreachable(ip.String(), err)}
		}
		return ProbeOutcome{State: StateUnknown,
			Err: neterrors.WrapScanError(neterrors.CodeScanFailed, "Failed to send SYN segment", err)}
	}

	return p.awaitReply(ctx, fd, dst, sport, port, seq, start, timeout)
}

// awaitReply reads raw TCP traffic until the matching reply arrives or
// the deadline passes.
func (p *SYNProber) awaitReply(ctx context.Context, fd int, dst net.IP,
	sport, dport uint16, seq uint32, start time.Time, timeout time.Duration) ProbeOutcome {
	deadline := start.Add(timeout)
	buf := make([]byte, synRecvBuffer)

	for {
		if ctx.Err() != nil {
			return ProbeOutcome{State: StateFiltered, ResponseTime: time.Since(start)}
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ProbeOutcome{State: StateFiltered, ResponseTime: time.Since(start), TimedOut: true}
		}

		tv := unix.NsecToTimeval(remaining.Nanoseconds())
		if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
			return ProbeOutcome{State: StateUnknown,
				Err: neterrors.WrapScanError(neterrors.CodeScanFailed, "Failed to set receive timeout", err)}
		}

		n, _, err := unix.Recvfrom(fd, buf, 0)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				continue
			}
			return ProbeOutcome{State: StateFiltered, ResponseTime: time.Since(start), TimedOut: true}
		}

		ip4, tcp, ok := decodeTCP(buf[:n])
		if !ok {
			continue
		}
		if !ip4.SrcIP.Equal(dst) || uint16(tcp.SrcPort) != dport || uint16(tcp.DstPort) != sport {
			continue
		}

		elapsed := time.Since(start)
		switch {
		case tcp.SYN && tcp.ACK:
			p.sendReset(fd, ip4, tcp, seq)
			return ProbeOutcome{State: StateOpen, ResponseTime: elapsed, TTL: ip4.TTL}
		case tcp.RST:
			return ProbeOutcome{State: StateClosed, ResponseTime: elapsed, TTL: ip4.TTL}
		}
	}
}

// sendReset answers a SYN-ACK with an RST to tear the embryonic
// connection down.
func (p *SYNProber) sendReset(fd int, reply *layers.IPv4, tcp *layers.TCP, seq uint32) {
	pkt, err := buildSegment(reply.DstIP, reply.SrcIP,
		uint16(tcp.DstPort), uint16(tcp.SrcPort), seq+1, tcp.Seq+1, false, true)
	if err != nil {
		logging.Debug("Failed to build RST segment", "error", err)
		return
	}

	var sa unix.SockaddrInet4
	copy(sa.Addr[:], reply.SrcIP.To4())
	sa.Port = int(tcp.SrcPort)
	if err := unix.Sendto(fd, pkt, 0, &sa); err != nil {
		logging.Debug("Failed to send RST segment", "error", err)
	}
}

// buildSegment serializes an IPv4+TCP segment with computed checksums.
func buildSegment(src, dst net.IP, sport, dport uint16, seq, ack uint32, syn, rst bool) ([]byte, error) {
	ipLayer := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      synTTL,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    src.To4(),
		DstIP:    dst.To4(),
	}
	tcpLayer := &layers.TCP{
		SrcPort: layers.TCPPort(sport),
		DstPort: layers.TCPPort(dport),
		Seq:     seq,
		Ack:     ack,
		SYN:     syn,
		RST:     rst,
		ACK:     ack != 0,
		Window:  synWindow,
	}
	if err := tcpLayer.SetNetworkLayerForChecksum(ipLayer); err != nil {
		return nil, err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ipLayer, tcpLayer); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeTCP parses a raw IPv4 packet into its IP and TCP layers.
func decodeTCP(data []byte) (*layers.IPv4, *layers.TCP, bool) {
	var ip4 layers.IPv4
	var tcp layers.TCP
	parser := gopacket.NewDecodingLayerParser(layers.LayerTypeIPv4, &ip4, &tcp)
	parser.IgnoreUnsupported = true

	var decoded []gopacket.LayerType
	if err := parser.DecodeLayers(data, &decoded); err != nil {
		return nil, nil, false
	}
	sawIP, sawTCP := false, false
	for _, lt := range decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			sawIP = true
		case layers.LayerTypeTCP:
			sawTCP = true
		}
	}
	if !sawIP || !sawTCP {
		return nil, nil, false
	}
	return &ip4, &tcp, true
}

// localIPFor picks the local source address the kernel would route
// toward dst.
func localIPFor(dst net.IP) (net.IP, error) {
	conn, err := net.Dial("udp4", net.JoinHostPort(dst.String(), "53"))
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.To4(), nil
}
