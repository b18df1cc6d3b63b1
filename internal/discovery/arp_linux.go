//go:build linux

package discovery

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/sys/unix"

	neterrors "github.com/anstrom/netreach/internal/errors"
)

const arpReadBuffer = 128

var ethernetBroadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// arpHost resolves liveness with a broadcast ARP request on the
// attached segment. A reply carrying the target protocol address
// proves the host is up.
func arpHost(ctx context.Context, ip net.IP, timeout time.Duration) (bool, time.Duration, error) {
	if os.Geteuid() != 0 {
		return false, 0, neterrors.ErrPermission("arp_discovery")
	}

	iface, ipnet, err := localSegmentFor(ip)
	if err != nil || iface == nil {
		return false, 0, neterrors.NewConfigFieldError(neterrors.CodeConfiguration,
			"ARP discovery requires targets on a directly attached subnet",
			"targets", ip.String())
	}
	srcIP := ipnet.IP.To4()

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ARP)))
	if err != nil {
		return false, 0, neterrors.WrapDiscoveryError(neterrors.CodeDiscoveryFailed,
			"Failed to open packet socket", err)
	}
	defer unix.Close(fd)

	sll := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ARP),
		Ifindex:  iface.Index,
		Halen:    uint8(len(ethernetBroadcast)),
	}
	copy(sll.Addr[:], ethernetBroadcast)
	if err := unix.Bind(fd, sll); err != nil {
		return false, 0, neterrors.WrapDiscoveryError(neterrors.CodeDiscoveryFailed,
			"Failed to bind packet socket", err)
	}

	frame, err := buildARPRequest(iface, srcIP, ip.To4())
	if err != nil {
		return false, 0, neterrors.WrapDiscoveryError(neterrors.CodeDiscoveryFailed,
			"Failed to serialize ARP request", err)
	}

	start := time.Now()
	if err := unix.Sendto(fd, frame, 0, sll); err != nil {
		return false, 0, neterrors.WrapDiscoveryError(neterrors.CodeNetworkUnreachable,
			"Failed to send ARP request", err)
	}

	deadline := start.Add(timeout)
	buf := make([]byte, arpReadBuffer)
	for {
		if ctx.Err() != nil {
			return false, 0, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, 0, nil
		}

		tv := unix.NsecToTimeval(remaining.Nanoseconds())
		if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
			return false, 0, neterrors.WrapDiscoveryError(neterrors.CodeDiscoveryFailed,
				"Failed to set receive timeout", err)
		}

		n, _, err := unix.Recvfrom(fd, buf, 0)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				continue
			}
			return false, 0, nil
		}

		if arpReplyFrom(buf[:n], ip.To4()) {
			return true, time.Since(start), nil
		}
	}
}

// buildARPRequest serializes a broadcast Ethernet frame carrying an
// ARP who-has for dst.
func buildARPRequest(iface *net.Interface, src, dst net.IP) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       iface.HardwareAddr,
		DstMAC:       ethernetBroadcast,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   iface.HardwareAddr,
		SourceProtAddress: src,
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    dst,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, arp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// arpReplyFrom reports whether data is an ARP reply from the probed
// address.
func arpReplyFrom(data []byte, probed net.IP) bool {
	var eth layers.Ethernet
	var arp layers.ARP
	parser := gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &eth, &arp)
	parser.IgnoreUnsupported = true

	var decoded []gopacket.LayerType
	if err := parser.DecodeLayers(data, &decoded); err != nil {
		return false
	}
	for _, lt := range decoded {
		if lt == layers.LayerTypeARP {
			return arp.Operation == layers.ARPReply &&
				net.IP(arp.SourceProtAddress).Equal(probed)
		}
	}
	return false
}

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}
