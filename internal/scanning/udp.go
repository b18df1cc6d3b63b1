package scanning

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/miekg/dns"

	neterrors "github.com/anstrom/netreach/internal/errors"
)

const udpReadBuffer = 2048

// UDPProber classifies UDP ports using a connected socket. A datagram
// in response means open, a kernel-surfaced ICMP port unreachable means
// closed, and silence stays ambiguous as open|filtered.
type UDPProber struct{}

// NewUDPProber creates a UDP prober.
func NewUDPProber() *UDPProber {
	return &UDPProber{}
}

// Protocol implements Prober.
func (p *UDPProber) Protocol() Protocol {
	return ProtocolUDP
}

// Probe sends a protocol-appropriate payload and waits for either a
// reply or an ICMP unreachable.
func (p *UDPProber) Probe(ctx context.Context, ip net.IP, port uint16, timeout time.Duration) ProbeOutcome {
	addr := net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))

	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	conn, err := d.DialContext(dialCtx, "udp4", addr)
	if err != nil {
		if isUnreachable(err) {
			return ProbeOutcome{
				State: StateOpenFiltered,
				Err:   neterrors.ErrNetworkUnreachable(addr, err),
			}
		}
		return ProbeOutcome{State: StateOpenFiltered, ResponseTime: time.Since(start)}
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(payloadFor(port)); err != nil {
		if isConnRefused(err) {
			return ProbeOutcome{State: StateClosed, ResponseTime: time.Since(start)}
		}
		return ProbeOutcome{State: StateOpenFiltered, ResponseTime: time.Since(start)}
	}

	buf := make([]byte, udpReadBuffer)
	_, err = conn.Read(buf)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		return ProbeOutcome{State: StateOpen, ResponseTime: elapsed}
	case isConnRefused(err):
		// ICMP port unreachable surfaced on the connected socket.
		return ProbeOutcome{State: StateClosed, ResponseTime: elapsed}
	case isUnreachable(err):
		return ProbeOutcome{
			State:        StateOpenFiltered,
			ResponseTime: elapsed,
			Err:          neterrors.ErrNetworkUnreachable(addr, err),
		}
	case isTimeout(err):
		return ProbeOutcome{State: StateOpenFiltered, ResponseTime: elapsed, TimedOut: true}
	default:
		return ProbeOutcome{State: StateOpenFiltered, ResponseTime: elapsed}
	}
}

// payloadFor returns a datagram likely to elicit a reply from the
// service conventionally bound to port.
func payloadFor(port uint16) []byte {
	switch port {
	case 53:
		msg := new(dns.Msg)
		msg.SetQuestion("version.bind.", dns.TypeTXT)
		msg.Question[0].Qclass = dns.ClassCHAOS
		if wire, err := msg.Pack(); err == nil {
			return wire
		}
		return []byte{0x00}
	case 123:
		// NTP v3 client request.
		pkt := make([]byte, 48)
		pkt[0] = 0x1b
		return pkt
	case 161:
		// SNMPv1 GET for sysDescr.0 with community "public".
		return []byte{
			0x30, 0x26, 0x02, 0x01, 0x00, 0x04, 0x06, 0x70,
			0x75, 0x62, 0x6c, 0x69, 0x63, 0xa0, 0x19, 0x02,
			0x01, 0x01, 0x02, 0x01, 0x00, 0x02, 0x01, 0x00,
			0x30, 0x0e, 0x30, 0x0c, 0x06, 0x08, 0x2b, 0x06,
			0x01, 0x02, 0x01, 0x01, 0x01, 0x00, 0x05, 0x00,
		}
	case 1900:
		return []byte("M-SEARCH * HTTP/1.1\r\nHOST: 239.255.255.250:1900\r\n" +
			"MAN: \"ssdp:discover\"\r\nMX: 1\r\nST: ssdp:all\r\n\r\n")
	default:
		return []byte{0x00}
	}
}
