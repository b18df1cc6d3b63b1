// Package services identifies the service behind an open port. It
// combines a static well-known port table, passive banner grabbing,
// and protocol-specific probes with signature-based version
// extraction. Failing to identify a service is not an error; the
// detection simply stays empty.
package services

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/anstrom/netreach/internal/logging"
)

const (
	bannerReadBuffer = 1024
	passiveReadWait  = 800 * time.Millisecond
)

// Detection is the result of service identification for one port.
type Detection struct {
	Service string
	Version string
	Banner  string
}

// wellKnownPorts maps conventional port numbers to service names.
var wellKnownPorts = map[uint16]string{
	21:   "ftp",
	22:   "ssh",
	23:   "telnet",
	25:   "smtp",
	53:   "dns",
	80:   "http",
	110:  "pop3",
	111:  "rpc",
	135:  "msrpc",
	139:  "netbios",
	143:  "imap",
	443:  "https",
	993:  "imaps",
	995:  "pop3s",
	1723: "pptp",
	3306: "mysql",
	3389: "rdp",
	5432: "postgresql",
	5900: "vnc",
	8080: "http-alt",
}

// WellKnownName returns the conventional service name for a port, or
// empty when none is registered.
func WellKnownName(port uint16) string {
	return wellKnownPorts[port]
}

// probeFor returns the application payload used to coax a banner out of
// services that stay silent until spoken to.
func probeFor(port uint16) []byte {
	switch port {
	case 80, 8080, 443:
		return []byte("GET / HTTP/1.1\r\nHost: localhost\r\n\r\n")
	case 25:
		return []byte("EHLO localhost\r\n")
	case 21:
		return []byte("USER anonymous\r\n")
	case 110:
		return []byte("USER test\r\n")
	case 143:
		return []byte("A001 CAPABILITY\r\n")
	default:
		return nil
	}
}

// Detector performs banner-based service identification.
type Detector struct{}

// NewDetector creates a service detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect connects to an open TCP port, grabs whatever banner it can,
// and matches it against the signature table.
func (d *Detector) Detect(ctx context.Context, ip net.IP, port uint16, timeout time.Duration) Detection {
	det := Detection{Service: WellKnownName(port)}

	banner := d.grabBanner(ctx, ip, port, timeout)
	if banner == "" {
		return det
	}
	det.Banner = banner

	if service, version := AnalyzeBanner(banner); service != "" {
		det.Service = service
		det.Version = version
	}
	return det
}

// DetectUDP identifies services on open UDP ports. SNMP gets a real
// query; everything else falls back to the well-known table.
func (d *Detector) DetectUDP(ctx context.Context, ip net.IP, port uint16, timeout time.Duration) Detection {
	if port == 161 {
		if det, ok := snmpDetect(ctx, ip, timeout); ok {
			return det
		}
	}
	return Detection{Service: WellKnownName(port)}
}

// grabBanner reads the self-announced banner, and when the service
// stays silent sends the port-matched probe before reading again.
func (d *Detector) grabBanner(ctx context.Context, ip net.IP, port uint16, timeout time.Duration) string {
	addr := net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))

	var dialer net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dialer.DialContext(dialCtx, "tcp4", addr)
	if err != nil {
		logging.Debug("Banner grab connect failed", "target", addr, "error", err)
		return ""
	}
	defer conn.Close()

	buf := make([]byte, bannerReadBuffer)

	// Many services (ssh, ftp, smtp) announce themselves first.
	_ = conn.SetReadDeadline(time.Now().Add(passiveReadWait))
	if n, err := conn.Read(buf); err == nil && n > 0 {
		return sanitizeBanner(buf[:n])
	}

	probe := probeFor(port)
	if probe == nil {
		return ""
	}

	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	if _, err := conn.Write(probe); err != nil {
		return ""
	}
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	if n, err := conn.Read(buf); err == nil && n > 0 {
		return sanitizeBanner(buf[:n])
	}
	return ""
}

// sanitizeBanner trims the raw read down to printable, single-line-ish
// text suitable for reports.
func sanitizeBanner(raw []byte) string {
	s := strings.ToValidUTF8(string(raw), "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
