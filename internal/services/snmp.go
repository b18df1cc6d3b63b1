package services

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/anstrom/netreach/internal/logging"
)

const sysDescrOID = ".1.3.6.1.2.1.1.1.0"

// snmpDetect queries sysDescr with the default public community. The
// description doubles as the banner when the agent answers.
func snmpDetect(ctx context.Context, ip net.IP, timeout time.Duration) (Detection, bool) {
	client := &gosnmp.GoSNMP{
		Target:    ip.String(),
		Port:      161,
		Community: "public",
		Version:   gosnmp.Version2c,
		Timeout:   timeout,
		Retries:   0,
		Context:   ctx,
	}

	if err := client.Connect(); err != nil {
		return Detection{}, false
	}
	defer client.Conn.Close()

	result, err := client.Get([]string{sysDescrOID})
	if err != nil || len(result.Variables) == 0 {
		logging.Debug("SNMP sysDescr query failed", "target", ip.String(), "error", err)
		return Detection{}, false
	}

	pdu := result.Variables[0]
	descr, ok := pdu.Value.([]byte)
	if !ok {
		return Detection{Service: "snmp"}, true
	}

	banner := strings.TrimSpace(string(descr))
	return Detection{
		Service: "snmp",
		Version: firstLine(banner),
		Banner:  banner,
	}, true
}
