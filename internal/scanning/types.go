// Package scanning implements the port probing engine: probe types,
// scan configuration, the bounded-concurrency scheduler, and the
// order-independent result aggregator.
package scanning

import (
	"time"

	"github.com/anstrom/netreach/internal/errors"
)

// Scan type constants.
const (
	ScanTypeConnect       = "connect"
	ScanTypeSYN           = "syn"
	ScanTypeUDP           = "udp"
	ScanTypeComprehensive = "comprehensive"
)

// Protocol identifies the transport protocol of a probe.
type Protocol string

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
)

// PortState is the classification of a probed port.
type PortState string

const (
	StateOpen         PortState = "open"
	StateClosed       PortState = "closed"
	StateFiltered     PortState = "filtered"
	StateOpenFiltered PortState = "open|filtered"
	StateUnknown      PortState = "unknown"
)

// Host status values.
const (
	HostUp   = "up"
	HostDown = "down"
)

// Default values applied by ScanConfig.ApplyDefaults.
const (
	defaultTimeout     = 3 * time.Second
	defaultMaxParallel = 100
	maxParallelLimit   = 4096
)

// DefaultUDPPorts are probed on the UDP side of a comprehensive scan
// when no explicit UDP port list is configured.
var DefaultUDPPorts = []uint16{53, 67, 68, 69, 123, 161, 162, 500, 514, 520, 1900, 4500}

// ScanConfig holds the parameters of a scan run.
type ScanConfig struct {
	// Ports to probe on every target.
	Ports []uint16
	// UDPPorts override the UDP side of a comprehensive scan.
	UDPPorts []uint16
	// ScanType selects the probe technique.
	ScanType string
	// Timeout bounds each individual probe.
	Timeout time.Duration
	// MaxParallel bounds the number of in-flight probes.
	MaxParallel int
	// Retries is the number of additional attempts after a probe timeout.
	Retries int
	// Randomize shuffles task dispatch order.
	Randomize bool
	// RateLimit caps probes per second across all workers (0 = none).
	RateLimit int
	// DetectServices enables service fingerprinting on open TCP ports.
	DetectServices bool
	// DetectOS enables the TTL-based operating system guess.
	DetectOS bool
	// SkipDown suppresses port probes for hosts discovery reported down.
	SkipDown bool
}

// ApplyDefaults fills zero-valued fields with working defaults.
func (c *ScanConfig) ApplyDefaults() {
	if c.ScanType == "" {
		c.ScanType = ScanTypeConnect
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = defaultMaxParallel
	}
}

// Validate checks the configuration for invalid values.
func (c *ScanConfig) Validate() error {
	switch c.ScanType {
	case ScanTypeConnect, ScanTypeSYN, ScanTypeUDP, ScanTypeComprehensive:
	default:
		return errors.ErrConfigInvalid("scan_type", c.ScanType)
	}
	if len(c.Ports) == 0 {
		return errors.ErrConfigInvalid("ports", "empty")
	}
	if c.Retries < 0 {
		return errors.ErrConfigInvalid("retries", c.Retries)
	}
	if c.MaxParallel > maxParallelLimit {
		return errors.ErrConfigInvalid("max_parallel", c.MaxParallel)
	}
	if c.RateLimit < 0 {
		return errors.ErrConfigInvalid("rate_limit", c.RateLimit)
	}
	return nil
}

// udpPorts returns the UDP port list for a comprehensive scan.
func (c *ScanConfig) udpPorts() []uint16 {
	if len(c.UDPPorts) > 0 {
		return c.UDPPorts
	}
	return DefaultUDPPorts
}

// PortResult is the outcome of probing a single port on a host. Ports
// are identified by number and protocol together, so TCP/53 and UDP/53
// are distinct entries.
type PortResult struct {
	Port         uint16        `json:"port" xml:"number,attr"`
	Protocol     Protocol      `json:"protocol" xml:"protocol,attr"`
	State        PortState     `json:"state" xml:"state"`
	Service      string        `json:"service,omitempty" xml:"service,omitempty"`
	Version      string        `json:"version,omitempty" xml:"version,omitempty"`
	Banner       string        `json:"banner,omitempty" xml:"-"`
	ResponseTime time.Duration `json:"response_time" xml:"response-time"`
}

// HostResult aggregates all port results for one target address.
type HostResult struct {
	Address  string       `json:"address" xml:"address,attr"`
	Hostname string       `json:"hostname,omitempty" xml:"hostname,attr,omitempty"`
	Status   string       `json:"status" xml:"status,attr"`
	OSGuess  string       `json:"os_guess,omitempty" xml:"os-guess,omitempty"`
	Ports    []PortResult `json:"ports" xml:"ports>port"`
}

// Summary holds the derived counters of a completed run.
type Summary struct {
	TotalHosts        int `json:"total_hosts" xml:"total-hosts"`
	HostsUp           int `json:"hosts_up" xml:"hosts-up"`
	HostsDown         int `json:"hosts_down" xml:"hosts-down"`
	TotalPorts        int `json:"total_ports" xml:"total-ports"`
	OpenPorts         int `json:"open_ports" xml:"open-ports"`
	ClosedPorts       int `json:"closed_ports" xml:"closed-ports"`
	FilteredPorts     int `json:"filtered_ports" xml:"filtered-ports"`
	OpenFilteredPorts int `json:"open_filtered_ports" xml:"open-filtered-ports"`
}

// ScanReport is the sealed result of a scan run. Hosts appear in target
// enumeration order, ports within a host ascending by number (protocol
// breaking ties).
type ScanReport struct {
	RunID     string        `json:"run_id" xml:"run-id,attr"`
	ScanType  string        `json:"scan_type" xml:"scan-type,attr"`
	StartTime time.Time     `json:"start_time" xml:"start-time"`
	EndTime   time.Time     `json:"end_time" xml:"end-time"`
	Duration  time.Duration `json:"duration" xml:"duration"`
	Partial   bool          `json:"partial,omitempty" xml:"partial,attr,omitempty"`
	Hosts     []HostResult  `json:"hosts" xml:"hosts>host"`
	Summary   Summary       `json:"summary" xml:"summary"`
}

// ProbeOutcome is the classification a prober produced for one attempt.
type ProbeOutcome struct {
	State        PortState
	ResponseTime time.Duration
	// TTL of the reply packet when the probe saw one (0 = unknown).
	TTL uint8
	// TimedOut marks attempts eligible for retry.
	TimedOut bool
	// Err carries task-local failures such as unreachable networks.
	Err error
}
