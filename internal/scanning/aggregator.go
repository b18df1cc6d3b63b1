package scanning

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/netreach/internal/target"
)

// ProbeRecord is one aggregated probe outcome delivered to the
// Aggregator. Records may arrive in any order.
type ProbeRecord struct {
	Address  string
	Hostname string
	Port     uint16
	Protocol Protocol
	State    PortState
	Service  string
	Version  string
	Banner   string
	Elapsed  time.Duration
	TTL      uint8
}

// hostBucket accumulates records for one address.
type hostBucket struct {
	address  string
	hostname string
	status   string
	ports    map[string]PortResult
	ttls     []uint8
}

// Aggregator merges probe records into a ScanReport. Recording is
// commutative and associative: any arrival order of the same record set
// seals to the same report. Hosts keep target enumeration order; ports
// are sorted ascending at seal time.
type Aggregator struct {
	mu      sync.Mutex
	order   []string
	buckets map[string]*hostBucket
	sealed  bool
}

// NewAggregator registers the enumerated targets so host order is fixed
// regardless of completion order. Duplicate addresses collapse into one
// host entry at their first position.
func NewAggregator(addrs []target.Address) *Aggregator {
	a := &Aggregator{
		buckets: make(map[string]*hostBucket),
	}
	for _, addr := range addrs {
		key := addr.IP.String()
		if _, ok := a.buckets[key]; ok {
			continue
		}
		a.order = append(a.order, key)
		a.buckets[key] = &hostBucket{
			address:  key,
			hostname: addr.Hostname,
			status:   HostDown,
			ports:    make(map[string]PortResult),
		}
	}
	return a
}

// Record merges one probe outcome. Records for unregistered addresses
// are ignored; a port identity (number, protocol) is written once, so a
// replayed record cannot overwrite an earlier state.
func (a *Aggregator) Record(rec ProbeRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sealed {
		return
	}
	bucket, ok := a.buckets[rec.Address]
	if !ok {
		return
	}

	key := portKey(rec.Port, rec.Protocol)
	if _, exists := bucket.ports[key]; !exists {
		bucket.ports[key] = PortResult{
			Port:         rec.Port,
			Protocol:     rec.Protocol,
			State:        rec.State,
			Service:      rec.Service,
			Version:      rec.Version,
			Banner:       rec.Banner,
			ResponseTime: rec.Elapsed,
		}
	}

	// Any concrete response from the host proves it is up.
	switch rec.State {
	case StateOpen, StateClosed:
		bucket.status = HostUp
	}

	if rec.TTL > 0 {
		bucket.ttls = append(bucket.ttls, rec.TTL)
	}
}

// MarkHostUp overrides the inferred status, used when discovery has
// already confirmed the host.
func (a *Aggregator) MarkHostUp(address string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if bucket, ok := a.buckets[address]; ok {
		bucket.status = HostUp
	}
}

// Seal produces the final report. Summary counters are derived in a
// single pass over the merged results.
func (a *Aggregator) Seal(scanType string, start, end time.Time, partial, guessOS bool) *ScanReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sealed = true

	report := &ScanReport{
		RunID:     uuid.NewString(),
		ScanType:  scanType,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Partial:   partial,
		Hosts:     make([]HostResult, 0, len(a.order)),
	}

	for _, key := range a.order {
		bucket := a.buckets[key]

		ports := make([]PortResult, 0, len(bucket.ports))
		for _, pr := range bucket.ports {
			ports = append(ports, pr)
		}
		sort.Slice(ports, func(i, j int) bool {
			if ports[i].Port != ports[j].Port {
				return ports[i].Port < ports[j].Port
			}
			return ports[i].Protocol < ports[j].Protocol
		})

		host := HostResult{
			Address:  bucket.address,
			Hostname: bucket.hostname,
			Status:   bucket.status,
			Ports:    ports,
		}
		if guessOS {
			host.OSGuess = guessOSFromTTLs(bucket.ttls)
		}

		report.Summary.TotalHosts++
		if host.Status == HostUp {
			report.Summary.HostsUp++
		} else {
			report.Summary.HostsDown++
		}
		for i := range ports {
			report.Summary.TotalPorts++
			switch ports[i].State {
			case StateOpen:
				report.Summary.OpenPorts++
			case StateClosed:
				report.Summary.ClosedPorts++
			case StateFiltered:
				report.Summary.FilteredPorts++
			case StateOpenFiltered:
				report.Summary.OpenFilteredPorts++
			}
		}

		report.Hosts = append(report.Hosts, host)
	}

	return report
}

func portKey(port uint16, proto Protocol) string {
	return fmt.Sprintf("%d/%s", port, proto)
}
