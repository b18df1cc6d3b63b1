// Package discovery determines which hosts are alive before or instead
// of port scanning. Three methods are supported: ICMP echo, TCP probes
// against well-known ports, and ARP for targets on a directly attached
// segment.
package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	neterrors "github.com/anstrom/netreach/internal/errors"
	"github.com/anstrom/netreach/internal/logging"
	"github.com/anstrom/netreach/internal/metrics"
	"github.com/anstrom/netreach/internal/target"
	"github.com/anstrom/netreach/internal/workers"
)

// Method selects the liveness probe technique.
type Method string

const (
	MethodPing Method = "ping"
	MethodTCP  Method = "tcp"
	MethodARP  Method = "arp"
)

// wellKnownDiscoveryPorts are the TCP ports probed by MethodTCP. A
// response of any kind from one of them proves the host is up.
var wellKnownDiscoveryPorts = []uint16{80, 443, 22, 21, 25, 53, 110, 143, 993, 995}

// Default configuration values.
const (
	defaultTimeout     = 2 * time.Second
	defaultMaxParallel = 64
)

// Config holds discovery parameters.
type Config struct {
	Method      Method
	Timeout     time.Duration
	MaxParallel int
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Method == "" {
		c.Method = MethodPing
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = defaultMaxParallel
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Method {
	case MethodPing, MethodTCP, MethodARP:
		return nil
	default:
		return neterrors.ErrConfigInvalid("method", string(c.Method))
	}
}

// HostStatus is the liveness verdict for one address.
type HostStatus struct {
	Address target.Address `json:"address"`
	Up      bool           `json:"up"`
	RTT     time.Duration  `json:"rtt,omitempty"`
	Method  Method         `json:"method"`
}

// Engine runs liveness probes across a bounded worker pool.
type Engine struct {
	cfg Config
}

// NewEngine validates the configuration and creates a discovery engine.
func NewEngine(cfg Config) (*Engine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Discover probes every address and returns statuses in input order.
// For MethodARP every target must sit on a directly attached subnet;
// anything else is a configuration error, never a silent fallback to
// another method.
func (e *Engine) Discover(ctx context.Context, addrs []target.Address) ([]HostStatus, error) {
	if len(addrs) == 0 {
		return nil, nil
	}

	if e.cfg.Method == MethodARP {
		if err := checkARPReachable(addrs); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	logging.InfoDiscovery("Starting discovery", "",
		"method", e.cfg.Method, "targets", len(addrs))

	statuses := make([]HostStatus, len(addrs))
	var mu sync.Mutex

	pool := workers.New(workers.Config{
		Size:      e.cfg.MaxParallel,
		QueueSize: len(addrs) + 1,
	})
	pool.Start()

	for i := range addrs {
		if ctx.Err() != nil {
			break
		}
		idx := i
		_ = pool.Submit(&discoveryJob{
			engine: e,
			ctx:    ctx,
			index:  idx,
			addr:   addrs[idx],
			record: func(i int, st HostStatus) {
				mu.Lock()
				statuses[i] = st
				mu.Unlock()
			},
		})
	}
	pool.Close()

	go pool.Wait()
	for range pool.Results() {
	}

	up := 0
	for i := range statuses {
		if statuses[i].Up {
			up++
		}
	}

	duration := time.Since(start)
	metrics.RecordDiscoveryDuration("run", string(e.cfg.Method), duration)
	metrics.IncrementHostsDiscovered("run", string(e.cfg.Method), up)
	metrics.GetGlobalMetrics().RecordDiscoveryDuration(string(e.cfg.Method), duration)
	metrics.GetGlobalMetrics().IncrementDiscoveryTotal(string(e.cfg.Method), "completed")

	logging.InfoDiscovery("Discovery completed", "",
		"method", e.cfg.Method, "hosts_up", up, "duration", duration)

	return statuses, nil
}

// FilterUp discovers the addresses and returns only those that
// answered, preserving input order. It satisfies the host filter the
// scan engine consults when gating probes on discovery.
func (e *Engine) FilterUp(ctx context.Context, addrs []target.Address) ([]target.Address, error) {
	statuses, err := e.Discover(ctx, addrs)
	if err != nil {
		return nil, err
	}
	up := make([]target.Address, 0, len(statuses))
	for i := range statuses {
		if statuses[i].Up {
			up = append(up, statuses[i].Address)
		}
	}
	return up, nil
}

// probeHost dispatches a single liveness probe by method.
func (e *Engine) probeHost(ctx context.Context, addr target.Address) HostStatus {
	st := HostStatus{Address: addr, Method: e.cfg.Method}

	var up bool
	var rtt time.Duration
	var err error

	switch e.cfg.Method {
	case MethodPing:
		up, rtt, err = pingHost(ctx, addr.IP, e.cfg.Timeout)
	case MethodTCP:
		up, rtt = tcpDiscoverHost(ctx, addr.IP, e.cfg.Timeout)
	case MethodARP:
		up, rtt, err = arpHost(ctx, addr.IP, e.cfg.Timeout)
	}

	if err != nil {
		logging.ErrorDiscovery("Host probe failed", addr.IP.String(), err,
			"method", e.cfg.Method)
		metrics.GetGlobalMetrics().IncrementDiscoveryErrors(string(e.cfg.Method),
			string(neterrors.GetCode(err)))
	}

	st.Up = up
	st.RTT = rtt
	return st
}

// discoveryJob adapts one host probe to the worker pool Job interface.
type discoveryJob struct {
	engine *Engine
	ctx    context.Context
	index  int
	addr   target.Address
	record func(int, HostStatus)
}

// Execute implements workers.Job.
func (j *discoveryJob) Execute(_ context.Context) error {
	j.record(j.index, j.engine.probeHost(j.ctx, j.addr))
	return nil
}

// ID implements workers.Job.
func (j *discoveryJob) ID() string {
	return fmt.Sprintf("%s/%s", j.addr.IP, j.engine.cfg.Method)
}

// Type implements workers.Job.
func (j *discoveryJob) Type() string {
	return "discovery"
}
