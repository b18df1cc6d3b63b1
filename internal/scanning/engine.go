package scanning

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	neterrors "github.com/anstrom/netreach/internal/errors"
	"github.com/anstrom/netreach/internal/logging"
	"github.com/anstrom/netreach/internal/metrics"
	"github.com/anstrom/netreach/internal/services"
	"github.com/anstrom/netreach/internal/target"
	"github.com/anstrom/netreach/internal/workers"
)

// ServiceDetector fingerprints the service behind an open port.
type ServiceDetector interface {
	Detect(ctx context.Context, ip net.IP, port uint16, timeout time.Duration) services.Detection
	DetectUDP(ctx context.Context, ip net.IP, port uint16, timeout time.Duration) services.Detection
}

// HostFilter reduces an address list to the hosts worth probing. Used
// with SkipDown to gate port scanning on a discovery pass.
type HostFilter interface {
	FilterUp(ctx context.Context, addrs []target.Address) ([]target.Address, error)
}

// Engine schedules probe tasks across a bounded worker pool and
// aggregates their outcomes into a ScanReport.
type Engine struct {
	cfg      ScanConfig
	enum     *target.Enumerator
	tcp      Prober
	udp      Prober
	detector ServiceDetector
	filter   HostFilter
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTCPProber replaces the TCP prober.
func WithTCPProber(p Prober) EngineOption {
	return func(e *Engine) { e.tcp = p }
}

// WithUDPProber replaces the UDP prober.
func WithUDPProber(p Prober) EngineOption {
	return func(e *Engine) { e.udp = p }
}

// WithDetector replaces the service detector.
func WithDetector(d ServiceDetector) EngineOption {
	return func(e *Engine) { e.detector = d }
}

// WithHostFilter installs the discovery gate consulted when SkipDown
// is set.
func WithHostFilter(f HostFilter) EngineOption {
	return func(e *Engine) { e.filter = f }
}

// NewEngine validates the configuration and wires the probers for the
// selected technique.
func NewEngine(cfg ScanConfig, enum *target.Enumerator, opts ...EngineOption) (*Engine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:  cfg,
		enum: enum,
		udp:  NewUDPProber(),
	}
	if cfg.ScanType == ScanTypeSYN {
		e.tcp = NewSYNProber()
	} else {
		e.tcp = NewConnectProber()
	}
	e.detector = services.NewDetector()

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// task is one (address, port, prober) probe unit.
type task struct {
	addr   target.Address
	port   uint16
	prober Prober
}

// Run executes the scan. The context deadline bounds the whole run:
// when it fires, pending tasks are abandoned and the report is sealed
// from completed outcomes with its Partial flag set.
func (e *Engine) Run(ctx context.Context) (*ScanReport, error) {
	if e.cfg.ScanType == ScanTypeSYN && !CanOpenRawSocket() {
		return nil, neterrors.ErrPermission("syn_scan")
	}

	start := time.Now()
	addrs, err := e.enum.Expand(ctx)
	if err != nil {
		return nil, err
	}

	probeAddrs := addrs
	var upHosts []target.Address
	if e.cfg.SkipDown && e.filter != nil {
		upHosts, err = e.filter.FilterUp(ctx, addrs)
		if err != nil {
			return nil, err
		}
		probeAddrs = upHosts
		logging.Info("Discovery gate applied",
			"targets", len(addrs), "hosts_up", len(upHosts))
	}

	tasks := e.buildTasks(probeAddrs)
	if e.cfg.Randomize {
		rand.Shuffle(len(tasks), func(i, j int) {
			tasks[i], tasks[j] = tasks[j], tasks[i]
		})
	}

	logging.Info("Starting scan",
		"scan_type", e.cfg.ScanType,
		"targets", len(addrs),
		"tasks", len(tasks),
		"max_parallel", e.cfg.MaxParallel)
	metrics.GetGlobalMetrics().SetActiveScans(1)
	defer metrics.GetGlobalMetrics().SetActiveScans(0)

	agg := NewAggregator(addrs)
	for _, up := range upHosts {
		agg.MarkHostUp(up.IP.String())
	}

	pool := workers.New(workers.Config{
		Size:      e.cfg.MaxParallel,
		QueueSize: len(tasks) + 1,
		RateLimit: e.cfg.RateLimit,
	})
	pool.Start()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go func() {
		<-runCtx.Done()
		pool.Stop()
	}()

	for i := range tasks {
		if ctx.Err() != nil {
			break
		}
		if err := pool.Submit(&probeJob{engine: e, task: tasks[i], ctx: ctx, agg: agg}); err != nil {
			break
		}
	}
	pool.Close()

	go pool.Wait()
	for range pool.Results() {
	}

	end := time.Now()
	partial := ctx.Err() != nil
	report := agg.Seal(e.cfg.ScanType, start, end, partial, e.cfg.DetectOS)

	metrics.RecordScanDuration(e.cfg.ScanType, "run", end.Sub(start))
	metrics.IncrementScanTotal(e.cfg.ScanType, scanStatus(partial))
	metrics.GetGlobalMetrics().RecordScanDuration(e.cfg.ScanType, end.Sub(start))
	metrics.GetGlobalMetrics().IncrementScansTotal(e.cfg.ScanType, scanStatus(partial))

	logging.Info("Scan completed",
		"scan_type", e.cfg.ScanType,
		"duration", report.Duration,
		"hosts_up", report.Summary.HostsUp,
		"open_ports", report.Summary.OpenPorts,
		"partial", partial)

	return report, nil
}

// buildTasks forms the full cross product of targets and ports for the
// configured technique. Every (address, port, protocol) triple yields
// exactly one task.
func (e *Engine) buildTasks(addrs []target.Address) []task {
	var tasks []task
	for _, addr := range addrs {
		switch e.cfg.ScanType {
		case ScanTypeUDP:
			for _, port := range e.cfg.Ports {
				tasks = append(tasks, task{addr: addr, port: port, prober: e.udp})
			}
		case ScanTypeComprehensive:
			for _, port := range e.cfg.Ports {
				tasks = append(tasks, task{addr: addr, port: port, prober: e.tcp})
			}
			for _, port := range e.cfg.udpPorts() {
				tasks = append(tasks, task{addr: addr, port: port, prober: e.udp})
			}
		default:
			for _, port := range e.cfg.Ports {
				tasks = append(tasks, task{addr: addr, port: port, prober: e.tcp})
			}
		}
	}
	return tasks
}

func scanStatus(partial bool) string {
	if partial {
		return "partial"
	}
	return "completed"
}

// probeJob adapts one probe task to the worker pool Job interface.
type probeJob struct {
	engine *Engine
	task   task
	ctx    context.Context
	agg    *Aggregator
}

// Execute probes the port, retrying timed-out attempts up to the
// configured budget, then records the final classification.
func (j *probeJob) Execute(_ context.Context) error {
	e := j.engine
	t := j.task
	proto := t.prober.Protocol()

	outcome := t.prober.Probe(j.ctx, t.addr.IP, t.port, e.cfg.Timeout)
	for attempt := 0; attempt < e.cfg.Retries && outcome.TimedOut && j.ctx.Err() == nil; attempt++ {
		metrics.Counter(metrics.MetricProbeRetries, metrics.Labels{
			metrics.LabelProtocol: string(proto),
		})
		metrics.GetGlobalMetrics().IncrementProbeRetries(string(proto))
		outcome = t.prober.Probe(j.ctx, t.addr.IP, t.port, e.cfg.Timeout)
	}

	rec := ProbeRecord{
		Address:  t.addr.IP.String(),
		Hostname: t.addr.Hostname,
		Port:     t.port,
		Protocol: proto,
		State:    outcome.State,
		Elapsed:  outcome.ResponseTime,
		TTL:      outcome.TTL,
	}

	if outcome.State == StateOpen {
		rec.Service = services.WellKnownName(t.port)
		if e.cfg.DetectServices && e.detector != nil {
			var det services.Detection
			if proto == ProtocolTCP {
				det = e.detector.Detect(j.ctx, t.addr.IP, t.port, e.cfg.Timeout)
			} else {
				det = e.detector.DetectUDP(j.ctx, t.addr.IP, t.port, e.cfg.Timeout)
			}
			if det.Service != "" {
				rec.Service = det.Service
			}
			rec.Version = det.Version
			rec.Banner = det.Banner
		}
	}

	j.agg.Record(rec)

	metrics.IncrementProbesSent(string(proto), string(outcome.State))
	metrics.GetGlobalMetrics().IncrementProbesTotal(string(proto), string(outcome.State))
	metrics.GetGlobalMetrics().RecordProbeDuration(string(proto), outcome.ResponseTime)
	logging.DebugProbe("Probe completed", t.addr.IP.String(), t.port,
		"protocol", proto, "state", outcome.State)

	return outcome.Err
}

// ID implements workers.Job.
func (j *probeJob) ID() string {
	return fmt.Sprintf("%s:%d/%s", j.task.addr.IP, j.task.port, j.task.prober.Protocol())
}

// Type implements workers.Job.
func (j *probeJob) Type() string {
	return "probe"
}
