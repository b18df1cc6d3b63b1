package scanning

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	neterrors "github.com/anstrom/netreach/internal/errors"
	"github.com/anstrom/netreach/internal/services"
	"github.com/anstrom/netreach/internal/target"
)

// fakeProber returns canned outcomes and tracks probe invocations.
type fakeProber struct {
	proto   Protocol
	outcome ProbeOutcome
	delay   time.Duration

	mu      sync.Mutex
	probes  []string
	current int64
	peak    int64
}

func (f *fakeProber) Protocol() Protocol { return f.proto }

func (f *fakeProber) Probe(_ context.Context, ip net.IP, port uint16, _ time.Duration) ProbeOutcome {
	cur := atomic.AddInt64(&f.current, 1)
	for {
		peak := atomic.LoadInt64(&f.peak)
		if cur <= peak || atomic.CompareAndSwapInt64(&f.peak, peak, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.probes = append(f.probes, portKey(port, f.proto)+"@"+ip.String())
	f.mu.Unlock()
	atomic.AddInt64(&f.current, -1)
	return f.outcome
}

func (f *fakeProber) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.probes)
}

type fakeDetector struct {
	det services.Detection
}

func (f *fakeDetector) Detect(context.Context, net.IP, uint16, time.Duration) services.Detection {
	return f.det
}

func (f *fakeDetector) DetectUDP(context.Context, net.IP, uint16, time.Duration) services.Detection {
	return f.det
}

type fakeFilter struct {
	up []target.Address
}

func (f *fakeFilter) FilterUp(context.Context, []target.Address) ([]target.Address, error) {
	return f.up, nil
}

func newTestEnum(t *testing.T, specs ...string) *target.Enumerator {
	t.Helper()
	enum, err := target.NewEnumerator(specs)
	require.NoError(t, err)
	return enum
}

func TestEngineProbesFullCrossProduct(t *testing.T) {
	prober := &fakeProber{proto: ProtocolTCP, outcome: ProbeOutcome{State: StateClosed}}

	engine, err := NewEngine(ScanConfig{
		Ports:    []uint16{22, 80, 443},
		ScanType: ScanTypeConnect,
		Timeout:  50 * time.Millisecond,
	}, newTestEnum(t, "192.0.2.1-192.0.2.4"), WithTCPProber(prober))
	require.NoError(t, err)

	rep, err := engine.Run(context.Background())
	require.NoError(t, err)

	// 4 addresses x 3 ports
	assert.Equal(t, 12, prober.count())
	assert.Equal(t, 12, rep.Summary.TotalPorts)
	assert.Equal(t, 4, rep.Summary.TotalHosts)
	assert.Equal(t, 4, rep.Summary.HostsUp) // closed still proves liveness
	assert.False(t, rep.Partial)
	assert.NotEmpty(t, rep.RunID)
}

func TestEngineHonorsMaxParallel(t *testing.T) {
	prober := &fakeProber{
		proto:   ProtocolTCP,
		outcome: ProbeOutcome{State: StateOpen},
		delay:   5 * time.Millisecond,
	}

	engine, err := NewEngine(ScanConfig{
		Ports:       []uint16{1, 2, 3, 4, 5, 6, 7, 8},
		ScanType:    ScanTypeConnect,
		MaxParallel: 3,
		Timeout:     time.Second,
	}, newTestEnum(t, "192.0.2.1-192.0.2.5"), WithTCPProber(prober),
		WithDetector(&fakeDetector{}))
	require.NoError(t, err)

	_, err = engine.Run(context.Background())
	require.NoError(t, err)

	assert.LessOrEqual(t, atomic.LoadInt64(&prober.peak), int64(3))
	assert.Equal(t, 40, prober.count())
}

func TestEngineRetriesOnlyTimedOutProbes(t *testing.T) {
	timedOut := &fakeProber{
		proto:   ProtocolTCP,
		outcome: ProbeOutcome{State: StateFiltered, TimedOut: true},
	}

	engine, err := NewEngine(ScanConfig{
		Ports:    []uint16{80},
		ScanType: ScanTypeConnect,
		Retries:  2,
		Timeout:  10 * time.Millisecond,
	}, newTestEnum(t, "192.0.2.1"), WithTCPProber(timedOut))
	require.NoError(t, err)

	_, err = engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, timedOut.count(), "1 initial + 2 retries")

	answered := &fakeProber{proto: ProtocolTCP, outcome: ProbeOutcome{State: StateClosed}}
	engine, err = NewEngine(ScanConfig{
		Ports:    []uint16{80},
		ScanType: ScanTypeConnect,
		Retries:  2,
		Timeout:  10 * time.Millisecond,
	}, newTestEnum(t, "192.0.2.1"), WithTCPProber(answered))
	require.NoError(t, err)

	_, err = engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, answered.count(), "answered probes are not retried")
}

func TestEngineRandomizeDoesNotChangeReport(t *testing.T) {
	run := func(randomize bool) *ScanReport {
		prober := &fakeProber{proto: ProtocolTCP, outcome: ProbeOutcome{State: StateOpen}}
		engine, err := NewEngine(ScanConfig{
			Ports:     []uint16{22, 80, 443},
			ScanType:  ScanTypeConnect,
			Randomize: randomize,
			Timeout:   50 * time.Millisecond,
		}, newTestEnum(t, "192.0.2.1-192.0.2.6"), WithTCPProber(prober),
			WithDetector(&fakeDetector{}))
		require.NoError(t, err)

		rep, err := engine.Run(context.Background())
		require.NoError(t, err)
		return rep
	}

	plain := run(false)
	shuffled := run(true)

	require.Len(t, shuffled.Hosts, len(plain.Hosts))
	for i := range plain.Hosts {
		assert.Equal(t, plain.Hosts[i].Address, shuffled.Hosts[i].Address)
		assert.Equal(t, plain.Hosts[i].Ports, shuffled.Hosts[i].Ports)
	}
}

func TestEngineCanceledContextSealsPartialReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prober := &fakeProber{proto: ProtocolTCP, outcome: ProbeOutcome{State: StateOpen}}
	engine, err := NewEngine(ScanConfig{
		Ports:    []uint16{80},
		ScanType: ScanTypeConnect,
		Timeout:  50 * time.Millisecond,
	}, newTestEnum(t, "192.0.2.1-192.0.2.10"), WithTCPProber(prober))
	require.NoError(t, err)

	rep, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Partial)
	assert.Equal(t, 10, rep.Summary.TotalHosts, "every target still appears in a partial report")
}

func TestEngineComprehensiveCombinesTCPAndUDP(t *testing.T) {
	tcp := &fakeProber{proto: ProtocolTCP, outcome: ProbeOutcome{State: StateClosed}}
	udp := &fakeProber{proto: ProtocolUDP, outcome: ProbeOutcome{State: StateOpenFiltered}}

	engine, err := NewEngine(ScanConfig{
		Ports:    []uint16{22, 80},
		UDPPorts: []uint16{53, 123},
		ScanType: ScanTypeComprehensive,
		Timeout:  50 * time.Millisecond,
	}, newTestEnum(t, "192.0.2.1"), WithTCPProber(tcp), WithUDPProber(udp))
	require.NoError(t, err)

	rep, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, tcp.count())
	assert.Equal(t, 2, udp.count())
	assert.Equal(t, 4, rep.Summary.TotalPorts)
	assert.Equal(t, 2, rep.Summary.OpenFilteredPorts)
}

func TestEngineUDPScanUsesUDPProber(t *testing.T) {
	tcp := &fakeProber{proto: ProtocolTCP, outcome: ProbeOutcome{State: StateClosed}}
	udp := &fakeProber{proto: ProtocolUDP, outcome: ProbeOutcome{State: StateOpen}}

	engine, err := NewEngine(ScanConfig{
		Ports:    []uint16{53},
		ScanType: ScanTypeUDP,
		Timeout:  50 * time.Millisecond,
	}, newTestEnum(t, "192.0.2.1"), WithTCPProber(tcp), WithUDPProber(udp),
		WithDetector(&fakeDetector{}))
	require.NoError(t, err)

	_, err = engine.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, tcp.count())
	assert.Equal(t, 1, udp.count())
}

func TestEngineServiceDetectionAnnotatesOpenPorts(t *testing.T) {
	prober := &fakeProber{proto: ProtocolTCP, outcome: ProbeOutcome{State: StateOpen}}
	detector := &fakeDetector{det: services.Detection{
		Service: "ssh",
		Version: "OpenSSH_9.6",
		Banner:  "SSH-2.0-OpenSSH_9.6",
	}}

	engine, err := NewEngine(ScanConfig{
		Ports:          []uint16{2222},
		ScanType:       ScanTypeConnect,
		DetectServices: true,
		Timeout:        50 * time.Millisecond,
	}, newTestEnum(t, "192.0.2.1"), WithTCPProber(prober), WithDetector(detector))
	require.NoError(t, err)

	rep, err := engine.Run(context.Background())
	require.NoError(t, err)

	port := rep.Hosts[0].Ports[0]
	assert.Equal(t, "ssh", port.Service)
	assert.Equal(t, "OpenSSH_9.6", port.Version)
	assert.Equal(t, "SSH-2.0-OpenSSH_9.6", port.Banner)
}

func TestEngineWellKnownNameWithoutDetection(t *testing.T) {
	prober := &fakeProber{proto: ProtocolTCP, outcome: ProbeOutcome{State: StateOpen}}

	engine, err := NewEngine(ScanConfig{
		Ports:    []uint16{22},
		ScanType: ScanTypeConnect,
		Timeout:  50 * time.Millisecond,
	}, newTestEnum(t, "192.0.2.1"), WithTCPProber(prober))
	require.NoError(t, err)

	rep, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ssh", rep.Hosts[0].Ports[0].Service)
	assert.Empty(t, rep.Hosts[0].Ports[0].Version)
}

func TestEngineSkipDownGatesProbing(t *testing.T) {
	prober := &fakeProber{proto: ProtocolTCP, outcome: ProbeOutcome{State: StateOpen}}
	up := target.Address{IP: net.ParseIP("192.0.2.1").To4()}

	engine, err := NewEngine(ScanConfig{
		Ports:    []uint16{80},
		ScanType: ScanTypeConnect,
		SkipDown: true,
		Timeout:  50 * time.Millisecond,
	}, newTestEnum(t, "192.0.2.1-192.0.2.4"), WithTCPProber(prober),
		WithHostFilter(&fakeFilter{up: []target.Address{up}}))
	require.NoError(t, err)

	rep, err := engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, prober.count(), "only discovered-up hosts are probed")
	assert.Equal(t, 4, rep.Summary.TotalHosts, "skipped hosts still appear in the report")
	assert.Equal(t, 1, rep.Summary.HostsUp)
	assert.Equal(t, 3, rep.Summary.HostsDown)
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	_, err := NewEngine(ScanConfig{
		Ports:    []uint16{80},
		ScanType: "stealth",
	}, newTestEnum(t, "192.0.2.1"))
	require.Error(t, err)
	assert.Equal(t, neterrors.CodeValidation, neterrors.GetCode(err))

	_, err = NewEngine(ScanConfig{ScanType: ScanTypeConnect}, newTestEnum(t, "192.0.2.1"))
	assert.Error(t, err, "empty port list is rejected")
}

func TestEngineSYNRequiresRawSocketPrivilege(t *testing.T) {
	if CanOpenRawSocket() {
		t.Skip("running with raw socket privileges")
	}

	engine, err := NewEngine(ScanConfig{
		Ports:    []uint16{80},
		ScanType: ScanTypeSYN,
	}, newTestEnum(t, "192.0.2.1"))
	require.NoError(t, err)

	_, err = engine.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, neterrors.CodePermission, neterrors.GetCode(err))
	assert.True(t, neterrors.IsFatal(err))
}

func TestScanConfigDefaultsAndValidation(t *testing.T) {
	cfg := ScanConfig{Ports: []uint16{80}}
	cfg.ApplyDefaults()

	assert.Equal(t, ScanTypeConnect, cfg.ScanType)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, 100, cfg.MaxParallel)
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Retries = -1
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.MaxParallel = 100000
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.RateLimit = -5
	assert.Error(t, bad.Validate())
}

func TestScanConfigUDPPortFallback(t *testing.T) {
	cfg := ScanConfig{Ports: []uint16{80}, ScanType: ScanTypeComprehensive}
	assert.Equal(t, DefaultUDPPorts, cfg.udpPorts())

	cfg.UDPPorts = []uint16{53}
	assert.Equal(t, []uint16{53}, cfg.udpPorts())
}
