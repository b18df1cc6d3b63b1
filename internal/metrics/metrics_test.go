package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findMetric(t *testing.T, r *Registry, name string) *Metric {
	t.Helper()
	for _, m := range r.GetMetrics() {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func TestCounterIncrements(t *testing.T) {
	r := NewRegistry()

	r.Counter("probes_total", Labels{LabelProtocol: "tcp"})
	r.Counter("probes_total", Labels{LabelProtocol: "tcp"})
	r.Counter("probes_total", Labels{LabelProtocol: "udp"})

	metrics := r.GetMetrics()
	assert.Len(t, metrics, 2)

	tcp := metrics[r.makeKey("probes_total", Labels{LabelProtocol: "tcp"})]
	require.NotNil(t, tcp)
	assert.Equal(t, TypeCounter, tcp.Type)
	assert.Equal(t, float64(2), tcp.Value)
}

func TestGaugeOverwrites(t *testing.T) {
	r := NewRegistry()

	r.Gauge(MetricTasksInFlight, 5, nil)
	r.Gauge(MetricTasksInFlight, 2, nil)

	m := findMetric(t, r, MetricTasksInFlight)
	require.NotNil(t, m)
	assert.Equal(t, TypeGauge, m.Type)
	assert.Equal(t, float64(2), m.Value)
}

func TestHistogramTracksLastValue(t *testing.T) {
	r := NewRegistry()

	r.Histogram(MetricScanDuration, 1.5, nil)
	r.Histogram(MetricScanDuration, 0.25, nil)

	m := findMetric(t, r, MetricScanDuration)
	require.NotNil(t, m)
	assert.Equal(t, TypeHistogram, m.Type)
	assert.Equal(t, 0.25, m.Value)
}

func TestDisabledRegistryDropsMetrics(t *testing.T) {
	r := NewRegistry()
	r.SetEnabled(false)

	r.Counter("dropped", nil)
	r.Gauge("dropped_gauge", 1, nil)
	assert.Empty(t, r.GetMetrics())

	r.SetEnabled(true)
	r.Counter("kept", nil)
	assert.Len(t, r.GetMetrics(), 1)
}

func TestReset(t *testing.T) {
	r := NewRegistry()
	r.Counter("a", nil)
	r.Counter("b", nil)
	require.Len(t, r.GetMetrics(), 2)

	r.Reset()
	assert.Empty(t, r.GetMetrics())
}

func TestGetMetricsReturnsCopies(t *testing.T) {
	r := NewRegistry()
	r.Counter("a", Labels{"k": "v"})

	snapshot := r.GetMetrics()
	for _, m := range snapshot {
		m.Value = 999
		m.Labels["k"] = "mutated"
	}

	m := findMetric(t, r, "a")
	assert.Equal(t, float64(1), m.Value)
	assert.Equal(t, "v", m.Labels["k"])
}

func TestMakeKey(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, "plain", r.makeKey("plain", nil))
	assert.Equal(t, "named:proto=tcp", r.makeKey("named", Labels{"proto": "tcp"}))
}

func TestTimerRecordsDuration(t *testing.T) {
	r := NewRegistry()
	prev := Default()
	SetDefault(r)
	defer SetDefault(prev)

	timer := NewTimer("op_duration_seconds", nil)
	time.Sleep(5 * time.Millisecond)
	timer.Stop()

	m := findMetric(t, r, "op_duration_seconds")
	require.NotNil(t, m)
	assert.Greater(t, m.Value, 0.0)
}

func TestDomainHelpers(t *testing.T) {
	r := NewRegistry()
	prev := Default()
	SetDefault(r)
	defer SetDefault(prev)

	RecordScanDuration("connect", "run", 1500*time.Millisecond)
	IncrementScanTotal("connect", "completed")
	IncrementProbesSent("tcp", "open")
	SetTasksInFlight(7)
	RecordDiscoveryDuration("run", "ping", time.Second)
	IncrementHostsDiscovered("run", "ping", 3)

	assert.NotNil(t, findMetric(t, r, MetricScanDuration))
	assert.NotNil(t, findMetric(t, r, MetricProbesSent))
	inFlight := findMetric(t, r, MetricTasksInFlight)
	require.NotNil(t, inFlight)
	assert.Equal(t, float64(7), inFlight.Value)
}
