// Prometheus-based collectors for netreach. These complement the in-process
// registry with industry-standard collectors suitable for scraping when the
// engine runs long enough to be monitored.
package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// Namespace for all netreach metrics
	namespace = "netreach"

	// Subsystems
	subsystemScan      = "scan"
	subsystemProbe     = "probe"
	subsystemDiscovery = "discovery"
	subsystemSystem    = "system"
)

// PrometheusMetrics holds all Prometheus metric collectors.
type PrometheusMetrics struct {
	// Scan metrics
	scansTotal   *prometheus.CounterVec
	scanDuration *prometheus.HistogramVec
	scanErrors   *prometheus.CounterVec
	hostsScanned *prometheus.CounterVec
	activeScans  prometheus.Gauge

	// Probe metrics
	probesTotal   *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	probeRetries  *prometheus.CounterVec
	tasksInFlight prometheus.Gauge

	// Discovery metrics
	discoveryTotal    *prometheus.CounterVec
	discoveryDuration *prometheus.HistogramVec
	discoveryErrors   *prometheus.CounterVec
	hostsDiscovered   *prometheus.CounterVec

	// System metrics
	memoryUsage prometheus.Gauge
	goroutines  prometheus.Gauge
	uptime      prometheus.Gauge

	startTime  time.Time
	lastUpdate time.Time
	mu         sync.RWMutex
	registry   *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with all collectors.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  registry,
	}

	pm.initScanMetrics()
	pm.initProbeMetrics()
	pm.initDiscoveryMetrics()
	pm.initSystemMetrics()
	pm.registerMetrics()

	// Standard Go and process collectors for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

func (pm *PrometheusMetrics) initScanMetrics() {
	pm.scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "total",
			Help:      "Total number of scan runs by technique and status",
		},
		[]string{"scan_type", "status"},
	)

	pm.scanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "duration_seconds",
			Help:      "Duration of scan runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0, 600.0},
		},
		[]string{"scan_type"},
	)

	pm.scanErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "errors_total",
			Help:      "Total number of scan errors by technique and error",
		},
		[]string{"scan_type", "error_type"},
	)

	pm.hostsScanned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "hosts_total",
			Help:      "Total number of hosts scanned by status",
		},
		[]string{"scan_type", "host_status"},
	)

	pm.activeScans = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "active",
			Help:      "Number of currently active scan runs",
		},
	)
}

func (pm *PrometheusMetrics) initProbeMetrics() {
	pm.probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "total",
			Help:      "Total number of probes sent by protocol and resulting port state",
		},
		[]string{"protocol", "port_state"},
	)

	pm.probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "duration_seconds",
			Help:      "Duration of individual probes in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 3.0, 10.0},
		},
		[]string{"protocol"},
	)

	pm.probeRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "retries_total",
			Help:      "Total number of probe retries by protocol",
		},
		[]string{"protocol"},
	)

	pm.tasksInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "tasks_in_flight",
			Help:      "Number of probe tasks currently executing",
		},
	)
}

func (pm *PrometheusMetrics) initDiscoveryMetrics() {
	pm.discoveryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemDiscovery,
			Name:      "total",
			Help:      "Total number of discovery operations by method and status",
		},
		[]string{"method", "status"},
	)

	pm.discoveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemDiscovery,
			Name:      "duration_seconds",
			Help:      "Duration of discovery operations in seconds",
			Buckets:   []float64{0.1, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0},
		},
		[]string{"method"},
	)

	pm.discoveryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemDiscovery,
			Name:      "errors_total",
			Help:      "Total number of discovery errors by method and error type",
		},
		[]string{"method", "error_type"},
	)

	pm.hostsDiscovered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemDiscovery,
			Name:      "hosts_total",
			Help:      "Total number of hosts discovered",
		},
		[]string{"method", "network"},
	)
}

func (pm *PrometheusMetrics) initSystemMetrics() {
	pm.memoryUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "memory_bytes",
			Help:      "Current memory usage in bytes",
		},
	)

	pm.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	pm.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "uptime_seconds",
			Help:      "Application uptime in seconds",
		},
	)
}

func (pm *PrometheusMetrics) registerMetrics() {
	pm.registry.MustRegister(pm.scansTotal)
	pm.registry.MustRegister(pm.scanDuration)
	pm.registry.MustRegister(pm.scanErrors)
	pm.registry.MustRegister(pm.hostsScanned)
	pm.registry.MustRegister(pm.activeScans)

	pm.registry.MustRegister(pm.probesTotal)
	pm.registry.MustRegister(pm.probeDuration)
	pm.registry.MustRegister(pm.probeRetries)
	pm.registry.MustRegister(pm.tasksInFlight)

	pm.registry.MustRegister(pm.discoveryTotal)
	pm.registry.MustRegister(pm.discoveryDuration)
	pm.registry.MustRegister(pm.discoveryErrors)
	pm.registry.MustRegister(pm.hostsDiscovered)

	pm.registry.MustRegister(pm.memoryUsage)
	pm.registry.MustRegister(pm.goroutines)
	pm.registry.MustRegister(pm.uptime)
}

// GetRegistry returns the Prometheus registry for HTTP handler use.
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// IncrementScansTotal increments the total scan counter.
func (pm *PrometheusMetrics) IncrementScansTotal(scanType, status string) {
	pm.scansTotal.WithLabelValues(scanType, status).Inc()
}

// RecordScanDuration records a scan duration.
func (pm *PrometheusMetrics) RecordScanDuration(scanType string, duration time.Duration) {
	pm.scanDuration.WithLabelValues(scanType).Observe(duration.Seconds())
}

// IncrementScanErrors increments scan error counter.
func (pm *PrometheusMetrics) IncrementScanErrors(scanType, errorType string) {
	pm.scanErrors.WithLabelValues(scanType, errorType).Inc()
}

// IncrementHostsScanned increments hosts scanned counter.
func (pm *PrometheusMetrics) IncrementHostsScanned(scanType, status string, count int) {
	pm.hostsScanned.WithLabelValues(scanType, status).Add(float64(count))
}

// SetActiveScans sets the number of active scan runs.
func (pm *PrometheusMetrics) SetActiveScans(count int) {
	pm.activeScans.Set(float64(count))
}

// IncrementProbesTotal increments the probe counter.
func (pm *PrometheusMetrics) IncrementProbesTotal(protocol, portState string) {
	pm.probesTotal.WithLabelValues(protocol, portState).Inc()
}

// RecordProbeDuration records a single probe duration.
func (pm *PrometheusMetrics) RecordProbeDuration(protocol string, duration time.Duration) {
	pm.probeDuration.WithLabelValues(protocol).Observe(duration.Seconds())
}

// IncrementProbeRetries increments the probe retry counter.
func (pm *PrometheusMetrics) IncrementProbeRetries(protocol string) {
	pm.probeRetries.WithLabelValues(protocol).Inc()
}

// SetTasksInFlight sets the in-flight task gauge.
func (pm *PrometheusMetrics) SetTasksInFlight(count int) {
	pm.tasksInFlight.Set(float64(count))
}

// IncrementDiscoveryTotal increments discovery counter.
func (pm *PrometheusMetrics) IncrementDiscoveryTotal(method, status string) {
	pm.discoveryTotal.WithLabelValues(method, status).Inc()
}

// RecordDiscoveryDuration records discovery duration.
func (pm *PrometheusMetrics) RecordDiscoveryDuration(method string, duration time.Duration) {
	pm.discoveryDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// IncrementDiscoveryErrors increments discovery error counter.
func (pm *PrometheusMetrics) IncrementDiscoveryErrors(method, errorType string) {
	pm.discoveryErrors.WithLabelValues(method, errorType).Inc()
}

// IncrementHostsDiscovered increments hosts discovered counter.
func (pm *PrometheusMetrics) IncrementHostsDiscovered(method, network string, count int) {
	pm.hostsDiscovered.WithLabelValues(method, network).Add(float64(count))
}

// UpdateSystemMetrics updates all system metrics with current values.
func (pm *PrometheusMetrics) UpdateSystemMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	pm.memoryUsage.Set(float64(memStats.Alloc))
	pm.goroutines.Set(float64(runtime.NumGoroutine()))
	pm.uptime.Set(time.Since(pm.startTime).Seconds())
	pm.lastUpdate = time.Now()
}

// GetUptime returns the application uptime.
func (pm *PrometheusMetrics) GetUptime() time.Duration {
	return time.Since(pm.startTime)
}

// GetLastUpdate returns the last metrics update time.
func (pm *PrometheusMetrics) GetLastUpdate() time.Time {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.lastUpdate
}

// StartPeriodicUpdates starts a goroutine that periodically updates system metrics.
func (pm *PrometheusMetrics) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.UpdateSystemMetrics()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.UpdateSystemMetrics()
		}
	}
}

// Global instance for easy access.
var globalMetrics *PrometheusMetrics
var metricsOnce sync.Once

// GetGlobalMetrics returns the global Prometheus metrics instance.
func GetGlobalMetrics() *PrometheusMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewPrometheusMetrics()
	})
	return globalMetrics
}
