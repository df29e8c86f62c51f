// Package metrics provides Prometheus metrics for the mesh registry and
// agent runtime.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "mesh"

	subsystemRegistry  = "registry"
	subsystemResolver  = "resolver"
	subsystemStore     = "store"
	subsystemProxy     = "proxy"
	subsystemHeartbeat = "heartbeat"
)

var (
	// DurationBuckets for request/call durations.
	DurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

	// === Registry HTTP API metrics ===

	RegistryRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemRegistry,
			Name:      "requests_total",
			Help:      "Total number of registry HTTP requests",
		},
		[]string{"endpoint", "status_code"},
	)

	RegistryRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemRegistry,
			Name:      "request_duration_seconds",
			Help:      "Registry HTTP request latency in seconds",
			Buckets:   DurationBuckets,
		},
		[]string{"endpoint"},
	)

	RegisterTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemRegistry,
			Name:      "register_total",
			Help:      "Total number of agent registrations",
		},
		[]string{"result"},
	)

	HeartbeatTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemRegistry,
			Name:      "heartbeat_total",
			Help:      "Total number of heartbeats received",
		},
		[]string{"result"},
	)

	// === Store / health sweep metrics ===

	StoreAgentsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemStore,
			Name:      "agents",
			Help:      "Number of agents currently tracked, by health state",
		},
		[]string{"state"},
	)

	StoreEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemStore,
			Name:      "evictions_total",
			Help:      "Total number of agents evicted for missed heartbeats",
		},
	)

	StoreResourceVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemStore,
			Name:      "resource_version",
			Help:      "Latest resource version assigned by the store",
		},
	)

	// === Resolver metrics ===

	ResolverResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemResolver,
			Name:      "resolutions_total",
			Help:      "Total number of dependency slots resolved, by outcome",
		},
		[]string{"outcome"},
	)

	ResolverDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemResolver,
			Name:      "duration_seconds",
			Help:      "Time to resolve all dependency slots for one agent request",
			Buckets:   DurationBuckets,
		},
	)

	// === RPC proxy metrics ===

	ProxyCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemProxy,
			Name:      "calls_total",
			Help:      "Total number of outbound proxy calls",
		},
		[]string{"capability", "outcome"},
	)

	ProxyCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemProxy,
			Name:      "call_duration_seconds",
			Help:      "Outbound proxy call latency in seconds",
			Buckets:   DurationBuckets,
		},
		[]string{"capability"},
	)

	ProxyRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemProxy,
			Name:      "retries_total",
			Help:      "Total number of proxy call retries",
		},
		[]string{"capability"},
	)

	// === Agent heartbeat pipeline metrics ===

	HeartbeatTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemHeartbeat,
			Name:      "ticks_total",
			Help:      "Total number of heartbeat ticks, by outcome",
		},
		[]string{"outcome"},
	)

	HeartbeatConsecutiveFailures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemHeartbeat,
			Name:      "consecutive_failures",
			Help:      "Current count of consecutive failed heartbeats",
		},
	)

	HeartbeatProxiesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemHeartbeat,
			Name:      "proxies_active",
			Help:      "Number of currently bound dependency proxies",
		},
	)

	registry = prometheus.NewRegistry()
)

func init() {
	registry.MustRegister(
		RegistryRequestsTotal,
		RegistryRequestDuration,
		RegisterTotal,
		HeartbeatTotal,
		StoreAgentsGauge,
		StoreEvictionsTotal,
		StoreResourceVersion,
		ResolverResolutionsTotal,
		ResolverDuration,
		ProxyCallsTotal,
		ProxyCallDuration,
		ProxyRetriesTotal,
		HeartbeatTicksTotal,
		HeartbeatConsecutiveFailures,
		HeartbeatProxiesActive,
	)

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler returns an HTTP handler serving the Prometheus /metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordRegistryRequest records one registry HTTP request.
func RecordRegistryRequest(endpoint, statusCode string, duration float64) {
	RegistryRequestsTotal.WithLabelValues(endpoint, statusCode).Inc()
	RegistryRequestDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordRegister records the outcome of a registration attempt.
func RecordRegister(result string) {
	RegisterTotal.WithLabelValues(result).Inc()
}

// RecordHeartbeat records the outcome of a heartbeat.
func RecordHeartbeat(result string) {
	HeartbeatTotal.WithLabelValues(result).Inc()
}

// SetStoreAgents sets the number of agents in a given health state.
func SetStoreAgents(state string, count int) {
	StoreAgentsGauge.WithLabelValues(state).Set(float64(count))
}

// RecordEviction increments the eviction counter.
func RecordEviction() {
	StoreEvictionsTotal.Inc()
}

// SetResourceVersion sets the latest resource version gauge.
func SetResourceVersion(v uint64) {
	StoreResourceVersion.Set(float64(v))
}

// RecordResolution records one dependency slot resolution outcome
// ("resolved" or "unresolved").
func RecordResolution(outcome string) {
	ResolverResolutionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveResolverDuration records how long a full resolution pass took.
func ObserveResolverDuration(seconds float64) {
	ResolverDuration.Observe(seconds)
}

// RecordProxyCall records one outbound proxy call.
func RecordProxyCall(capability, outcome string, duration float64) {
	ProxyCallsTotal.WithLabelValues(capability, outcome).Inc()
	ProxyCallDuration.WithLabelValues(capability).Observe(duration)
}

// RecordProxyRetry increments the retry counter for a capability.
func RecordProxyRetry(capability string) {
	ProxyRetriesTotal.WithLabelValues(capability).Inc()
}

// RecordHeartbeatTick records one heartbeat pipeline tick.
func RecordHeartbeatTick(outcome string) {
	HeartbeatTicksTotal.WithLabelValues(outcome).Inc()
}

// SetHeartbeatConsecutiveFailures sets the consecutive-failure gauge.
func SetHeartbeatConsecutiveFailures(n int) {
	HeartbeatConsecutiveFailures.Set(float64(n))
}

// SetHeartbeatProxiesActive sets the bound-proxy count gauge.
func SetHeartbeatProxiesActive(n int) {
	HeartbeatProxiesActive.Set(float64(n))
}
