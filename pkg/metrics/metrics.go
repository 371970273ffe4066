// Package metrics exposes Prometheus collectors for tool dispatch and
// resource reads.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "toolserver"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ToolInvocations *prometheus.CounterVec
	ToolDuration    *prometheus.HistogramVec
	ResourceReads   *prometheus.CounterVec
	RegisteredTools prometheus.Gauge
}

// New creates the collectors on a private registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the collectors on reg
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		ToolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "Tool dispatches by tool and outcome.",
		}, []string{"tool", "status"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool handler latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		ResourceReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resource_reads_total",
			Help:      "Resource reads by resource and outcome.",
		}, []string{"resource", "status"}),
		RegisteredTools: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_tools",
			Help:      "Number of tools in the registry.",
		}),
	}
	reg.MustRegister(m.ToolInvocations, m.ToolDuration, m.ResourceReads, m.RegisteredTools)
	return m
}

// ObserveTool records one dispatch. Unknown tool names are recorded under a
// fixed label to keep cardinality bounded.
func (m *Metrics) ObserveTool(tool string, known bool, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if !known {
		tool = "unknown"
	}
	m.ToolInvocations.WithLabelValues(tool, status).Inc()
	if known {
		m.ToolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
	}
}

// ObserveResource records one resource read
func (m *Metrics) ObserveResource(resource string, known bool, status string) {
	if m == nil {
		return
	}
	if !known {
		resource = "unknown"
	}
	m.ResourceReads.WithLabelValues(resource, status).Inc()
}

// SetRegisteredTools records the registry size
func (m *Metrics) SetRegisteredTools(n int) {
	if m == nil {
		return
	}
	m.RegisteredTools.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
