package mqttv5client

import (
	"errors"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var metricHelp = map[string]string{
	MetricPacketsSent:        "Control packets written to the server",
	MetricPacketsReceived:    "Control packets read from the server",
	MetricConnects:           "Connection attempts by result",
	MetricReconnectDelay:     "Delay chosen before each reconnect attempt",
	MetricOperationsQueued:   "Operations waiting to be sent",
	MetricOperationsInflight: "Operations sent and awaiting acknowledgment",
	MetricOperationDuration:  "Time from submission to completion of an operation",
}

// PrometheusMetrics implements Metrics on top of a Prometheus registerer.
// Collectors are created on first use and reused when they are already
// registered, so several clients may share one registry.
type PrometheusMetrics struct {
	reg prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMetrics creates a Metrics backend. A nil reg uses the default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusMetrics{
		reg:        reg,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Counter returns the counter for name and labels.
func (m *PrometheusMetrics) Counter(name string, labels MetricLabels) Counter {
	m.mu.Lock()
	defer m.mu.Unlock()

	vec, ok := m.counters[name]
	if !ok {
		vec = register(m.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: name,
			Help: help(name),
		}, labelNames(labels)))
		m.counters[name] = vec
	}
	return vec.With(prometheus.Labels(labels))
}

// Gauge returns the gauge for name and labels.
func (m *PrometheusMetrics) Gauge(name string, labels MetricLabels) Gauge {
	m.mu.Lock()
	defer m.mu.Unlock()

	vec, ok := m.gauges[name]
	if !ok {
		vec = register(m.reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: name,
			Help: help(name),
		}, labelNames(labels)))
		m.gauges[name] = vec
	}
	return vec.With(prometheus.Labels(labels))
}

// Histogram returns the histogram for name and labels.
func (m *PrometheusMetrics) Histogram(name string, labels MetricLabels) Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()

	vec, ok := m.histograms[name]
	if !ok {
		vec = register(m.reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    help(name),
			Buckets: prometheus.DefBuckets,
		}, labelNames(labels)))
		m.histograms[name] = vec
	}
	return vec.With(prometheus.Labels(labels))
}

// register adds c to reg, returning the existing collector when one with the
// same descriptor is already there.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func labelNames(labels MetricLabels) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

func help(name string) string {
	if h, ok := metricHelp[name]; ok {
		return h
	}
	return name
}
