package mqttv5client

import (
	"time"
)

// MetricLabels represents key-value pairs for metric labels.
type MetricLabels map[string]string

// Metrics defines the interface for collecting metrics.
// A metric name is always used with the same set of label keys.
type Metrics interface {
	// Counter returns a counter metric.
	Counter(name string, labels MetricLabels) Counter

	// Gauge returns a gauge metric.
	Gauge(name string, labels MetricLabels) Gauge

	// Histogram returns a histogram metric.
	Histogram(name string, labels MetricLabels) Histogram
}

// Counter is a monotonically increasing counter.
type Counter interface {
	Inc()
	Add(delta float64)
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
	Add(delta float64)
}

// Histogram tracks the distribution of values.
type Histogram interface {
	Observe(value float64)
}

// Metric names recorded by the client.
const (
	MetricPacketsSent        = "mqtt_client_packets_sent_total"
	MetricPacketsReceived    = "mqtt_client_packets_received_total"
	MetricConnects           = "mqtt_client_connects_total"
	MetricReconnectDelay     = "mqtt_client_reconnect_delay_seconds"
	MetricOperationsQueued   = "mqtt_client_operations_queued"
	MetricOperationsInflight = "mqtt_client_operations_inflight"
	MetricOperationDuration  = "mqtt_client_operation_duration_seconds"
)

// NoOpMetrics is a no-op implementation of Metrics.
type NoOpMetrics struct{}

// Counter returns a no-op counter.
func (n *NoOpMetrics) Counter(_ string, _ MetricLabels) Counter {
	return noOpMetric{}
}

// Gauge returns a no-op gauge.
func (n *NoOpMetrics) Gauge(_ string, _ MetricLabels) Gauge {
	return noOpMetric{}
}

// Histogram returns a no-op histogram.
func (n *NoOpMetrics) Histogram(_ string, _ MetricLabels) Histogram {
	return noOpMetric{}
}

type noOpMetric struct{}

func (noOpMetric) Inc()              {}
func (noOpMetric) Dec()              {}
func (noOpMetric) Add(_ float64)     {}
func (noOpMetric) Set(_ float64)     {}
func (noOpMetric) Observe(_ float64) {}

// clientMetrics records the client's instrumentation through a Metrics backend.
type clientMetrics struct {
	m Metrics
}

func (cm clientMetrics) packetSent(t PacketType) {
	cm.m.Counter(MetricPacketsSent, MetricLabels{"type": t.String()}).Inc()
}

func (cm clientMetrics) packetReceived(t PacketType) {
	cm.m.Counter(MetricPacketsReceived, MetricLabels{"type": t.String()}).Inc()
}

func (cm clientMetrics) connect(result string) {
	cm.m.Counter(MetricConnects, MetricLabels{"result": result}).Inc()
}

func (cm clientMetrics) reconnectDelay(d time.Duration) {
	cm.m.Histogram(MetricReconnectDelay, nil).Observe(d.Seconds())
}

func (cm clientMetrics) queueDepth(queued, inflight int) {
	cm.m.Gauge(MetricOperationsQueued, nil).Set(float64(queued))
	cm.m.Gauge(MetricOperationsInflight, nil).Set(float64(inflight))
}

func (cm clientMetrics) operationDone(kind operationKind, started time.Time, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	cm.m.Histogram(MetricOperationDuration, MetricLabels{
		"kind":   kind.String(),
		"result": result,
	}).Observe(time.Since(started).Seconds())
}
