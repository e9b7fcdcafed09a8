// Package metrics exposes hub client activity as Prometheus metrics.
//
// A nil *Collector is valid and records nothing, so the client can call it
// unconditionally.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "hubclient"

// Collector holds the client metrics of one device.
type Collector struct {
	queueDepth        *prometheus.GaugeVec
	completionsTotal  *prometheus.CounterVec
	completionLatency *prometheus.HistogramVec
	connectionState   prometheus.Gauge
	statusChanges     *prometheus.CounterVec
	connectAttempts   *prometheus.CounterVec
	incomingTotal     *prometheus.CounterVec
	uploadBytes       prometheus.Counter
	uploadsTotal      *prometheus.CounterVec
	doWorkDuration    prometheus.Histogram
}

// NewRegistry returns a registry carrying the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// New creates a collector labelled with deviceID and registers it with reg.
func New(reg prometheus.Registerer, deviceID string) (*Collector, error) {
	labels := prometheus.Labels{"device_id": deviceID}

	c := &Collector{
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "queue_depth",
			Help:        "Uncompleted operations per frame kind",
			ConstLabels: labels,
		}, []string{"kind"}),
		completionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "completions_total",
			Help:        "Completed operations by frame kind and result",
			ConstLabels: labels,
		}, []string{"kind", "result"}),
		completionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "completion_latency_seconds",
			Help:        "Time from enqueue to completion",
			ConstLabels: labels,
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "connection_state",
			Help:        "Current connection state (0=disconnected 1=connecting 2=connected 3=retrying 4=expired)",
			ConstLabels: labels,
		}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "connection_status_changes_total",
			Help:        "Reported connection status changes",
			ConstLabels: labels,
		}, []string{"state", "reason"}),
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "connect_attempts_total",
			Help:        "Connect attempts by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		incomingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "incoming_total",
			Help:        "Inbound items polled from the transport",
			ConstLabels: labels,
		}, []string{"type"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "upload_bytes_total",
			Help:        "Acknowledged blob upload bytes",
			ConstLabels: labels,
		}),
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "uploads_total",
			Help:        "Finished blob uploads by result",
			ConstLabels: labels,
		}, []string{"result"}),
		doWorkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "do_work_duration_seconds",
			Help:        "Duration of one DoWork call",
			ConstLabels: labels,
			Buckets:     []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
	}

	if reg != nil {
		var errs []error
		for _, col := range c.collectors() {
			if err := reg.Register(col); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return c, nil
}

// Unregister removes the collector's metrics from reg.
func (c *Collector) Unregister(reg prometheus.Registerer) {
	if c == nil || reg == nil {
		return
	}
	for _, col := range c.collectors() {
		reg.Unregister(col)
	}
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.queueDepth,
		c.completionsTotal,
		c.completionLatency,
		c.connectionState,
		c.statusChanges,
		c.connectAttempts,
		c.incomingTotal,
		c.uploadBytes,
		c.uploadsTotal,
		c.doWorkDuration,
	}
}

// SetQueueDepth records the number of uncompleted operations of kind.
func (c *Collector) SetQueueDepth(kind string, n int) {
	if c == nil {
		return
	}
	c.queueDepth.WithLabelValues(kind).Set(float64(n))
}

// ObserveCompletion counts a completed operation.
func (c *Collector) ObserveCompletion(kind, result string, latency time.Duration) {
	if c == nil {
		return
	}
	c.completionsTotal.WithLabelValues(kind, result).Inc()
	c.completionLatency.WithLabelValues(kind).Observe(latency.Seconds())
}

// SetConnectionState records the numeric connection state.
func (c *Collector) SetConnectionState(state uint8) {
	if c == nil {
		return
	}
	c.connectionState.Set(float64(state))
}

// ObserveStatus counts a reported connection status.
func (c *Collector) ObserveStatus(state, reason string) {
	if c == nil {
		return
	}
	c.statusChanges.WithLabelValues(state, reason).Inc()
}

// ObserveConnectAttempt counts a connect attempt.
func (c *Collector) ObserveConnectAttempt(err error) {
	if c == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.connectAttempts.WithLabelValues(outcome).Inc()
}

// ObserveIncoming counts an inbound item.
func (c *Collector) ObserveIncoming(itemType string) {
	if c == nil {
		return
	}
	c.incomingTotal.WithLabelValues(itemType).Inc()
}

// AddUploadBytes counts acknowledged upload bytes.
func (c *Collector) AddUploadBytes(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.uploadBytes.Add(float64(n))
}

// ObserveUpload counts a finished upload.
func (c *Collector) ObserveUpload(result string) {
	if c == nil {
		return
	}
	c.uploadsTotal.WithLabelValues(result).Inc()
}

// ObserveDoWork records the duration of one DoWork call.
func (c *Collector) ObserveDoWork(d time.Duration) {
	if c == nil {
		return
	}
	c.doWorkDuration.Observe(d.Seconds())
}
