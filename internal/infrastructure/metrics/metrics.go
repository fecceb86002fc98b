package metrics

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "graylogic_motion"

// Metrics holds the Prometheus collectors of one motion node.
type Metrics struct {
	// Machine
	OperatingMode *prometheus.GaugeVec
	Slaves        prometheus.Gauge
	FatalTrips    prometheus.Counter

	// Slave synchronisation
	SetpointsForwarded *prometheus.CounterVec
	SlaveErrors        *prometheus.CounterVec
	BridgeQueueDepth   *prometheus.GaugeVec

	// Correlation
	PendingRequests prometheus.Gauge
	RequestTimeouts prometheus.Counter
	RequestDuration prometheus.Histogram

	// Driver
	DriverOperations *prometheus.CounterVec
	DriverDuration   *prometheus.HistogramVec

	// Messages
	MessagesReceived *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the collectors and registers them on a private registry.
func New(namespace string) (*Metrics, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		OperatingMode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "machine",
			Name:      "operating_mode",
			Help:      "Active operating mode (1 for the active mode, 0 otherwise)",
		}, []string{"mode"}),

		Slaves: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "machine",
			Name:      "slaves",
			Help:      "Number of registered slave machines",
		}),

		FatalTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "machine",
			Name:      "fatal_trips_total",
			Help:      "Number of times the fleet-wide fatal state was set",
		}),

		SetpointsForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "slave",
			Name:      "setpoints_forwarded_total",
			Help:      "Values forwarded to slaves by the watcher",
		}, []string{"slave", "key"}),

		SlaveErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "slave",
			Name:      "errors_total",
			Help:      "Failed driver operations on slaves",
		}, []string{"slave", "op"}),

		BridgeQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "slave",
			Name:      "bridge_queue_depth",
			Help:      "Requests waiting in a slave command bridge",
		}, []string{"slave"}),

		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "correlation",
			Name:      "pending_requests",
			Help:      "Requests awaiting a reply",
		}),

		RequestTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "correlation",
			Name:      "timeouts_total",
			Help:      "Requests whose reply did not arrive in time",
		}),

		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "correlation",
			Name:      "request_duration_seconds",
			Help:      "Time from request to reply",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),

		DriverOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "driver",
			Name:      "operations_total",
			Help:      "Driver get/set operations by result",
		}, []string{"op", "result"}),

		DriverDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "driver",
			Name:      "operation_duration_seconds",
			Help:      "Driver operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),

		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "received_total",
			Help:      "Inbound envelopes by path",
		}, []string{"path"}),

		registry: prometheus.NewRegistry(),
	}

	all := []prometheus.Collector{
		m.OperatingMode, m.Slaves, m.FatalTrips,
		m.SetpointsForwarded, m.SlaveErrors, m.BridgeQueueDepth,
		m.PendingRequests, m.RequestTimeouts, m.RequestDuration,
		m.DriverOperations, m.DriverDuration,
		m.MessagesReceived,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	var errs []error
	for _, c := range all {
		if err := m.registry.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	return m, nil
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SetOperatingMode marks mode as the only active mode.
func (m *Metrics) SetOperatingMode(mode string, all []string) {
	for _, name := range all {
		v := 0.0
		if name == mode {
			v = 1
		}
		m.OperatingMode.WithLabelValues(name).Set(v)
	}
}

// ObserveDriver records one driver operation.
func (m *Metrics) ObserveDriver(op string, seconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.DriverOperations.WithLabelValues(op, result).Inc()
	m.DriverDuration.WithLabelValues(op).Observe(seconds)
}

// ObservePending sets the number of requests awaiting a reply.
func (m *Metrics) ObservePending(n int) {
	m.PendingRequests.Set(float64(n))
}

// ObserveReply records the round trip of an answered request.
func (m *Metrics) ObserveReply(seconds float64) {
	m.RequestDuration.Observe(seconds)
}

// ObserveTimeout counts a request that was not answered in time.
func (m *Metrics) ObserveTimeout() {
	m.RequestTimeouts.Inc()
}
