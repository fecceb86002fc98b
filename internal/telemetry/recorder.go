package telemetry

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-motion/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-motion/internal/machine"
	"github.com/nerrad567/gray-logic-motion/internal/message"
)

// Writer is the time-series side of the recorder. *influxdb.Client
// implements it.
type Writer interface {
	WriteSetpoint(slave, key string, value any)
	WritePingLatency(slave string, rtt time.Duration)
	WriteSlaveError(slave, op string, consecutive int)
	WriteFatal(cause string)
	WriteDriveValue(key string, value float64)
}

// Handler receives inbound messages. It matches transport.Handler.
type Handler interface {
	Handle(ctx context.Context, m *message.Message)
}

var modeNames = []string{
	machine.ModeStandalone.String(),
	machine.ModeMaster.String(),
	machine.ModeSlave.String(),
}

// Recorder forwards events to the configured backends.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Recorder struct {
	metrics *metrics.Metrics
	writer  Writer
}

// New creates a recorder. Both backends are optional.
func New(m *metrics.Metrics, w Writer) *Recorder {
	return &Recorder{metrics: m, writer: w}
}

// SetpointForwarded counts and records a value a watcher sent to a slave.
func (r *Recorder) SetpointForwarded(slave, key string, value any) {
	if r.metrics != nil {
		r.metrics.SetpointsForwarded.WithLabelValues(slave, key).Inc()
	}
	if r.writer != nil {
		r.writer.WriteSetpoint(slave, key, value)
	}
}

// SlaveError counts and records a failed slave operation.
func (r *Recorder) SlaveError(slave, op string, consecutive int) {
	if r.metrics != nil {
		r.metrics.SlaveErrors.WithLabelValues(slave, op).Inc()
	}
	if r.writer != nil {
		r.writer.WriteSlaveError(slave, op, consecutive)
	}
}

// QueueDepth sets the bridge queue gauge of a slave.
func (r *Recorder) QueueDepth(slave string, n int) {
	if r.metrics != nil {
		r.metrics.BridgeQueueDepth.WithLabelValues(slave).Set(float64(n))
	}
}

// ModeChanged marks mode as the active operating mode.
func (r *Recorder) ModeChanged(mode string) {
	if r.metrics != nil {
		r.metrics.SetOperatingMode(mode, modeNames)
	}
}

// SlaveCount sets the number of registered slaves.
func (r *Recorder) SlaveCount(n int) {
	if r.metrics != nil {
		r.metrics.Slaves.Set(float64(n))
	}
}

// PingLatency records the round trip of a slave ping.
func (r *Recorder) PingLatency(slave string, rtt time.Duration) {
	if r.writer != nil {
		r.writer.WritePingLatency(slave, rtt)
	}
}

// Fatal counts a trip of the fatal state.
func (r *Recorder) Fatal(cause string) {
	if r.metrics != nil {
		r.metrics.FatalTrips.Inc()
	}
	if r.writer != nil {
		r.writer.WriteFatal(cause)
	}
}

// ObserveDriver implements driver.Observer.
func (r *Recorder) ObserveDriver(op string, seconds float64, err error) {
	if r.metrics != nil {
		r.metrics.ObserveDriver(op, seconds, err)
	}
}

// ObservePending, ObserveReply and ObserveTimeout implement
// correlation.Observer.
func (r *Recorder) ObservePending(n int) {
	if r.metrics != nil {
		r.metrics.ObservePending(n)
	}
}

func (r *Recorder) ObserveReply(seconds float64) {
	if r.metrics != nil {
		r.metrics.ObserveReply(seconds)
	}
}

func (r *Recorder) ObserveTimeout() {
	if r.metrics != nil {
		r.metrics.ObserveTimeout()
	}
}

// CountMessages wraps next so every inbound message is counted by its
// base path.
func (r *Recorder) CountMessages(next Handler) Handler {
	return countingHandler{next: next, metrics: r.metrics}
}

type countingHandler struct {
	next    Handler
	metrics *metrics.Metrics
}

func (h countingHandler) Handle(ctx context.Context, m *message.Message) {
	if h.metrics != nil {
		h.metrics.MessagesReceived.WithLabelValues(m.BasePath()).Inc()
	}
	h.next.Handle(ctx, m)
}
