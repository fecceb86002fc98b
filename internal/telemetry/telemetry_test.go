package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/gray-logic-motion/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-motion/internal/message"
)

type recordingWriter struct {
	mu        sync.Mutex
	setpoints []string
	pings     []time.Duration
	errors    []int
	fatal     []string
	drive     map[string]float64
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{drive: make(map[string]float64)}
}

func (w *recordingWriter) WriteSetpoint(slave, key string, _ any) {
	w.mu.Lock()
	w.setpoints = append(w.setpoints, slave+"/"+key)
	w.mu.Unlock()
}

func (w *recordingWriter) WritePingLatency(_ string, rtt time.Duration) {
	w.mu.Lock()
	w.pings = append(w.pings, rtt)
	w.mu.Unlock()
}

func (w *recordingWriter) WriteSlaveError(_, _ string, consecutive int) {
	w.mu.Lock()
	w.errors = append(w.errors, consecutive)
	w.mu.Unlock()
}

func (w *recordingWriter) WriteFatal(cause string) {
	w.mu.Lock()
	w.fatal = append(w.fatal, cause)
	w.mu.Unlock()
}

func (w *recordingWriter) WriteDriveValue(key string, value float64) {
	w.mu.Lock()
	w.drive[key] = value
	w.mu.Unlock()
}

func newMetrics(t *testing.T) *metrics.Metrics {
	t.Helper()
	m, err := metrics.New("test")
	if err != nil {
		t.Fatalf("metrics.New() error = %v", err)
	}
	return m
}

func TestRecorderFanOut(t *testing.T) {
	m := newMetrics(t)
	w := newRecordingWriter()
	r := New(m, w)

	r.SetpointForwarded("SN-2", "drive:velocity", 1.5)
	r.SetpointForwarded("SN-2", "drive:velocity", 2.5)
	r.SlaveError("SN-2", "watch", 3)
	r.QueueDepth("SN-2", 4)
	r.SlaveCount(2)
	r.ModeChanged("master")
	r.PingLatency("SN-2", 3*time.Millisecond)
	r.Fatal("slave SN-2 failed")

	if got := testutil.ToFloat64(m.SetpointsForwarded.WithLabelValues("SN-2", "drive:velocity")); got != 2 {
		t.Errorf("setpoints counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SlaveErrors.WithLabelValues("SN-2", "watch")); got != 1 {
		t.Errorf("slave errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BridgeQueueDepth.WithLabelValues("SN-2")); got != 4 {
		t.Errorf("queue depth = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.Slaves); got != 2 {
		t.Errorf("slaves = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.OperatingMode.WithLabelValues("master")); got != 1 {
		t.Errorf("master mode gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.OperatingMode.WithLabelValues("standalone")); got != 0 {
		t.Errorf("standalone mode gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.FatalTrips); got != 1 {
		t.Errorf("fatal trips = %v", got)
	}

	if len(w.setpoints) != 2 || len(w.pings) != 1 || len(w.errors) != 1 || len(w.fatal) != 1 {
		t.Errorf("writer got setpoints=%v pings=%v errors=%v fatal=%v", w.setpoints, w.pings, w.errors, w.fatal)
	}
}

func TestRecorderWithoutBackends(t *testing.T) {
	r := New(nil, nil)
	r.SetpointForwarded("a", "b", 1)
	r.SlaveError("a", "b", 1)
	r.QueueDepth("a", 1)
	r.SlaveCount(1)
	r.ModeChanged("slave")
	r.PingLatency("a", time.Millisecond)
	r.Fatal("x")
	r.ObserveDriver("get", 0.1, nil)
	r.ObservePending(1)
	r.ObserveReply(0.1)
	r.ObserveTimeout()
}

func TestRecorderObservers(t *testing.T) {
	m := newMetrics(t)
	r := New(m, nil)

	r.ObserveDriver("set", 0.01, errors.New("io"))
	r.ObservePending(3)
	r.ObserveTimeout()

	if got := testutil.ToFloat64(m.DriverOperations.WithLabelValues("set", "error")); got != 1 {
		t.Errorf("driver errors = %v", got)
	}
	if got := testutil.ToFloat64(m.PendingRequests); got != 3 {
		t.Errorf("pending = %v", got)
	}
	if got := testutil.ToFloat64(m.RequestTimeouts); got != 1 {
		t.Errorf("timeouts = %v", got)
	}
}

type handlerFunc func(ctx context.Context, m *message.Message)

func (f handlerFunc) Handle(ctx context.Context, m *message.Message) { f(ctx, m) }

func TestCountMessages(t *testing.T) {
	m := newMetrics(t)
	r := New(m, nil)

	var handled int
	h := r.CountMessages(handlerFunc(func(context.Context, *message.Message) { handled++ }))
	h.Handle(context.Background(), message.New("/slave/get/ok"))
	h.Handle(context.Background(), message.New("/slave/get"))

	if handled != 2 {
		t.Errorf("handled = %d, want 2", handled)
	}
	if got := testutil.ToFloat64(m.MessagesReceived.WithLabelValues("/slave/get")); got != 2 {
		t.Errorf("received /slave/get = %v, want 2", got)
	}
}

type mapSource map[string]any

func (s mapSource) Get(_ context.Context, key string) (any, error) {
	v, ok := s[key]
	if !ok {
		return nil, errors.New("unknown key")
	}
	return v, nil
}

func TestSamplerSample(t *testing.T) {
	w := newRecordingWriter()
	s := NewSampler(SamplerOptions{
		Source: mapSource{
			"drive:velocity": 12.5,
			"drive:position": int32(-40),
			"drive:enabled":  true,
			"drive:name":     "axis",
		},
		Writer: w,
		Keys:   []string{"drive:velocity", "drive:position", "drive:enabled", "drive:name", "drive:missing"},
	})

	s.Sample(context.Background())

	want := map[string]float64{"drive:velocity": 12.5, "drive:position": -40, "drive:enabled": 1}
	if len(w.drive) != len(want) {
		t.Fatalf("drive values = %v, want %v", w.drive, want)
	}
	for k, v := range want {
		if w.drive[k] != v {
			t.Errorf("%s = %v, want %v", k, w.drive[k], v)
		}
	}
}

func TestSamplerLoop(t *testing.T) {
	w := newRecordingWriter()
	s := NewSampler(SamplerOptions{
		Source:   mapSource{"drive:velocity": 1.0},
		Writer:   w,
		Keys:     []string{"drive:velocity"},
		Interval: 5 * time.Millisecond,
	})
	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for {
		w.mu.Lock()
		_, ok := w.drive["drive:velocity"]
		w.mu.Unlock()
		if ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sampler never wrote")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	s.Stop()
}
