package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a, err := New("")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	b, err := New("")
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}

	a.FatalTrips.Inc()
	if got := testutil.ToFloat64(b.FatalTrips); got != 0 {
		t.Errorf("second instance FatalTrips = %v, want 0", got)
	}
}

func TestSetOperatingMode(t *testing.T) {
	m, err := New("test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	all := []string{"standalone", "master", "slave"}
	m.SetOperatingMode("master", all)

	if got := testutil.ToFloat64(m.OperatingMode.WithLabelValues("master")); got != 1 {
		t.Errorf("master = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.OperatingMode.WithLabelValues("standalone")); got != 0 {
		t.Errorf("standalone = %v, want 0", got)
	}
}

func TestObserveDriver(t *testing.T) {
	m, err := New("test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	m.ObserveDriver("get", 0.002, nil)
	m.ObserveDriver("get", 0.002, errors.New("timeout"))
	m.ObserveDriver("set", 0.001, nil)

	if got := testutil.ToFloat64(m.DriverOperations.WithLabelValues("get", "error")); got != 1 {
		t.Errorf("get errors = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.DriverOperations); got != 3 {
		t.Errorf("operation series = %d, want 3", got)
	}
}

func TestHandler(t *testing.T) {
	m, err := New("test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	m.Slaves.Set(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_machine_slaves 2") {
		t.Error("exposition does not contain the slave gauge")
	}
}

func TestCorrelationObserver(t *testing.T) {
	m, err := New("test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	m.ObservePending(3)
	m.ObserveReply(0.004)
	m.ObserveTimeout()
	m.ObserveTimeout()

	if got := testutil.ToFloat64(m.PendingRequests); got != 3 {
		t.Errorf("PendingRequests = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.RequestTimeouts); got != 2 {
		t.Errorf("RequestTimeouts = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.RequestDuration); got != 1 {
		t.Errorf("RequestDuration series = %d, want 1", got)
	}
}
