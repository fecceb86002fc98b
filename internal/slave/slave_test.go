package slave

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-motion/internal/driver"
	"github.com/nerrad567/gray-logic-motion/internal/message"
	"github.com/nerrad567/gray-logic-motion/internal/netdata"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		address  string
		driver   string
		mode     string
		config   map[string]string
		wantErr  bool
		wantAddr message.Address
		wantType driver.Type
		wantMode netdata.ControlMode
	}{
		{
			name:     "defaults",
			address:  "10.0.0.2",
			wantAddr: message.Address{Host: "10.0.0.2", Port: message.DefaultPort},
			wantType: driver.TypeRemote,
			wantMode: netdata.ControlVelocity,
		},
		{
			name:     "explicit",
			address:  "drive-b:7000",
			driver:   "modbus",
			mode:     "torque",
			wantAddr: message.Address{Host: "drive-b", Port: 7000},
			wantType: driver.TypeModbus,
			wantMode: netdata.ControlTorque,
		},
		{name: "empty address", address: "", wantErr: true},
		{name: "unknown driver", address: "10.0.0.2", driver: "canbus", wantErr: true},
		{name: "unknown mode", address: "10.0.0.2", mode: "spin", wantErr: true},
		{name: "bad timeout", address: "10.0.0.2", config: map[string]string{"timeout": "soon"}, wantErr: true},
		{name: "bad max errors", address: "10.0.0.2", config: map[string]string{"max_errors": "-1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.address, tt.driver, tt.mode, tt.config)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSlave) {
					t.Fatalf("New() error = %v, want ErrInvalidSlave", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if s.Address != tt.wantAddr {
				t.Errorf("Address = %v, want %v", s.Address, tt.wantAddr)
			}
			if s.Driver != tt.wantType {
				t.Errorf("Driver = %v, want %v", s.Driver, tt.wantType)
			}
			if s.ControlMode != tt.wantMode {
				t.Errorf("ControlMode = %v, want %v", s.ControlMode, tt.wantMode)
			}
		})
	}
}

func TestSlave_ConfigOverrides(t *testing.T) {
	s, err := New("10.0.0.2", "", "", map[string]string{
		"timeout":          "0.25",
		"refresh_interval": "100ms",
		"max_errors":       "3",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := s.Timeout(); got != 250*time.Millisecond {
		t.Errorf("Timeout() = %v, want 250ms", got)
	}
	if got := s.RefreshInterval(); got != 100*time.Millisecond {
		t.Errorf("RefreshInterval() = %v, want 100ms", got)
	}
	if got := s.MaxErrors(); got != 3 {
		t.Errorf("MaxErrors() = %d, want 3", got)
	}

	plain, _ := New("10.0.0.3", "", "", nil)
	if plain.Timeout() != DefaultTimeout || plain.RefreshInterval() != DefaultRefreshInterval || plain.MaxErrors() != DefaultMaxErrors {
		t.Error("defaults not applied")
	}
}

func TestSlave_Identity(t *testing.T) {
	s, _ := New("10.0.0.2:7000", "", "", nil)

	if got := s.ID(); got != "10.0.0.2:7000" {
		t.Errorf("ID() = %q, want address while serial is unknown", got)
	}

	s = s.WithSerialnumber("SN-7")
	if got := s.ID(); got != "SN-7" {
		t.Errorf("ID() = %q, want SN-7", got)
	}

	for _, id := range []string{"SN-7", "10.0.0.2:7000", "10.0.0.2"} {
		if !s.Matches(id) {
			t.Errorf("Matches(%q) = false", id)
		}
	}
	for _, id := range []string{"", "SN-8", "10.0.0.3"} {
		if s.Matches(id) {
			t.Errorf("Matches(%q) = true", id)
		}
	}
}

func TestSlave_DriverConfig(t *testing.T) {
	s, _ := New("10.0.0.2:7000", "", "", map[string]string{"timeout": "2"})
	cfg := s.DriverConfig()
	if cfg.Host != "10.0.0.2" || cfg.Port != 7000 {
		t.Errorf("DriverConfig() address = %s", cfg.Address())
	}
	if cfg.Timeout != 2*time.Second {
		t.Errorf("DriverConfig().Timeout = %v, want 2s", cfg.Timeout)
	}
}

func TestForwardTable(t *testing.T) {
	for _, mode := range []netdata.ControlMode{
		netdata.ControlTorque, netdata.ControlEnhancedTorque,
		netdata.ControlVelocity, netdata.ControlPosition,
	} {
		table := ForwardTable(mode)
		if len(table) == 0 {
			t.Errorf("ForwardTable(%s) is empty", mode)
		}
		for _, fw := range table {
			if fw.SourceKey() == "" {
				t.Errorf("ForwardTable(%s) has a forward without source", mode)
			}
		}
	}

	table := ForwardTable(netdata.ControlVelocity)
	table[0].Dest = "changed"
	if ForwardTable(netdata.ControlVelocity)[0].Dest == "changed" {
		t.Error("ForwardTable() returned the shared table")
	}

	if ForwardTable(netdata.ControlMode(200)) != nil {
		t.Error("ForwardTable(unknown) should be nil")
	}
}

func TestSharedState(t *testing.T) {
	s := NewSharedState()
	if s.Tripped() {
		t.Fatal("new state is tripped")
	}

	var calls int
	s.OnFatal(func(error) { calls++ })

	first := errors.New("first")
	if !s.SetFatal(first) {
		t.Error("first SetFatal() = false")
	}
	if s.SetFatal(errors.New("second")) {
		t.Error("second SetFatal() = true")
	}
	if calls != 1 {
		t.Errorf("OnFatal callbacks = %d, want 1", calls)
	}
	if !errors.Is(s.Cause(), first) {
		t.Errorf("Cause() = %v, want the first cause", s.Cause())
	}

	s.Reset()
	if s.Tripped() {
		t.Error("Reset() left the state tripped")
	}

	s.SetFault(true)
	if !s.Tripped() || s.Fatal() {
		t.Error("a fault trips without being fatal")
	}
}

func TestBridge_FIFO(t *testing.T) {
	b := NewBridge(4)
	ctx := context.Background()
	done := make(chan struct{})

	for _, key := range []string{"a", "b", "c"} {
		if err := b.Put(ctx, NewGet(key)); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}
	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}

	for _, want := range []string{"a", "b", "c"} {
		r, ok := b.Receive(done, time.Second)
		if !ok {
			t.Fatalf("Receive() = false, want %s", want)
		}
		if r.Key != want {
			t.Errorf("Receive() key = %s, want %s", r.Key, want)
		}
	}
}

func TestBridge_ReceiveTimeoutAndStop(t *testing.T) {
	b := NewBridge(1)
	done := make(chan struct{})

	if _, ok := b.Receive(done, 10*time.Millisecond); ok {
		t.Error("Receive() on empty bridge = true")
	}

	close(done)
	if _, ok := b.Receive(done, time.Minute); ok {
		t.Error("Receive() after stop = true")
	}
}

func TestBridge_PutFullHonoursContext(t *testing.T) {
	b := NewBridge(1)
	if err := b.Put(context.Background(), NewGet("a")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := b.Put(ctx, NewGet("b")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Put() on full bridge error = %v, want deadline exceeded", err)
	}
}

func TestBridge_Drain(t *testing.T) {
	b := NewBridge(2)
	r := NewSet("a", 1.0)
	_ = b.Put(context.Background(), r)

	b.drain(ErrStopped)

	if _, err := r.Wait(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Wait() error = %v, want ErrStopped", err)
	}
	if b.Len() != 0 {
		t.Errorf("Len() after drain = %d", b.Len())
	}
}
