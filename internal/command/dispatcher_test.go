package command

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-motion/internal/machine"
	"github.com/nerrad567/gray-logic-motion/internal/message"
)

type panicCommand struct{}

func (panicCommand) Alias() string { return "/test/panic" }

func (panicCommand) Execute(context.Context, *message.Message) { panic("boom") }

func startDispatcher(t *testing.T, fm *fakeMachine, extra ...Executable) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(Options{Machine: fm, QueueSize: 4})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	if err := d.RegisterTimeoutReset(); err != nil {
		t.Fatalf("RegisterTimeoutReset() error = %v", err)
	}
	if err := d.Register(append(Commands(fm), extra...)...); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	d.Start()
	t.Cleanup(d.Stop)
	return d
}

func nextReply(t *testing.T, fm *fakeMachine) *message.Message {
	t.Helper()
	select {
	case r := <-fm.replies:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no reply")
		return nil
	}
}

func TestNewDispatcherNeedsMachine(t *testing.T) {
	if _, err := NewDispatcher(Options{}); err == nil {
		t.Error("NewDispatcher() without machine succeeded")
	}
}

func TestDispatcherReplies(t *testing.T) {
	fm := newFakeMachine()
	d := startDispatcher(t, fm)

	d.Handle(context.Background(), request(message.PathMachineGet, "machine:serialnumber"))
	r := nextReply(t, fm)
	if r.Path != message.PathMachineGet+message.SuffixOK || r.Receiver != masterAddr {
		t.Errorf("reply = %v", r)
	}

	// one filter per command plus the timeout reset
	if got, want := len(d.Router().Filters()), len(Commands(fm))+1; got != want {
		t.Errorf("filters = %d, want %d", got, want)
	}
}

func TestDispatcherBufferedOrder(t *testing.T) {
	fm := newFakeMachine()
	d := startDispatcher(t, fm)

	const n = 20
	for i := 0; i < n; i++ {
		d.Handle(context.Background(), request(message.PathMachineSet, "drive:position", i))
	}
	for i := 0; i < n; i++ {
		nextReply(t, fm)
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()
	if len(fm.sets) != n {
		t.Fatalf("sets = %d, want %d", len(fm.sets), n)
	}
	for i, s := range fm.sets {
		if s.value != i {
			t.Fatalf("set %d = %v, arrival order lost", i, s.value)
		}
	}
}

func TestDispatcherSyncedCommands(t *testing.T) {
	fm := newFakeMachine()
	d := startDispatcher(t, fm)

	for i := 1; i <= 3; i++ {
		d.Handle(context.Background(), request(message.PathMachineSlaveAdd, fmt.Sprintf("10.0.0.%d", 10+i)))
	}
	for i := 0; i < 3; i++ {
		if r := nextReply(t, fm); !r.IsOK() {
			t.Errorf("reply = %v", r)
		}
	}
	if got := len(fm.Slaves()); got != 3 {
		t.Errorf("slaves = %d, want 3", got)
	}
}

func TestDispatcherTimeoutReset(t *testing.T) {
	fm := newFakeMachine()
	d := startDispatcher(t, fm)

	d.Handle(context.Background(), request(message.PathSlavePing))
	nextReply(t, fm)
	if fm.resets != 0 {
		t.Fatalf("reset outside slave mode")
	}

	fm.setMode(machine.ModeSlave, masterAddr)
	d.Handle(context.Background(), request(message.PathSlavePing))
	nextReply(t, fm)

	other := request(message.PathSlavePing)
	other.Sender = message.Address{Host: "10.0.0.77", Port: message.DefaultPort}
	d.Handle(context.Background(), other)
	nextReply(t, fm)

	fm.mu.Lock()
	defer fm.mu.Unlock()
	if fm.resets != 1 {
		t.Errorf("resets = %d, want 1", fm.resets)
	}
}

func TestDispatcherRecoversPanic(t *testing.T) {
	fm := newFakeMachine()
	d := startDispatcher(t, fm, panicCommand{})

	d.Handle(context.Background(), request("/test/panic"))
	if r := nextReply(t, fm); !r.IsError() {
		t.Errorf("reply = %v", r)
	}

	d.Handle(context.Background(), request(message.PathSlavePing))
	if r := nextReply(t, fm); !r.IsOK() {
		t.Errorf("reply after panic = %v", r)
	}
}

func TestDispatcherStopped(t *testing.T) {
	fm := newFakeMachine()
	d := startDispatcher(t, fm)
	d.Stop()

	d.Handle(context.Background(), request(message.PathMachineSet, "drive:velocity", 1))
	r := nextReply(t, fm)
	if !r.IsError() || r.ErrorDescription() != ErrStopped.Error() {
		t.Errorf("reply = %v", r)
	}
}

func TestDispatcherNoReplyWithoutSender(t *testing.T) {
	fm := newFakeMachine()
	d := startDispatcher(t, fm)

	m := request(message.PathSlavePing)
	m.Sender = message.Address{}
	d.Handle(context.Background(), m)

	select {
	case r := <-fm.replies:
		t.Errorf("unexpected reply %v", r)
	case <-time.After(50 * time.Millisecond):
	}
}
