package correlation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-motion/internal/message"
)

// mockSender records sent messages and optionally answers them.
type mockSender struct {
	mu     sync.Mutex
	sent   []*message.Message
	err    error
	onSend func(m *message.Message)
}

func (s *mockSender) Send(_ context.Context, m *message.Message) error {
	s.mu.Lock()
	s.sent = append(s.sent, m)
	err, onSend := s.err, s.onSend
	s.mu.Unlock()
	if err == nil && onSend != nil {
		onSend(m)
	}
	return err
}

func (s *mockSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type recordingObserver struct {
	mu       sync.Mutex
	pending  int
	replies  int
	timeouts int
}

func (o *recordingObserver) ObservePending(n int) {
	o.mu.Lock()
	o.pending = n
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveReply(float64) {
	o.mu.Lock()
	o.replies++
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveTimeout() {
	o.mu.Lock()
	o.timeouts++
	o.mu.Unlock()
}

var (
	master = message.Address{Host: "10.0.0.1", Port: 6969}
	slave  = message.Address{Host: "10.0.0.2", Port: 6969}
)

func TestEngine_RequestResolvedOnce(t *testing.T) {
	sender := &mockSender{}
	e := New(Options{Sender: sender, Local: master})

	f, err := e.Send(context.Background(), message.New(message.PathSlaveGet, "machine:velocity").To(slave), true)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if f.Key() == "" || f.Request().UID != f.Key() {
		t.Fatalf("future key = %q, uid = %q; want an assigned uid", f.Key(), f.Request().UID)
	}
	if f.Request().Sender != master {
		t.Errorf("sender = %v, want local address", f.Request().Sender)
	}
	if e.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", e.Pending())
	}

	reply := f.Request().OK("machine:velocity", 12.5)
	if !e.Resolve(reply) {
		t.Fatal("Resolve() = false, want true")
	}
	if e.Resolve(reply) {
		t.Error("second Resolve() = true; a resolved future must be removed")
	}
	if e.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", e.Pending())
	}

	got, err := e.Wait(context.Background(), f)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if got != reply {
		t.Errorf("Wait() = %v, want the reply", got)
	}
}

func TestEngine_ResolveByPath(t *testing.T) {
	e := New(Options{Sender: &mockSender{}, Local: master, KeyByPath: true})

	f, err := e.Send(context.Background(), message.New("/version").To(slave), true)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if f.Key() != "/version" {
		t.Fatalf("Key() = %q, want /version", f.Key())
	}

	for _, path := range []string{"/version/other", "/versions"} {
		if e.Resolve(message.New(path)) {
			t.Errorf("Resolve(%s) = true, want false", path)
		}
	}
	if !e.Resolve(message.New("/version/reply", "1.2.0")) {
		t.Fatal("Resolve(/version/reply) = false, want true")
	}
	if _, err := f.Result(); err != nil {
		t.Errorf("Result() error = %v", err)
	}
}

func TestEngine_DuplicateFuture(t *testing.T) {
	e := New(Options{Sender: &mockSender{}, KeyByPath: true, Local: master})
	ctx := context.Background()

	if _, err := e.Send(ctx, message.New("/version").To(slave), true); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if _, err := e.Send(ctx, message.New("/version").To(slave), true); !errors.Is(err, ErrDuplicateFuture) {
		t.Errorf("second Send() error = %v, want ErrDuplicateFuture", err)
	}

	uid := New(Options{Sender: &mockSender{}, Local: master})
	m1 := message.New("/slave/get").To(slave)
	m1.UID = "fixed"
	m2 := message.New("/slave/set").To(slave)
	m2.UID = "fixed"
	if _, err := uid.Send(ctx, m1, true); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if _, err := uid.Send(ctx, m2, true); !errors.Is(err, ErrDuplicateFuture) {
		t.Errorf("Send() with reused uid error = %v, want ErrDuplicateFuture", err)
	}
}

func TestEngine_ErrorReply(t *testing.T) {
	sender := &mockSender{}
	e := New(Options{Sender: sender, Local: master})
	sender.onSend = func(m *message.Message) {
		go e.Resolve(m.Error(errors.New("velocity is read-only"), "machine:velocity"))
	}

	_, err := e.Request(context.Background(), message.New(message.PathSlaveSet, "machine:velocity", 1).To(slave))
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("Request() error = %v, want *RemoteError", err)
	}
	if remote.Path != message.PathSlaveSet || remote.Description != "velocity is read-only" {
		t.Errorf("RemoteError = %+v", remote)
	}
}

func TestEngine_Timeout(t *testing.T) {
	obs := &recordingObserver{}
	e := New(Options{Sender: &mockSender{}, Local: master, Timeout: 20 * time.Millisecond, Observer: obs})

	f, err := e.Send(context.Background(), message.New(message.PathSlavePing).To(slave), true)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	start := time.Now()
	_, err = e.Wait(context.Background(), f)
	if !errors.Is(err, ErrCommunicationTimeout) {
		t.Fatalf("Wait() error = %v, want ErrCommunicationTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Wait() returned after %v, before the timeout", elapsed)
	}

	// The late reply matches nothing.
	if e.Resolve(f.Request().OK()) {
		t.Error("late reply resolved a timed-out future")
	}
	if obs.timeouts != 1 || obs.pending != 0 {
		t.Errorf("observer = %+v, want 1 timeout and 0 pending", obs)
	}
}

func TestEngine_WaitContextCancelled(t *testing.T) {
	e := New(Options{Sender: &mockSender{}, Local: master, Timeout: time.Minute})
	f, err := e.Send(context.Background(), message.New(message.PathSlavePing).To(slave), true)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Wait(ctx, f); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
	if e.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", e.Pending())
	}
}

func TestEngine_SendFailure(t *testing.T) {
	sender := &mockSender{err: errors.New("broker unreachable")}
	e := New(Options{Sender: sender, Local: master})

	if _, err := e.Send(context.Background(), message.New(message.PathSlavePing).To(slave), true); err == nil {
		t.Fatal("Send() error = nil, want the transport error")
	}
	if e.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0 after a failed send", e.Pending())
	}
}

func TestEngine_OneWay(t *testing.T) {
	sender := &mockSender{}
	e := New(Options{Sender: sender, Local: master})

	f, err := e.Send(context.Background(), message.New(message.PathSlaveFree, "SN-1").To(slave), false)
	if err != nil || f != nil {
		t.Fatalf("Send(one-way) = %v, %v; want nil, nil", f, err)
	}
	if sender.count() != 1 || e.Pending() != 0 {
		t.Errorf("sent = %d, pending = %d; want 1, 0", sender.count(), e.Pending())
	}
	if _, err := e.Send(context.Background(), message.New(message.PathSlaveFree), false); !errors.Is(err, ErrNoReceiver) {
		t.Errorf("Send(no receiver) error = %v, want ErrNoReceiver", err)
	}
}

func TestEngine_Close(t *testing.T) {
	e := New(Options{Sender: &mockSender{}, Local: master, Timeout: time.Minute})
	f, err := e.Send(context.Background(), message.New(message.PathSlavePing).To(slave), true)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	e.Close()

	if _, err := e.Wait(context.Background(), f); !errors.Is(err, ErrClosed) {
		t.Errorf("Wait() error = %v, want ErrClosed", err)
	}
	if _, err := e.Send(context.Background(), message.New(message.PathSlavePing).To(slave), true); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close error = %v, want ErrClosed", err)
	}
}

func TestEngine_ConcurrentRequests(t *testing.T) {
	sender := &mockSender{}
	e := New(Options{Sender: sender, Local: master})
	sender.onSend = func(m *message.Message) {
		go e.Resolve(m.OK(m.Args...))
	}

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reply, err := e.Request(context.Background(), message.New(message.PathSlaveGet, i).To(slave))
			if err != nil {
				errs <- err
				return
			}
			if reply.Args[0] != i {
				errs <- errors.New("reply matched the wrong request")
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if e.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", e.Pending())
	}
}
