package machine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-motion/internal/correlation"
	"github.com/nerrad567/gray-logic-motion/internal/driver"
	"github.com/nerrad567/gray-logic-motion/internal/message"
	"github.com/nerrad567/gray-logic-motion/internal/netdata"
	"github.com/nerrad567/gray-logic-motion/internal/slave"
)

type write struct {
	key   string
	value any
}

// fakeDriver is a drive answering from a value map. It also answers ping
// and serial number queries so it can stand in for a slave.
type fakeDriver struct {
	mu      sync.Mutex
	values  map[string]any
	writes  []write
	serial  string
	failSet map[string]error
	closed  bool
}

func newFakeDriver(serial string) *fakeDriver {
	return &fakeDriver{
		values: map[string]any{
			"velocity":     100.0,
			"acceleration": 10.0,
			"deceleration": 20.0,
		},
		serial:  serial,
		failSet: make(map[string]error),
	}
}

func (d *fakeDriver) Connect(context.Context) error { return nil }

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) Get(_ context.Context, key string) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.values[key]
	if !ok {
		return nil, errors.New("unknown key " + key)
	}
	return v, nil
}

func (d *fakeDriver) Set(_ context.Context, key string, value any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failSet[key]; err != nil {
		return err
	}
	d.writes = append(d.writes, write{key, value})
	d.values[key] = value
	return nil
}

func (d *fakeDriver) Attributes() []netdata.Attribute { return nil }

func (d *fakeDriver) Ping(context.Context) (time.Duration, error) { return time.Millisecond, nil }

func (d *fakeDriver) Serialnumber(context.Context) (string, error) { return d.serial, nil }

func (d *fakeDriver) wrote(key string, value any) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range d.writes {
		if w.key == key && w.value == value {
			return true
		}
	}
	return false
}

func (d *fakeDriver) lastWrite(key string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.writes) - 1; i >= 0; i-- {
		if d.writes[i].key == key {
			return d.writes[i].value, true
		}
	}
	return nil, false
}

// recordingSender stands in for the transport.
type recordingSender struct {
	mu   sync.Mutex
	sent []*message.Message
}

func (s *recordingSender) Send(_ context.Context, m *message.Message) error {
	s.mu.Lock()
	s.sent = append(s.sent, m)
	s.mu.Unlock()
	return nil
}

func (s *recordingSender) messages() []*message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*message.Message(nil), s.sent...)
}

// memoryRepo is an in-memory slave.Repository.
type memoryRepo struct {
	mu     sync.Mutex
	slaves []slave.Slave
}

func (r *memoryRepo) Save(_ context.Context, s slave.Slave) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, known := range r.slaves {
		if known.Address == s.Address {
			r.slaves[i] = s
			return nil
		}
	}
	r.slaves = append(r.slaves, s)
	return nil
}

func (r *memoryRepo) Get(_ context.Context, addr message.Address) (slave.Slave, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slaves {
		if s.Address == addr {
			return s, nil
		}
	}
	return slave.Slave{}, slave.ErrNotFound
}

func (r *memoryRepo) FindBySerialnumber(_ context.Context, sn string) (slave.Slave, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slaves {
		if sn != "" && s.Serialnumber == sn {
			return s, nil
		}
	}
	return slave.Slave{}, slave.ErrNotFound
}

func (r *memoryRepo) List(context.Context) ([]slave.Slave, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]slave.Slave(nil), r.slaves...), nil
}

func (r *memoryRepo) Delete(_ context.Context, addr message.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.slaves {
		if s.Address == addr {
			r.slaves = append(r.slaves[:i], r.slaves[i+1:]...)
			return nil
		}
	}
	return slave.ErrNotFound
}

type recordingTelemetry struct {
	mu    sync.Mutex
	modes []string
	pings int
	fatal []string
}

func (r *recordingTelemetry) SetpointForwarded(string, string, any) {}
func (r *recordingTelemetry) SlaveError(string, string, int)        {}
func (r *recordingTelemetry) QueueDepth(string, int)                {}
func (r *recordingTelemetry) SlaveCount(int)                        {}

func (r *recordingTelemetry) ModeChanged(mode string) {
	r.mu.Lock()
	r.modes = append(r.modes, mode)
	r.mu.Unlock()
}

func (r *recordingTelemetry) PingLatency(string, time.Duration) {
	r.mu.Lock()
	r.pings++
	r.mu.Unlock()
}

func (r *recordingTelemetry) Fatal(cause string) {
	r.mu.Lock()
	r.fatal = append(r.fatal, cause)
	r.mu.Unlock()
}

// fixture is a machine wired to fakes. Slave drivers are created per
// address by the registry.
type fixture struct {
	m         *Machine
	local     *fakeDriver
	sender    *recordingSender
	repo      *memoryRepo
	telemetry *recordingTelemetry

	mu     sync.Mutex
	remote map[string]*fakeDriver
}

var selfAddr = message.Address{Host: "10.0.0.1", Port: message.DefaultPort}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		local:     newFakeDriver("SN-MASTER"),
		sender:    &recordingSender{},
		repo:      &memoryRepo{},
		telemetry: &recordingTelemetry{},
		remote:    make(map[string]*fakeDriver),
	}

	registry := driver.NewRegistry()
	registry.Register(driver.TypeRemote, func(cfg driver.Config) (driver.Driver, error) {
		return f.remoteDriver(cfg.Address()), nil
	})

	opts.Serialnumber = "SN-MASTER"
	opts.Address = selfAddr
	opts.Driver = f.local
	opts.Drivers = registry
	opts.Engine = correlation.New(correlation.Options{Sender: f.sender, Local: selfAddr, Timeout: 50 * time.Millisecond})
	opts.Repository = f.repo
	opts.Telemetry = f.telemetry

	m, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { m.Stop() }) //nolint:errcheck // test cleanup
	f.m = m
	return f
}

// remoteDriver returns the driver of the slave at addr, creating it with
// a serial number derived from the address.
func (f *fixture) remoteDriver(addr string) *fakeDriver {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.remote[addr]
	if !ok {
		d = newFakeDriver("SN-" + addr)
		f.remote[addr] = d
	}
	return d
}

func (f *fixture) addSlave(t *testing.T, address string) slave.Slave {
	t.Helper()
	s, err := slave.New(address, "", "velocity", map[string]string{"refresh_interval": "10ms"})
	if err != nil {
		t.Fatalf("slave.New() error = %v", err)
	}
	added, err := f.m.AddSlave(context.Background(), s)
	if err != nil {
		t.Fatalf("AddSlave() error = %v", err)
	}
	return added
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMachine_GetRouting(t *testing.T) {
	f := newFixture(t, Options{Version: "1.2.3"})
	ctx := context.Background()

	tests := []struct {
		key  string
		want any
	}{
		{"machine:velocity", 100.0},
		{"drive:acceleration", 10.0},
		{"machine:operating_mode", "standalone"},
		{"machine:serialnumber", "SN-MASTER"},
		{"machine:address", "10.0.0.1:6969"},
	}
	for _, tt := range tests {
		got, err := f.m.Get(ctx, tt.key)
		if err != nil {
			t.Errorf("Get(%s) error = %v", tt.key, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Get(%s) = %v, want %v", tt.key, got, tt.want)
		}
	}

	if _, err := f.m.Get(ctx, "machine:slaves"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Get(machine:slaves) in standalone error = %v, want ErrUnknownKey", err)
	}
	if _, err := f.m.Get(ctx, "velocity"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Get(velocity) error = %v, want ErrUnknownKey", err)
	}

	infos, err := f.m.Get(ctx, "machine:infos")
	if err != nil {
		t.Fatalf("Get(machine:infos) error = %v", err)
	}
	if list, ok := infos.([]any); !ok || len(list) != 4 || list[2] != "1.2.3" {
		t.Errorf("Get(machine:infos) = %v", infos)
	}
}

func TestMachine_SetRouting(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	if err := f.m.Set(ctx, "machine:velocity_ref", 12.5); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !f.local.wrote("velocity_ref", 12.5) {
		t.Error("machine:velocity_ref was not written to the drive")
	}

	if err := f.m.Set(ctx, "machine:serialnumber", "SN-X"); !errors.Is(err, driver.ErrAccess) {
		t.Errorf("Set(machine:serialnumber) error = %v, want access error", err)
	}
	var ro *driver.ReadOnlyError
	if err := f.m.Set(ctx, "machine:address", "x"); !errors.As(err, &ro) {
		t.Errorf("Set(machine:address) error = %v, want ReadOnlyError", err)
	}
}

func TestMachine_MasterNeedsSlaves(t *testing.T) {
	f := newFixture(t, Options{})

	err := f.m.SetOperatingMode(context.Background(), ModeMaster, "")
	if !errors.Is(err, ErrMachine) {
		t.Fatalf("SetOperatingMode(master) error = %v, want ErrMachine", err)
	}
	if f.m.Mode() != ModeStandalone {
		t.Errorf("Mode() = %s, want standalone", f.m.Mode())
	}
}

func TestMachine_SlaveMode(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	if err := f.m.SetOperatingMode(ctx, ModeSlave, ""); !errors.Is(err, ErrMachine) {
		t.Errorf("slave mode without master error = %v, want ErrMachine", err)
	}

	if err := f.m.Set(ctx, "machine:operating_mode", []any{"slave", "10.0.0.9:7000"}); err != nil {
		t.Fatalf("Set(operating_mode) error = %v", err)
	}
	if f.m.Mode() != ModeSlave {
		t.Fatalf("Mode() = %s, want slave", f.m.Mode())
	}
	if got, _ := f.m.Get(ctx, "machine:master"); got != "10.0.0.9" {
		t.Errorf("machine:master = %v", got)
	}
	if got, _ := f.m.Get(ctx, "machine:master_port"); got != int64(7000) {
		t.Errorf("machine:master_port = %v", got)
	}

	before := len(f.sender.messages())
	if err := f.m.SetOperatingMode(ctx, ModeSlave, "10.0.0.9:7000"); err != nil {
		t.Fatalf("re-entering slave mode error = %v", err)
	}
	if len(f.sender.messages()) != before {
		t.Error("re-entering the active mode sent messages")
	}

	if err := f.m.SetOperatingMode(ctx, ModeStandalone, ""); err != nil {
		t.Fatalf("SetOperatingMode(standalone) error = %v", err)
	}
	if !f.m.Master().IsZero() {
		t.Errorf("Master() = %v after leaving slave mode", f.m.Master())
	}

	sent := f.sender.messages()
	if len(sent) != before+1 {
		t.Fatalf("sent %d messages, want the /slave/free notification", len(sent)-before)
	}
	free := sent[len(sent)-1]
	if free.Path != message.PathSlaveFree || free.Receiver.Host != "10.0.0.9" || free.Args[0] != "SN-MASTER" {
		t.Errorf("free notification = %v", free)
	}
}

func TestMachine_ReleaseFromMaster(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_ = f.m.SetOperatingMode(ctx, ModeSlave, "10.0.0.9")

	if err := f.m.ReleaseFromMaster(message.Address{Host: "10.0.0.8", Port: 6969}); !errors.Is(err, ErrMachine) {
		t.Errorf("release by a stranger error = %v, want ErrMachine", err)
	}
	if err := f.m.ReleaseFromMaster(message.Address{Host: "10.0.0.9", Port: 6969}); err != nil {
		t.Fatalf("ReleaseFromMaster() error = %v", err)
	}
	if f.m.Mode() != ModeStandalone {
		t.Errorf("Mode() = %s, want standalone", f.m.Mode())
	}
	if len(f.sender.messages()) != 0 {
		t.Error("release notified the master back")
	}
}

func TestMachine_AddSlave(t *testing.T) {
	f := newFixture(t, Options{})

	added := f.addSlave(t, "10.0.0.2")
	if added.Serialnumber != "SN-10.0.0.2:6969" {
		t.Errorf("serial number = %q, want the one the slave reported", added.Serialnumber)
	}
	if stored, _ := f.repo.List(context.Background()); len(stored) != 1 {
		t.Errorf("repository holds %d slaves, want 1", len(stored))
	}
	if f.telemetry.pings != 1 {
		t.Errorf("ping latency recorded %d times, want 1", f.telemetry.pings)
	}

	dup, _ := slave.New("10.0.0.2", "", "", nil)
	if _, err := f.m.AddSlave(context.Background(), dup); !errors.Is(err, ErrMachine) {
		t.Errorf("duplicate AddSlave() error = %v, want ErrMachine", err)
	}

	if _, err := f.m.SlaveMachine("SN-10.0.0.2:6969"); err != nil {
		t.Errorf("SlaveMachine(serial) error = %v", err)
	}
	if _, err := f.m.SlaveMachine("10.0.0.7"); !errors.Is(err, slave.ErrNotFound) {
		t.Errorf("SlaveMachine(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestMachine_AddSlaveSerialMismatch(t *testing.T) {
	f := newFixture(t, Options{})
	s, _ := slave.New("10.0.0.2", "", "", nil)
	s = s.WithSerialnumber("SN-OTHER")

	if _, err := f.m.AddSlave(context.Background(), s); !errors.Is(err, slave.ErrSerialMismatch) {
		t.Errorf("AddSlave() error = %v, want ErrSerialMismatch", err)
	}
	if len(f.m.Slaves()) != 0 {
		t.Error("mismatching slave was registered")
	}
}

func TestMachine_AddSlaveRefusedInSlaveMode(t *testing.T) {
	f := newFixture(t, Options{})
	_ = f.m.SetOperatingMode(context.Background(), ModeSlave, "10.0.0.9")

	s, _ := slave.New("10.0.0.2", "", "", nil)
	if _, err := f.m.AddSlave(context.Background(), s); !errors.Is(err, ErrMachine) {
		t.Errorf("AddSlave() in slave mode error = %v, want ErrMachine", err)
	}
}

func TestMachine_MasterMode(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.addSlave(t, "10.0.0.2")
	f.addSlave(t, "10.0.0.3")

	if err := f.m.SetOperatingMode(ctx, ModeMaster, ""); err != nil {
		t.Fatalf("SetOperatingMode(master) error = %v", err)
	}

	for _, addr := range []string{"10.0.0.2:6969", "10.0.0.3:6969"} {
		d := f.remoteDriver(addr)
		v, ok := d.lastWrite(slave.KeyOperatingMode)
		if !ok {
			t.Fatalf("%s was not enslaved", addr)
		}
		args, _ := v.([]any)
		if len(args) != 2 || args[0] != "slave" || args[1] != selfAddr.String() {
			t.Errorf("%s enslaved with %v", addr, v)
		}
		waitFor(t, "velocity forwarded to "+addr, func() bool {
			return d.wrote("machine:velocity_ref", 100.0)
		})
	}

	slaves, err := f.m.Get(ctx, "machine:slaves")
	if err != nil {
		t.Fatalf("Get(machine:slaves) error = %v", err)
	}
	if list, _ := slaves.([]any); len(list) != 2 {
		t.Errorf("machine:slaves = %v", slaves)
	}

	if err := f.m.SetOperatingMode(ctx, ModeStandalone, ""); err != nil {
		t.Fatalf("SetOperatingMode(standalone) error = %v", err)
	}
	for _, sm := range f.m.SlaveMachines() {
		if sm.Watching() {
			t.Errorf("%s still watching after leaving master mode", sm.Slave().ID())
		}
	}
}

func TestMachine_EnslaveFailureStaysStandalone(t *testing.T) {
	f := newFixture(t, Options{})
	f.addSlave(t, "10.0.0.2")
	f.addSlave(t, "10.0.0.3")
	f.remoteDriver("10.0.0.3:6969").failSet[slave.KeyOperatingMode] = errors.New("unreachable")

	err := f.m.SetOperatingMode(context.Background(), ModeMaster, "")
	if !errors.Is(err, ErrMachine) {
		t.Fatalf("SetOperatingMode(master) error = %v, want ErrMachine", err)
	}
	if f.m.Mode() != ModeStandalone {
		t.Errorf("Mode() = %s, want standalone", f.m.Mode())
	}

	// 10.0.0.2 was enslaved before 10.0.0.3 failed and must be released.
	first := f.remoteDriver("10.0.0.2:6969")
	if !first.wrote(slave.KeyOperatingMode, ModeStandalone.String()) {
		t.Error("enslaved slave was not returned to standalone")
	}
	if v, _ := first.lastWrite(slave.KeyOperatingMode); v != ModeStandalone.String() {
		t.Errorf("last operating_mode written to 10.0.0.2 = %v, want standalone", v)
	}
	if f.remoteDriver("10.0.0.3:6969").wrote(slave.KeyOperatingMode, ModeStandalone.String()) {
		t.Error("slave that refused enslaving was sent standalone")
	}
}

func TestMachine_MasterPropagatesEnable(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.addSlave(t, "10.0.0.2")
	if err := f.m.SetOperatingMode(ctx, ModeMaster, ""); err != nil {
		t.Fatalf("SetOperatingMode(master) error = %v", err)
	}

	if err := f.m.Set(ctx, "machine:command:enable", 1); err != nil {
		t.Fatalf("Set(enable) error = %v", err)
	}
	if !f.local.wrote("command:enable", 1) {
		t.Error("local drive was not enabled")
	}
	if !f.remoteDriver("10.0.0.2:6969").wrote(slave.KeyEnable, true) {
		t.Error("enable was not propagated to the slave")
	}
}

func TestMachine_DriveErrorDisablesSlaves(t *testing.T) {
	f := newFixture(t, Options{RefreshInterval: 10 * time.Millisecond})
	ctx := context.Background()
	f.addSlave(t, "10.0.0.2")
	if err := f.m.SetOperatingMode(ctx, ModeMaster, ""); err != nil {
		t.Fatalf("SetOperatingMode(master) error = %v", err)
	}
	remote := f.remoteDriver("10.0.0.2:6969")

	f.local.mu.Lock()
	f.local.values["status:error"] = true
	f.local.mu.Unlock()

	waitFor(t, "fault flag", f.m.State().Fault)
	waitFor(t, "slave disable", func() bool {
		v, ok := remote.lastWrite(slave.KeyEnable)
		return ok && v == false
	})
	if f.m.State().Fatal() {
		t.Error("a drive error set the fatal state")
	}

	f.local.mu.Lock()
	f.local.values["status:error"] = false
	f.local.mu.Unlock()
	waitFor(t, "fault cleared", func() bool { return !f.m.State().Fault() })
}

func TestMachine_FatalRefusesEnable(t *testing.T) {
	f := newFixture(t, Options{})
	f.m.State().SetFatal(errors.New("slave lost"))

	if !f.local.wrote("command:enable", false) {
		t.Error("fatal state did not disable the local drive")
	}
	if len(f.telemetry.fatal) != 1 {
		t.Errorf("fatal recorded %d times, want 1", len(f.telemetry.fatal))
	}

	err := f.m.Set(context.Background(), "drive:command:enable", true)
	if !errors.Is(err, ErrFatal) {
		t.Errorf("Set(enable) while fatal error = %v, want ErrFatal", err)
	}

	f.m.ResetFatal()
	if err := f.m.Set(context.Background(), "drive:command:enable", true); err != nil {
		t.Errorf("Set(enable) after reset error = %v", err)
	}
}

func TestMachine_SlaveTimeout(t *testing.T) {
	f := newFixture(t, Options{RefreshInterval: 5 * time.Millisecond, SlaveTimeout: 30 * time.Millisecond})
	ctx := context.Background()
	f.local.mu.Lock()
	f.local.values["command:enable"] = true
	f.local.mu.Unlock()

	if err := f.m.SetOperatingMode(ctx, ModeSlave, "10.0.0.9"); err != nil {
		t.Fatalf("SetOperatingMode(slave) error = %v", err)
	}

	waitFor(t, "master timeout", f.m.TimedOut)
	if !f.local.wrote("command:enable", false) {
		t.Fatal("drive was not disabled after the master timeout")
	}

	if err := f.m.Set(ctx, "machine:velocity_ref", 5.0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if v, _ := f.local.lastWrite("command:enable"); v != true {
		t.Error("next command did not re-enable the drive")
	}
	if f.m.TimedOut() {
		t.Error("TimedOut() still set after a command")
	}
}

func TestMachine_RemoveSlave(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.addSlave(t, "10.0.0.2")
	f.addSlave(t, "10.0.0.3")
	_ = f.m.SetOperatingMode(ctx, ModeMaster, "")

	if err := f.m.RemoveSlave(ctx, "10.0.0.2"); err != nil {
		t.Fatalf("RemoveSlave() error = %v", err)
	}
	if got := f.m.Slaves(); len(got) != 1 || got[0].Address.Host != "10.0.0.3" {
		t.Errorf("Slaves() = %v", got)
	}
	if stored, _ := f.repo.List(ctx); len(stored) != 1 {
		t.Errorf("repository holds %d slaves, want 1", len(stored))
	}
	if v, _ := f.remoteDriver("10.0.0.2:6969").lastWrite(slave.KeyOperatingMode); v != "standalone" {
		t.Errorf("removed slave operating mode = %v, want standalone", v)
	}

	if err := f.m.RemoveSlave(ctx, "10.0.0.2"); !errors.Is(err, slave.ErrNotFound) {
		t.Errorf("second RemoveSlave() error = %v, want ErrNotFound", err)
	}
}

func TestMachine_LoadSlaves(t *testing.T) {
	f := newFixture(t, Options{})
	stored, _ := slave.New("10.0.0.2", "", "", nil)
	_ = f.repo.Save(context.Background(), stored)

	static, _ := slave.New("10.0.0.3", "", "", nil)
	again, _ := slave.New("10.0.0.2", "", "", nil)

	if err := f.m.LoadSlaves(context.Background(), []slave.Slave{static, again}); err != nil {
		t.Fatalf("LoadSlaves() error = %v", err)
	}
	if got := f.m.Slaves(); len(got) != 2 {
		t.Errorf("Slaves() = %v, want 2 slaves", got)
	}
}

type recordingHandler struct {
	mu   sync.Mutex
	msgs []*message.Message
}

func (h *recordingHandler) Handle(_ context.Context, m *message.Message) {
	h.mu.Lock()
	h.msgs = append(h.msgs, m)
	h.mu.Unlock()
}

func TestMachine_Handle(t *testing.T) {
	f := newFixture(t, Options{})
	handler := &recordingHandler{}
	f.m.SetHandler(handler)
	ctx := context.Background()

	req := message.New(message.PathSlavePing).To(message.Address{Host: "10.0.0.2", Port: 6969})
	fut, err := f.m.Engine().Send(ctx, req, true)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	f.m.Handle(ctx, req.OK())
	if reply, err := fut.Result(); err != nil || reply == nil {
		t.Errorf("future result = %v, %v, want the reply", reply, err)
	}

	cmd := message.New(message.PathMachineGet, "machine:velocity")
	f.m.Handle(ctx, cmd)
	if len(handler.msgs) != 1 || handler.msgs[0] != cmd {
		t.Errorf("handler received %v, want the unmatched command", handler.msgs)
	}
}

func TestMachine_Reply(t *testing.T) {
	f := newFixture(t, Options{})
	cmd := message.New(message.PathMachineGet, "machine:velocity")
	cmd.Sender = message.Address{Host: "10.0.0.5", Port: 6969}

	if err := f.m.Reply(context.Background(), cmd); err != nil {
		t.Fatalf("Reply() without answer error = %v", err)
	}
	if len(f.sender.messages()) != 0 {
		t.Fatal("Reply() sent without an answer")
	}

	cmd.Answer = cmd.OK("machine:velocity", 100.0)
	if err := f.m.Reply(context.Background(), cmd); err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	sent := f.sender.messages()
	if len(sent) != 1 || sent[0].Path != message.PathMachineGet+message.SuffixOK {
		t.Errorf("sent = %v", sent)
	}
}

func TestMachine_Status(t *testing.T) {
	f := newFixture(t, Options{})
	f.addSlave(t, "10.0.0.2")

	st := f.m.Status()
	if st.OperatingMode != "standalone" || len(st.Slaves) != 1 {
		t.Errorf("Status() = %+v", st)
	}
	if st.Slaves[0].ID != "SN-10.0.0.2:6969" {
		t.Errorf("slave id = %s", st.Slaves[0].ID)
	}
}
