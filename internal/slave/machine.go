package slave

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-motion/internal/driver"
	"github.com/nerrad567/gray-logic-motion/internal/message"
)

// Keys written on slaves.
const (
	KeyEnable        = "machine:command:enable"
	KeyControlMode   = "machine:command:control_mode"
	KeyOperatingMode = "machine:operating_mode"
	KeySerialnumber  = "machine:serialnumber"
)

// stopTimeout bounds the wait for the loops in Stop.
const stopTimeout = 5 * time.Second

// ValueProvider reads the local values a master forwards.
type ValueProvider interface {
	Get(ctx context.Context, key string) (any, error)
}

// Telemetry receives slave synchronisation events.
type Telemetry interface {
	SetpointForwarded(slave, key string, value any)
	SlaveError(slave, op string, consecutive int)
	QueueDepth(slave string, n int)
}

// Logger is the optional logger of a SlaveMachine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// serialnumberer is implemented by drivers that can identify their drive.
type serialnumberer interface {
	Serialnumber(ctx context.Context) (string, error)
}

// Options configures a SlaveMachine.
type Options struct {
	Slave  Slave
	Driver driver.Driver

	// State is shared by every SlaveMachine of the process.
	State *SharedState

	// Values provides the master's local values for the watcher.
	Values ValueProvider

	Telemetry  Telemetry
	Logger     Logger
	BridgeSize int
}

// SlaveMachine drives one slave. Three loops run while it is started:
//
//   - the bridge loop executes queued driver operations in FIFO order
//   - the watcher loop (master mode only) forwards changed local values and
//     pings the slave when nothing changed
//   - the watchdog loop disables the drive while the shared state is tripped
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type SlaveMachine struct {
	slaveMu sync.RWMutex
	slave   Slave

	driver    driver.Driver
	state     *SharedState
	values    ValueProvider
	telemetry Telemetry
	bridge    *Bridge

	lastMu     sync.Mutex
	lastValues map[string]any
	errors     atomic.Int64

	mu          sync.Mutex
	started     bool
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	watcherStop chan struct{}
	watcherWg   sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex
}

// NewSlaveMachine creates a stopped SlaveMachine.
func NewSlaveMachine(opts Options) (*SlaveMachine, error) {
	if err := opts.Slave.Validate(); err != nil {
		return nil, err
	}
	if opts.Driver == nil {
		return nil, fmt.Errorf("%w: %s has no driver", ErrInvalidSlave, opts.Slave.Address)
	}
	state := opts.State
	if state == nil {
		state = NewSharedState()
	}

	return &SlaveMachine{
		slave:      opts.Slave,
		driver:     opts.Driver,
		state:      state,
		values:     opts.Values,
		telemetry:  opts.Telemetry,
		bridge:     NewBridge(opts.BridgeSize),
		lastValues: make(map[string]any),
		done:       make(chan struct{}),
		logger:     opts.Logger,
	}, nil
}

// SetLogger replaces the logger.
func (sm *SlaveMachine) SetLogger(logger Logger) {
	sm.loggerMu.Lock()
	sm.logger = logger
	sm.loggerMu.Unlock()
}

func (sm *SlaveMachine) getLogger() Logger {
	sm.loggerMu.RLock()
	defer sm.loggerMu.RUnlock()
	return sm.logger
}

// Slave returns the current descriptor.
func (sm *SlaveMachine) Slave() Slave {
	sm.slaveMu.RLock()
	defer sm.slaveMu.RUnlock()
	return sm.slave
}

func (sm *SlaveMachine) setSlave(s Slave) {
	sm.slaveMu.Lock()
	sm.slave = s
	sm.slaveMu.Unlock()
}

// Driver returns the driver of the slave.
func (sm *SlaveMachine) Driver() driver.Driver {
	return sm.driver
}

// Start connects the driver and starts the bridge and watchdog loops.
func (sm *SlaveMachine) Start(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	select {
	case <-sm.done:
		return ErrStopped
	default:
	}
	if sm.started {
		return nil
	}

	if err := sm.driver.Connect(ctx); err != nil {
		return fmt.Errorf("%w: connecting %s: %w", ErrSlave, sm.Slave(), err)
	}

	sm.ctx, sm.cancel = context.WithCancel(context.Background())
	sm.started = true

	sm.wg.Add(2)
	go sm.bridgeLoop()
	go sm.watchdogLoop()

	if logger := sm.getLogger(); logger != nil {
		logger.Info("slave machine started", "slave", sm.Slave().String())
	}
	return nil
}

// Stop stops every loop, fails queued requests and closes the driver.
// It is safe to call more than once.
func (sm *SlaveMachine) Stop() error {
	var err error
	sm.stopOnce.Do(func() {
		sm.StopWatcher()

		sm.mu.Lock()
		close(sm.done)
		started := sm.started
		cancel := sm.cancel
		sm.mu.Unlock()

		if !started {
			return
		}
		cancel()

		waited := make(chan struct{})
		go func() {
			sm.wg.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-time.After(stopTimeout):
			if logger := sm.getLogger(); logger != nil {
				logger.Warn("slave machine loops did not stop in time", "slave", sm.Slave().String())
			}
		}

		sm.bridge.drain(ErrStopped)
		err = sm.driver.Close()
	})
	return err
}

// StartWatcher starts forwarding local values to the slave.
func (sm *SlaveMachine) StartWatcher() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.started {
		return fmt.Errorf("%w: %s is not started", ErrSlave, sm.Slave().ID())
	}
	select {
	case <-sm.done:
		return ErrStopped
	default:
	}
	if sm.watcherStop != nil {
		return nil
	}
	if sm.values == nil {
		return fmt.Errorf("%w: %s has no value provider", ErrSlave, sm.Slave().ID())
	}

	sm.resetLastValues()
	sm.errors.Store(0)

	stop := make(chan struct{})
	sm.watcherStop = stop
	sm.watcherWg.Add(1)
	go sm.watcherLoop(stop)
	return nil
}

// StopWatcher stops forwarding. The bridge and watchdog keep running.
func (sm *SlaveMachine) StopWatcher() {
	sm.mu.Lock()
	stop := sm.watcherStop
	sm.watcherStop = nil
	sm.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	sm.watcherWg.Wait()
}

// Watching reports whether the watcher loop runs.
func (sm *SlaveMachine) Watching() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.watcherStop != nil
}

// Get reads key on the slave through the bridge.
func (sm *SlaveMachine) Get(ctx context.Context, key string) (any, error) {
	return sm.submit(ctx, NewGet(key))
}

// Set writes value to key on the slave through the bridge.
func (sm *SlaveMachine) Set(ctx context.Context, key string, value any) error {
	_, err := sm.submit(ctx, NewSet(key, value))
	return err
}

// Call runs a named driver method through the bridge.
func (sm *SlaveMachine) Call(ctx context.Context, method string) (any, error) {
	return sm.submit(ctx, NewCall(method))
}

// Ping measures the round trip to the slave.
func (sm *SlaveMachine) Ping(ctx context.Context) (time.Duration, error) {
	v, err := sm.Call(ctx, "ping")
	if err != nil {
		return 0, err
	}
	rtt, _ := v.(time.Duration)
	return rtt, nil
}

// Enslave asks a remote slave to follow master.
func (sm *SlaveMachine) Enslave(ctx context.Context, master message.Address) error {
	if sm.Slave().Driver != driver.TypeRemote {
		return nil
	}
	return sm.Set(ctx, KeyOperatingMode, []any{"slave", master.String()})
}

// Verify pings the slave and checks its serial number. A slave registered
// without one adopts the reported number.
func (sm *SlaveMachine) Verify(ctx context.Context) (Slave, time.Duration, error) {
	var rtt time.Duration
	if _, ok := sm.driver.(driver.Pinger); ok {
		d, err := sm.Ping(ctx)
		if err != nil {
			return sm.Slave(), 0, fmt.Errorf("%w: pinging %s: %w", ErrSlave, sm.Slave().Address, err)
		}
		rtt = d
	}

	if _, ok := sm.driver.(serialnumberer); !ok {
		return sm.Slave(), rtt, nil
	}
	v, err := sm.Call(ctx, "serialnumber")
	if err != nil {
		return sm.Slave(), rtt, fmt.Errorf("%w: reading serial number of %s: %w", ErrSlave, sm.Slave().Address, err)
	}
	sn, _ := v.(string)

	s := sm.Slave()
	switch {
	case sn == "":
	case s.Serialnumber == "":
		s = s.WithSerialnumber(sn)
		sm.setSlave(s)
	case s.Serialnumber != sn:
		return s, rtt, fmt.Errorf("%w: %s reports %q, registered as %q", ErrSerialMismatch, s.Address, sn, s.Serialnumber)
	}
	return s, rtt, nil
}

// LastValues returns a copy of the values last forwarded to the slave.
func (sm *SlaveMachine) LastValues() map[string]any {
	sm.lastMu.Lock()
	defer sm.lastMu.Unlock()
	out := make(map[string]any, len(sm.lastValues))
	for k, v := range sm.lastValues {
		out[k] = v
	}
	return out
}

// Errors returns the number of consecutive failed watcher cycles.
func (sm *SlaveMachine) Errors() int {
	return int(sm.errors.Load())
}

// QueueLen returns the number of requests waiting in the bridge.
func (sm *SlaveMachine) QueueLen() int {
	return sm.bridge.Len()
}

func (sm *SlaveMachine) resetLastValues() {
	sm.lastMu.Lock()
	sm.lastValues = make(map[string]any)
	sm.lastMu.Unlock()
}

func (sm *SlaveMachine) submit(ctx context.Context, r *Request) (any, error) {
	select {
	case <-sm.done:
		return nil, ErrStopped
	default:
	}

	if err := sm.bridge.Put(ctx, r); err != nil {
		return nil, err
	}
	if sm.telemetry != nil {
		sm.telemetry.QueueDepth(sm.Slave().ID(), sm.bridge.Len())
	}

	select {
	case res := <-r.Done():
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-sm.done:
		return nil, ErrStopped
	}
}

func (sm *SlaveMachine) bridgeLoop() {
	defer sm.wg.Done()

	for {
		select {
		case <-sm.done:
			return
		default:
		}

		r, ok := sm.bridge.Receive(sm.done, bridgeReceiveTimeout)
		if !ok {
			continue
		}
		r.complete(sm.execute(r))
	}
}

// execute runs one bridge request against the driver.
func (sm *SlaveMachine) execute(r *Request) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			res = Result{Err: fmt.Errorf("%w: %s %s panicked: %v", ErrSlave, r.Op, r.Key, rec)}
		}
		if res.Err != nil {
			if logger := sm.getLogger(); logger != nil {
				logger.Warn("slave request failed", "slave", sm.Slave().ID(), "op", r.Op.String(),
					"key", r.Key, "method", r.Method, "error", res.Err)
			}
		}
	}()

	ctx := sm.ctx
	switch r.Op {
	case OpGet:
		v, err := sm.driver.Get(ctx, sm.driverKey(r.Key))
		return Result{Value: v, Err: err}
	case OpSet:
		return Result{Err: sm.driver.Set(ctx, sm.driverKey(r.Key), r.Value)}
	case OpCall:
		v, err := sm.call(ctx, r.Method)
		return Result{Value: v, Err: err}
	}
	return Result{Err: fmt.Errorf("%w: unknown operation %d", ErrSlave, r.Op)}
}

func (sm *SlaveMachine) call(ctx context.Context, method string) (any, error) {
	switch method {
	case "ping":
		p, ok := sm.driver.(driver.Pinger)
		if !ok {
			break
		}
		return p.Ping(ctx)
	case "serialnumber":
		s, ok := sm.driver.(serialnumberer)
		if !ok {
			break
		}
		return s.Serialnumber(ctx)
	case "connect":
		return nil, sm.driver.Connect(ctx)
	case "attributes":
		return sm.driver.Attributes(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
}

// driverKey maps a machine key onto the driver namespace. Remote drivers
// take machine keys verbatim; a local register driver takes the bare
// netdata key.
func (sm *SlaveMachine) driverKey(key string) string {
	if sm.Slave().Driver == driver.TypeRemote {
		return key
	}
	for _, prefix := range []string{"machine:", "drive:"} {
		if k, ok := strings.CutPrefix(key, prefix); ok {
			return k
		}
	}
	return key
}

func (sm *SlaveMachine) watcherLoop(stop <-chan struct{}) {
	defer sm.watcherWg.Done()

	interval := sm.Slave().RefreshInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sm.watchCycle(sm.ctx)

		select {
		case <-stop:
			return
		case <-sm.done:
			return
		case <-ticker.C:
		}
	}
}

// watchCycle forwards every changed value of the control mode's forward
// table, or disables the slave while the shared state is tripped.
func (sm *SlaveMachine) watchCycle(ctx context.Context) error {
	s := sm.Slave()

	if sm.state.Tripped() {
		if err := sm.Set(ctx, KeyEnable, false); err != nil {
			if logger := sm.getLogger(); logger != nil {
				logger.Error("disabling slave failed", "slave", s.ID(), "error", err)
			}
			return err
		}
		return nil
	}

	sent, err := sm.forward(ctx, s)
	if err == nil && sent == 0 {
		err = sm.keepalive(ctx)
	}
	if err == nil {
		sm.errors.Store(0)
		return nil
	}

	n := int(sm.errors.Add(1))
	if sm.telemetry != nil {
		sm.telemetry.SlaveError(s.ID(), "watch", n)
	}
	if logger := sm.getLogger(); logger != nil {
		logger.Error("slave watcher cycle failed", "slave", s.ID(), "consecutive", n, "error", err)
	}

	if n > s.MaxErrors() || errors.Is(err, ErrFatalSlave) {
		sm.trip(ctx, s, n, err)
	}
	return err
}

// forward sends the changed entries of the forward table and returns how
// many were sent.
func (sm *SlaveMachine) forward(ctx context.Context, s Slave) (int, error) {
	table := ForwardTable(s.ControlMode)
	if table == nil {
		return 0, fmt.Errorf("%w: unrecognized control mode %s for %s", ErrFatalSlave, s.ControlMode, s.ID())
	}

	sent := 0
	changed, err := sm.sendIfChanged(ctx, KeyControlMode, s.ControlMode.String())
	if err != nil {
		return sent, err
	}
	if changed {
		sent++
	}
	for _, fw := range table {
		v, err := sm.values.Get(ctx, fw.SourceKey())
		if err != nil {
			return sent, fmt.Errorf("reading %s: %w", fw.SourceKey(), err)
		}
		changed, err := sm.sendIfChanged(ctx, fw.Dest, v)
		if err != nil {
			return sent, err
		}
		if changed {
			sent++
		}
	}
	return sent, nil
}

// keepalive pings a slave that received nothing this cycle, so a steady
// master does not trip the slave's master timeout. Drivers that cannot
// ping are skipped.
func (sm *SlaveMachine) keepalive(ctx context.Context) error {
	if _, ok := sm.driver.(driver.Pinger); !ok {
		return nil
	}
	if _, err := sm.Call(ctx, "ping"); err != nil {
		return fmt.Errorf("keepalive: %w", err)
	}
	return nil
}

// sendIfChanged writes value to key unless it was the last value sent.
// It reports whether a write happened.
func (sm *SlaveMachine) sendIfChanged(ctx context.Context, key string, value any) (bool, error) {
	sm.lastMu.Lock()
	last, ok := sm.lastValues[key]
	sm.lastMu.Unlock()
	if ok && reflect.DeepEqual(last, value) {
		return false, nil
	}

	if err := sm.Set(ctx, key, value); err != nil {
		return false, fmt.Errorf("forwarding %s: %w", key, err)
	}

	sm.lastMu.Lock()
	sm.lastValues[key] = value
	sm.lastMu.Unlock()

	if sm.telemetry != nil {
		sm.telemetry.SetpointForwarded(sm.Slave().ID(), key, value)
	}
	return true, nil
}

// trip disables the slave and sets the fleet-wide fatal state.
func (sm *SlaveMachine) trip(ctx context.Context, s Slave, n int, cause error) {
	if err := sm.Set(ctx, KeyEnable, false); err != nil {
		if logger := sm.getLogger(); logger != nil {
			logger.Error("disabling slave failed", "slave", s.ID(), "error", err)
		}
	}

	fatal := fmt.Errorf("%w: %s failed %d consecutive cycles: %w", ErrFatalSlave, s.ID(), n, cause)
	if sm.state.SetFatal(fatal) {
		if logger := sm.getLogger(); logger != nil {
			logger.Error("fatal error, disabling all slaves", "slave", s.ID(), "error", fatal)
		}
	}
}

func (sm *SlaveMachine) watchdogLoop() {
	defer sm.wg.Done()

	ticker := time.NewTicker(sm.Slave().RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-sm.done:
			return
		case <-ticker.C:
		}

		if !sm.state.Tripped() {
			continue
		}
		// The driver is called directly so a stuck bridge cannot delay it.
		if err := sm.driver.Set(sm.ctx, sm.driverKey(KeyEnable), false); err != nil {
			if logger := sm.getLogger(); logger != nil {
				logger.Error("watchdog could not disable slave", "slave", sm.Slave().ID(), "error", err)
			}
		}
	}
}
