package machine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-motion/internal/correlation"
	"github.com/nerrad567/gray-logic-motion/internal/driver"
	"github.com/nerrad567/gray-logic-motion/internal/message"
	"github.com/nerrad567/gray-logic-motion/internal/netdata"
	"github.com/nerrad567/gray-logic-motion/internal/slave"
)

// DefaultRefreshInterval is the machine loop period.
const DefaultRefreshInterval = 500 * time.Millisecond

const (
	keyEnable      = "command:enable"
	keyStatusError = "status:error"
	stopTimeout    = 5 * time.Second
)

// Telemetry receives machine events on top of the slave events.
type Telemetry interface {
	slave.Telemetry
	ModeChanged(mode string)
	SlaveCount(n int)
	PingLatency(slave string, rtt time.Duration)
	Fatal(cause string)
}

// Logger is the optional logger of a Machine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Handler executes inbound messages that resolved no pending request.
type Handler interface {
	Handle(ctx context.Context, m *message.Message)
}

// Options configures a Machine.
type Options struct {
	Serialnumber string

	// Address is where other machines reach this one. Masters send it to
	// their slaves when enslaving them.
	Address message.Address
	Version string

	// Driver drives the local drive.
	Driver driver.Driver

	// Drivers builds the drivers of slaves.
	Drivers *driver.Registry

	Engine *correlation.Engine
	State  *slave.SharedState

	// Repository persists the slave registry. Optional.
	Repository slave.Repository

	Telemetry Telemetry

	RefreshInterval time.Duration

	// SlaveTimeout disables the drive of a slave that heard nothing from
	// its master for this long. Zero disables the check.
	SlaveTimeout time.Duration

	Logger Logger
}

// Machine is the operating-mode state machine of one node.
//
// In standalone mode it only drives its own drive. In master mode it owns
// one SlaveMachine per registered slave and mirrors its setpoints onto
// them. In slave mode it follows the master at Master().
//
// Thread Safety:
//   - All methods are safe for concurrent use. Mode changes and slave
//     registry edits are serialised.
type Machine struct {
	serialnumber    string
	address         message.Address
	version         string
	driver          driver.Driver
	drivers         *driver.Registry
	engine          *correlation.Engine
	state           *slave.SharedState
	repo            slave.Repository
	telemetry       Telemetry
	refreshInterval time.Duration
	slaveTimeout    time.Duration

	transition sync.Mutex

	mu          sync.RWMutex
	mode        OperatingMode
	master      message.Address
	slaves      []*slave.SlaveMachine
	handler     Handler
	lastCommand time.Time
	timedOut    bool
	reenable    bool

	lifeMu   sync.Mutex
	started  bool
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a standalone machine.
func New(opts Options) (*Machine, error) {
	if opts.Driver == nil {
		return nil, fmt.Errorf("%w: no drive driver", ErrMachine)
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("%w: no correlation engine", ErrMachine)
	}

	refresh := opts.RefreshInterval
	if refresh <= 0 {
		refresh = DefaultRefreshInterval
	}
	state := opts.State
	if state == nil {
		state = slave.NewSharedState()
	}
	drivers := opts.Drivers
	if drivers == nil {
		drivers = driver.NewRegistry()
	}

	m := &Machine{
		serialnumber:    opts.Serialnumber,
		address:         opts.Address,
		version:         opts.Version,
		driver:          opts.Driver,
		drivers:         drivers,
		engine:          opts.Engine,
		state:           state,
		repo:            opts.Repository,
		telemetry:       opts.Telemetry,
		refreshInterval: refresh,
		slaveTimeout:    opts.SlaveTimeout,
		mode:            ModeStandalone,
		done:            make(chan struct{}),
		logger:          opts.Logger,
	}
	state.OnFatal(m.onFatal)
	return m, nil
}

// SetLogger replaces the logger.
func (m *Machine) SetLogger(logger Logger) {
	m.loggerMu.Lock()
	m.logger = logger
	m.loggerMu.Unlock()
}

func (m *Machine) getLogger() Logger {
	m.loggerMu.RLock()
	defer m.loggerMu.RUnlock()
	return m.logger
}

// SetHandler installs the handler of inbound commands.
func (m *Machine) SetHandler(h Handler) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

// Start connects the drive and starts the machine loop.
func (m *Machine) Start(ctx context.Context) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.started {
		return nil
	}
	if err := m.driver.Connect(ctx); err != nil {
		return fmt.Errorf("%w: connecting drive: %w", ErrFatal, err)
	}
	m.started = true

	m.wg.Add(1)
	go m.loop()

	if logger := m.getLogger(); logger != nil {
		logger.Info("machine started", "address", m.address.String(), "serialnumber", m.serialnumber)
	}
	return nil
}

// Stop stops the machine loop and every slave machine, then closes the
// drive. It is safe to call more than once.
func (m *Machine) Stop() error {
	var err error
	m.stopOnce.Do(func() {
		close(m.done)

		waited := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-time.After(stopTimeout):
			if logger := m.getLogger(); logger != nil {
				logger.Warn("machine loop did not stop in time")
			}
		}

		for _, sm := range m.SlaveMachines() {
			if stopErr := sm.Stop(); stopErr != nil {
				if logger := m.getLogger(); logger != nil {
					logger.Warn("stopping slave machine failed", "slave", sm.Slave().ID(), "error", stopErr)
				}
			}
		}

		m.lifeMu.Lock()
		started := m.started
		m.lifeMu.Unlock()
		if started {
			err = m.driver.Close()
		}
	})
	return err
}

// Mode returns the active operating mode.
func (m *Machine) Mode() OperatingMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// Master returns the master address in slave mode.
func (m *Machine) Master() message.Address {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.master
}

// Address returns the address of this machine.
func (m *Machine) Address() message.Address {
	return m.address
}

// Serialnumber returns the serial number of this machine.
func (m *Machine) Serialnumber() string {
	return m.serialnumber
}

// Driver returns the drive driver.
func (m *Machine) Driver() driver.Driver {
	return m.driver
}

// State returns the shared fault state.
func (m *Machine) State() *slave.SharedState {
	return m.state
}

// Engine returns the correlation engine.
func (m *Machine) Engine() *correlation.Engine {
	return m.engine
}

// Get reads key. Machine attributes are answered from the key table of
// the active mode, everything else from the drive.
func (m *Machine) Get(ctx context.Context, key string) (any, error) {
	k, err := ParseKey(key)
	if err != nil {
		return nil, err
	}
	if !k.Machine {
		return m.driver.Get(ctx, k.Attr)
	}
	if err := TableFor(m.Mode()).CheckRead(k.Attr); err != nil {
		return nil, err
	}
	return m.attribute(k.Attr), nil
}

// Set writes value to key. Writing machine:operating_mode changes the
// operating mode; see SetOperatingMode.
func (m *Machine) Set(ctx context.Context, key string, value any) error {
	k, err := ParseKey(key)
	if err != nil {
		return err
	}
	value = unwrapSingle(value)

	if k.Machine {
		if err := TableFor(m.Mode()).CheckWrite(k.Attr); err != nil {
			return err
		}
		mode, master, err := operatingModeArgs(value)
		if err != nil {
			return err
		}
		return m.SetOperatingMode(ctx, mode, master)
	}

	var enable *bool
	if k.Attr == keyEnable {
		b, err := netdata.Coerce(netdata.Field{Name: keyEnable, Type: netdata.TypeBool}, value)
		if err != nil {
			return err
		}
		v := b.(bool)
		enable = &v
		if v && m.state.Fatal() {
			return fmt.Errorf("%w: cannot enable while the fatal state is set: %w", ErrFatal, m.state.Cause())
		}
	}

	mode := m.Mode()
	if mode == ModeSlave {
		m.commandReceived(ctx)
	}

	if err := m.driver.Set(ctx, k.Attr, value); err != nil {
		return err
	}

	if mode == ModeMaster && enable != nil {
		m.propagateEnable(ctx, *enable)
	}
	return nil
}

// propagateEnable mirrors the enable command of a master onto its slaves.
func (m *Machine) propagateEnable(ctx context.Context, enable bool) {
	for _, sm := range m.SlaveMachines() {
		if err := sm.Set(ctx, slave.KeyEnable, enable); err != nil {
			if logger := m.getLogger(); logger != nil {
				logger.Warn("propagating enable failed", "slave", sm.Slave().ID(), "enable", enable, "error", err)
			}
		}
	}
}

func (m *Machine) attribute(attr string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch attr {
	case AttrOperatingMode:
		return m.mode.String()
	case AttrSerialnumber:
		return m.serialnumber
	case AttrAddress:
		return m.address.String()
	case AttrSlaves:
		ids := make([]any, 0, len(m.slaves))
		for _, sm := range m.slaves {
			ids = append(ids, sm.Slave().ID())
		}
		return ids
	case AttrMaster:
		return m.master.Host
	case AttrMasterPort:
		return int64(m.master.Port)
	case AttrInfos:
		return []any{"identify", "graylogic-motion", m.version, m.serialnumber}
	}
	return nil
}

// SetOperatingMode switches to mode. master is the "host[:port]" of the
// master and is required for slave mode.
//
// Entering master mode enslaves every registered slave and starts its
// watcher; if one slave cannot be enslaved the machine stays standalone.
// Leaving slave mode notifies the master with /slave/free. Re-entering the
// active mode does nothing.
func (m *Machine) SetOperatingMode(ctx context.Context, mode OperatingMode, master string) error {
	m.transition.Lock()
	defer m.transition.Unlock()

	current := m.Mode()
	if mode == current {
		if logger := m.getLogger(); logger != nil {
			logger.Info("operating mode already active", "mode", mode.String())
		}
		return nil
	}

	var masterAddr message.Address
	switch mode {
	case ModeStandalone:
	case ModeMaster:
		if len(m.SlaveMachines()) == 0 {
			return fmt.Errorf("%w: no slaves registered", ErrMachine)
		}
	case ModeSlave:
		if master == "" {
			return fmt.Errorf("%w: no master supplied", ErrMachine)
		}
		addr, err := message.ParseAddress(master)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMachine, err)
		}
		masterAddr = addr
	default:
		return fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}

	if logger := m.getLogger(); logger != nil {
		logger.Info("changing operating mode", "from", current.String(), "to", mode.String())
	}
	m.deactivate(ctx, current)

	switch mode {
	case ModeMaster:
		if err := m.activateMaster(ctx); err != nil {
			m.modeChanged(ModeStandalone)
			return err
		}
		m.setMode(ModeMaster, message.Address{})
	case ModeSlave:
		m.mu.Lock()
		m.mode = ModeSlave
		m.master = masterAddr
		m.lastCommand = time.Now()
		m.timedOut, m.reenable = false, false
		m.mu.Unlock()
	default:
		m.setMode(ModeStandalone, message.Address{})
	}

	m.modeChanged(mode)
	return nil
}

func (m *Machine) setMode(mode OperatingMode, master message.Address) {
	m.mu.Lock()
	m.mode = mode
	m.master = master
	m.mu.Unlock()
}

func (m *Machine) modeChanged(mode OperatingMode) {
	if m.telemetry != nil {
		m.telemetry.ModeChanged(mode.String())
	}
}

// deactivate leaves the current role and falls back to standalone.
func (m *Machine) deactivate(ctx context.Context, current OperatingMode) {
	switch current {
	case ModeSlave:
		master := m.Master()
		m.setMode(ModeStandalone, message.Address{})

		free := message.New(message.PathSlaveFree, m.serialnumber).To(master)
		if _, err := m.engine.Send(ctx, free, false); err != nil {
			if logger := m.getLogger(); logger != nil {
				logger.Warn("notifying master failed", "master", master.String(), "error", err)
			}
		}
	case ModeMaster:
		m.setMode(ModeStandalone, message.Address{})
		for _, sm := range m.SlaveMachines() {
			sm.StopWatcher()
		}
	}
}

func (m *Machine) activateMaster(ctx context.Context) error {
	slaves := m.SlaveMachines()
	for i, sm := range slaves {
		if err := sm.Enslave(ctx, m.address); err != nil {
			m.release(ctx, slaves[:i])
			return fmt.Errorf("%w: enslaving %s: %w", ErrMachine, sm.Slave().ID(), err)
		}
	}
	for _, sm := range slaves {
		if err := sm.StartWatcher(); err != nil {
			for _, started := range slaves {
				started.StopWatcher()
			}
			m.release(ctx, slaves)
			return fmt.Errorf("%w: starting watcher of %s: %w", ErrMachine, sm.Slave().ID(), err)
		}
	}
	return nil
}

// release returns enslaved slaves to standalone after entering master mode
// failed.
func (m *Machine) release(ctx context.Context, slaves []*slave.SlaveMachine) {
	for _, sm := range slaves {
		if sm.Slave().Driver != driver.TypeRemote {
			continue
		}
		if err := sm.Set(ctx, slave.KeyOperatingMode, ModeStandalone.String()); err != nil {
			if logger := m.getLogger(); logger != nil {
				logger.Warn("releasing slave failed", "slave", sm.Slave().ID(), "error", err)
			}
		}
	}
}

// ReleaseFromMaster returns a slave to standalone after its master freed
// it. The master is not notified back.
func (m *Machine) ReleaseFromMaster(sender message.Address) error {
	m.transition.Lock()
	defer m.transition.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != ModeSlave {
		return fmt.Errorf("%w: not in slave mode", ErrMachine)
	}
	if sender.Host != m.master.Host {
		return fmt.Errorf("%w: %s is not the master", ErrMachine, sender)
	}
	m.mode = ModeStandalone
	m.master = message.Address{}

	if logger := m.getLogger(); logger != nil {
		logger.Info("released by master", "master", sender.String())
	}
	if m.telemetry != nil {
		m.telemetry.ModeChanged(ModeStandalone.String())
	}
	return nil
}

// FreeSlave stops forwarding to a slave that left this master.
func (m *Machine) FreeSlave(id string) error {
	sm, err := m.SlaveMachine(id)
	if err != nil {
		return err
	}
	sm.StopWatcher()
	if logger := m.getLogger(); logger != nil {
		logger.Info("slave left", "slave", sm.Slave().ID())
	}
	return nil
}

// ResetTimeout records that the master was heard from.
func (m *Machine) ResetTimeout() {
	m.mu.Lock()
	m.lastCommand = time.Now()
	m.mu.Unlock()
}

// commandReceived re-enables a drive that a master timeout disabled.
func (m *Machine) commandReceived(ctx context.Context) {
	m.mu.Lock()
	m.lastCommand = time.Now()
	reenable := m.timedOut && m.reenable
	m.timedOut, m.reenable = false, false
	m.mu.Unlock()

	if !reenable || m.state.Tripped() {
		return
	}
	if err := m.driver.Set(ctx, keyEnable, true); err != nil {
		if logger := m.getLogger(); logger != nil {
			logger.Error("re-enabling drive after master timeout failed", "error", err)
		}
	}
}

// TimedOut reports whether a slave lost its master.
func (m *Machine) TimedOut() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timedOut
}

func (m *Machine) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.refreshInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-m.done
		cancel()
	}()

	for {
		select {
		case <-m.done:
			return
		case now := <-ticker.C:
			m.checkSlaveTimeout(ctx, now)
			m.checkDriveFault(ctx)
		}
	}
}

// checkSlaveTimeout disables the drive of a slave whose master went quiet.
func (m *Machine) checkSlaveTimeout(ctx context.Context, now time.Time) {
	if m.slaveTimeout <= 0 {
		return
	}

	m.mu.RLock()
	quiet := m.mode == ModeSlave && !m.timedOut && now.Sub(m.lastCommand) >= m.slaveTimeout
	master := m.master
	m.mu.RUnlock()
	if !quiet {
		return
	}

	enabled, _ := m.driver.Get(ctx, keyEnable)
	wasEnabled, _ := enabled.(bool)

	if logger := m.getLogger(); logger != nil {
		logger.Error("disabling drive", "error", fmt.Errorf("%w: nothing from %s for %s", ErrSlaveTimeout, master, m.slaveTimeout))
	}
	if err := m.driver.Set(ctx, keyEnable, false); err != nil {
		if logger := m.getLogger(); logger != nil {
			logger.Error("disabling drive after master timeout failed", "error", err)
		}
	}

	m.mu.Lock()
	m.timedOut = true
	m.reenable = wasEnabled
	m.mu.Unlock()
}

// checkDriveFault mirrors the error bit of a master's drive into the
// shared fault flag, which disables every slave while it is set. Drives
// without the bit are ignored.
func (m *Machine) checkDriveFault(ctx context.Context) {
	fault := false
	if m.Mode() == ModeMaster {
		v, err := m.driver.Get(ctx, keyStatusError)
		if err != nil {
			return
		}
		fault, _ = v.(bool)
	}
	if fault == m.state.Fault() {
		return
	}

	m.state.SetFault(fault)
	if logger := m.getLogger(); logger != nil {
		if fault {
			logger.Warn("drive reports an error, disabling slaves")
		} else {
			logger.Info("drive error cleared")
		}
	}
}

// onFatal disables the local drive once the fleet is tripped.
func (m *Machine) onFatal(cause error) {
	if logger := m.getLogger(); logger != nil {
		logger.Error("fatal state set, disabling drive", "error", cause)
	}
	if m.telemetry != nil {
		m.telemetry.Fatal(cause.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.refreshInterval)
	defer cancel()
	if err := m.driver.Set(ctx, keyEnable, false); err != nil && !errors.Is(err, driver.ErrNotConnected) {
		if logger := m.getLogger(); logger != nil {
			logger.Error("disabling drive failed", "error", err)
		}
	}
}

// ResetFatal clears the shared fault state.
func (m *Machine) ResetFatal() {
	m.state.Reset()
	if logger := m.getLogger(); logger != nil {
		logger.Info("fault state reset")
	}
}

// Handle routes an inbound message: replies resolve their pending request,
// everything else goes to the command handler.
func (m *Machine) Handle(ctx context.Context, msg *message.Message) {
	if m.engine.Resolve(msg) {
		return
	}

	m.mu.RLock()
	h := m.handler
	m.mu.RUnlock()
	if h == nil {
		if logger := m.getLogger(); logger != nil {
			logger.Debug("no command handler, dropping message", "path", msg.Path)
		}
		return
	}
	h.Handle(ctx, msg)
}

// Reply sends the answer a command prepared, if any.
func (m *Machine) Reply(ctx context.Context, cmd *message.Message) error {
	if cmd.Answer == nil {
		return nil
	}
	if _, err := m.engine.Send(ctx, cmd.Answer, false); err != nil {
		return fmt.Errorf("replying to %s: %w", cmd.Path, err)
	}
	return nil
}

// unwrapSingle turns a one-element argument list into its element.
func unwrapSingle(v any) any {
	if list, ok := v.([]any); ok && len(list) == 1 {
		return list[0]
	}
	return v
}

// operatingModeArgs decodes "mode" or ["mode", "master"].
func operatingModeArgs(v any) (OperatingMode, string, error) {
	var args []string
	switch x := v.(type) {
	case string:
		args = []string{x}
	case []string:
		args = x
	case []any:
		for _, a := range x {
			s, ok := a.(string)
			if !ok {
				return 0, "", fmt.Errorf("%w: operating mode arguments must be strings, got %T", ErrMachine, a)
			}
			args = append(args, s)
		}
	case nil:
	default:
		return 0, "", fmt.Errorf("%w: operating mode must be a string, got %T", ErrMachine, v)
	}

	if len(args) == 0 {
		return ModeStandalone, "", nil
	}
	mode, err := ParseOperatingMode(args[0])
	if err != nil {
		return 0, "", err
	}
	if len(args) > 1 {
		return mode, args[1], nil
	}
	return mode, "", nil
}
