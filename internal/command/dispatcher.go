package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-motion/internal/machine"
	"github.com/nerrad567/gray-logic-motion/internal/message"
	"github.com/nerrad567/gray-logic-motion/internal/router"
)

// DefaultQueueSize is the capacity of the buffered and synced queues.
const DefaultQueueSize = 128

// Logger is the optional logger of the dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Dispatcher.
type Options struct {
	Machine Machine

	// Router receives the command filters. A new router is created when nil.
	Router *router.Router

	QueueSize int
	Logger    Logger
}

type job struct {
	cmd Executable
	msg *message.Message
}

// Dispatcher executes the commands the router selects.
//
// Commands run where their capability says: Buffered commands in arrival
// order on the FIFO worker, Synced commands one at a time on the sync
// worker, everything else on its own goroutine. The caller of Handle (the
// transport's receive path) therefore never blocks on a driver.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Dispatcher struct {
	machine Machine
	router  *router.Router

	fifo   chan job
	synced chan job

	ctx       context.Context
	ctxCancel context.CancelFunc
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex
}

// NewDispatcher creates a stopped dispatcher.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Machine == nil {
		return nil, fmt.Errorf("command dispatcher: no machine")
	}
	r := opts.Router
	if r == nil {
		r = router.New()
	}
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		machine:   opts.Machine,
		router:    r,
		fifo:      make(chan job, size),
		synced:    make(chan job, size),
		ctx:       ctx,
		ctxCancel: cancel,
		done:      make(chan struct{}),
		logger:    opts.Logger,
	}, nil
}

// SetLogger sets the logger.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.loggerMu.Lock()
	d.logger = logger
	d.loggerMu.Unlock()
}

// Router returns the router the commands are registered on.
func (d *Dispatcher) Router() *router.Router {
	return d.router
}

// RegisterTimeoutReset installs the filter that records every message from
// the master. It must be the first filter so it sees every message.
func (d *Dispatcher) RegisterTimeoutReset() error {
	return d.router.Register(router.Filter{
		Name:   "timeout-reset",
		Alias:  "/",
		Prefix: true,
		Target: func(_ context.Context, m *message.Message) {
			if d.machine.Mode() != machine.ModeSlave {
				return
			}
			if master := d.machine.Master(); master.Host == m.Sender.Host {
				d.machine.ResetTimeout()
			}
		},
	})
}

// Register adds one exclusive filter per command.
func (d *Dispatcher) Register(cmds ...Executable) error {
	for _, cmd := range cmds {
		err := d.router.Register(router.Filter{
			Name:      cmd.Alias(),
			Alias:     cmd.Alias(),
			Exclusive: true,
			Target: func(ctx context.Context, m *message.Message) {
				d.submit(ctx, cmd, m)
			},
		})
		if err != nil {
			return fmt.Errorf("registering %s: %w", cmd.Alias(), err)
		}
	}
	return nil
}

// Commands returns every command of a machine node.
func Commands(mc Machine) []Executable {
	return []Executable{
		SlaveRegister{Machine: mc},
		SlaveFree{Machine: mc},
		SlaveGet{Machine: mc},
		SlaveSet{Machine: mc},
		SlavePing{},
		MachineGet{Machine: mc},
		MachineSet{Machine: mc},
		MachineMode{Machine: mc},
		MachineSlaves{Machine: mc},
		MachineSlaveAdd{Machine: mc},
		MachineSlaveRemove{Machine: mc},
	}
}

// Start starts the FIFO and sync workers.
func (d *Dispatcher) Start() {
	d.wg.Add(2)
	go d.worker(d.fifo)
	go d.worker(d.synced)
	d.logInfo("command dispatcher started", "filters", len(d.router.Filters()))
}

// Stop stops the workers. Queued commands are dropped.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
		d.ctxCancel()
		d.wg.Wait()
		d.logInfo("command dispatcher stopped")
	})
}

// Handle dispatches m through the router. It implements machine.Handler.
func (d *Dispatcher) Handle(ctx context.Context, m *message.Message) {
	d.router.Dispatch(ctx, m)
}

func (d *Dispatcher) submit(ctx context.Context, cmd Executable, m *message.Message) {
	select {
	case <-d.done:
		d.reject(m, ErrStopped)
		return
	default:
	}

	var queue chan job
	switch {
	case isBuffered(cmd):
		queue = d.fifo
	case isSynced(cmd):
		queue = d.synced
	default:
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.run(cmd, m)
		}()
		return
	}

	select {
	case queue <- job{cmd: cmd, msg: m}:
	case <-d.done:
		d.reject(m, ErrStopped)
	case <-ctx.Done():
		d.reject(m, ctx.Err())
	}
}

func (d *Dispatcher) worker(queue chan job) {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case j := <-queue:
			d.run(j.cmd, j.msg)
		}
	}
}

// run executes cmd and sends its answer.
func (d *Dispatcher) run(cmd Executable, m *message.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logError("command panic recovered", fmt.Errorf("%s: %v", cmd.Alias(), rec))
			m.Answer = m.Error(fmt.Errorf("internal error in %s", cmd.Alias()))
			d.reply(m)
		}
	}()

	start := time.Now()
	cmd.Execute(d.ctx, m)
	if elapsed := time.Since(start); elapsed > slowCommand {
		d.logDebug("slow command", "path", m.Path, "elapsed", elapsed)
	}
	if m.Answer != nil && m.Answer.IsError() {
		d.logWarn("command failed", "path", m.Path, "sender", m.Sender.String(), "error", m.Answer.ErrorDescription())
	}
	d.reply(m)
}

func (d *Dispatcher) reject(m *message.Message, err error) {
	m.Answer = m.Error(err)
	d.reply(m)
}

func (d *Dispatcher) reply(m *message.Message) {
	if m.Answer == nil || m.Sender.IsZero() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.machine.Reply(ctx, m); err != nil {
		d.logError("sending reply failed", err)
	}
}

func (d *Dispatcher) getLogger() Logger {
	d.loggerMu.RLock()
	defer d.loggerMu.RUnlock()
	return d.logger
}

func (d *Dispatcher) logInfo(msg string, keysAndValues ...any) {
	if logger := d.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (d *Dispatcher) logWarn(msg string, keysAndValues ...any) {
	if logger := d.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (d *Dispatcher) logDebug(msg string, keysAndValues ...any) {
	if logger := d.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (d *Dispatcher) logError(msg string, err error) {
	if logger := d.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}
