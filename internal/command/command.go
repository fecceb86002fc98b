package command

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-motion/internal/machine"
	"github.com/nerrad567/gray-logic-motion/internal/message"
	"github.com/nerrad567/gray-logic-motion/internal/slave"
)

// Executable is a command reachable through a message path.
//
// Execute runs the command and leaves the reply, if any, in m.Answer; the
// dispatcher sends it once Execute returned.
type Executable interface {
	Alias() string
	Execute(ctx context.Context, m *message.Message)
}

// Buffered commands run one at a time, in arrival order, on the FIFO
// worker.
type Buffered interface {
	Buffered() bool
}

// Synced commands run one at a time on the sync worker. They change the
// machine structure (mode, slave registry) and must not interleave.
type Synced interface {
	Synced() bool
}

// Machine is what commands drive. *machine.Machine implements it.
type Machine interface {
	Get(ctx context.Context, key string) (any, error)
	Set(ctx context.Context, key string, value any) error
	Mode() machine.OperatingMode
	Master() message.Address
	SetOperatingMode(ctx context.Context, mode machine.OperatingMode, master string) error
	ReleaseFromMaster(sender message.Address) error
	FreeSlave(id string) error
	AddSlave(ctx context.Context, s slave.Slave) (slave.Slave, error)
	RemoveSlave(ctx context.Context, id string) error
	Slaves() []slave.Slave
	ResetTimeout()
	Reply(ctx context.Context, cmd *message.Message) error
}

// slowCommand is the run time above which a command is logged.
const slowCommand = 250 * time.Millisecond

func isBuffered(c Executable) bool {
	b, ok := c.(Buffered)
	return ok && b.Buffered()
}

func isSynced(c Executable) bool {
	s, ok := c.(Synced)
	return ok && s.Synced()
}

// buffered and synced are embedded to declare a capability.
type buffered struct{}

func (buffered) Buffered() bool { return true }

type synced struct{}

func (synced) Synced() bool { return true }
