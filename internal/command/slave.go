package command

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-motion/internal/machine"
	"github.com/nerrad567/gray-logic-motion/internal/message"
	"github.com/nerrad567/gray-logic-motion/internal/slave"
)

// Commands received by a slave from its master, plus /slave/free which a
// master receives from a leaving slave.

// keys a master may read before the slave is enslaved.
var openSlaveKeys = map[string]bool{
	slave.KeyOperatingMode: true,
	slave.KeySerialnumber:  true,
}

func requireSlave(mc Machine, m *message.Message, args ...any) bool {
	if mc.Mode() == machine.ModeSlave {
		return true
	}
	m.Answer = m.Error(ErrNotSlave, args...)
	return false
}

// SlaveRegister turns the receiver into a slave of the sender.
type SlaveRegister struct{ Machine Machine }

func (SlaveRegister) Alias() string { return message.PathSlaveRegister }

func (c SlaveRegister) Execute(ctx context.Context, m *message.Message) {
	if err := m.ExpectArgs(0, 0); err != nil {
		m.Answer = m.Error(err)
		return
	}
	if err := c.Machine.SetOperatingMode(ctx, machine.ModeSlave, m.Sender.String()); err != nil {
		m.Answer = m.Error(err)
		return
	}
	m.Answer = m.OK()
}

// SlaveFree releases a slave from its master. On a slave it ends slave
// mode when sent by the master; on a master it stops forwarding to the
// slave named by the first argument (its serial number) or the sender.
type SlaveFree struct{ Machine Machine }

func (SlaveFree) Alias() string { return message.PathSlaveFree }

func (c SlaveFree) Execute(_ context.Context, m *message.Message) {
	if err := m.ExpectArgs(0, 1); err != nil {
		m.Answer = m.Error(err)
		return
	}

	switch c.Machine.Mode() {
	case machine.ModeSlave:
		if err := c.Machine.ReleaseFromMaster(m.Sender); err != nil {
			m.Answer = m.Error(err)
			return
		}
	case machine.ModeMaster:
		id := m.Sender.Host
		if sn, _ := m.StringArg(0); sn != "" {
			id = sn
		}
		if err := c.Machine.FreeSlave(id); err != nil {
			m.Answer = m.Error(err)
			return
		}
	default:
		m.Answer = m.Error(fmt.Errorf("cannot free: %w", ErrNotSlave))
		return
	}
	m.Answer = m.OK()
}

// SlaveGet reads a key for the master. Outside slave mode only the
// operating mode and serial number are readable.
type SlaveGet struct{ Machine Machine }

func (SlaveGet) Alias() string { return message.PathSlaveGet }

func (c SlaveGet) Execute(ctx context.Context, m *message.Message) {
	if err := m.ExpectArgs(1, 1); err != nil {
		m.Answer = m.Error(err)
		return
	}
	key, _ := m.StringArg(0)
	if !openSlaveKeys[key] && !requireSlave(c.Machine, m, key) {
		return
	}

	v, err := c.Machine.Get(ctx, key)
	if err != nil {
		m.Answer = m.Error(err, key)
		return
	}
	m.Answer = m.OK(key, v)
}

// SlaveSet writes a key for the master. machine:operating_mode is always
// writable so a master can enslave the machine.
type SlaveSet struct {
	buffered
	Machine Machine
}

func (SlaveSet) Alias() string { return message.PathSlaveSet }

func (c SlaveSet) Execute(ctx context.Context, m *message.Message) {
	if err := m.ExpectArgs(2, 3); err != nil {
		m.Answer = m.Error(err)
		return
	}
	key, _ := m.StringArg(0)
	values := m.Args[1:]
	if key != slave.KeyOperatingMode && !requireSlave(c.Machine, m, m.Args...) {
		return
	}

	var value any = values
	if len(values) == 1 {
		value = values[0]
	}
	if err := c.Machine.Set(ctx, key, value); err != nil {
		m.Answer = m.Error(err, m.Args...)
		return
	}
	m.Answer = m.OK(m.Args...)
}

// SlavePing echoes its arguments.
type SlavePing struct{}

func (SlavePing) Alias() string { return message.PathSlavePing }

func (SlavePing) Execute(_ context.Context, m *message.Message) {
	m.Answer = m.OK(m.Args...)
}
