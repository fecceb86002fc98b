package command

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-motion/internal/machine"
	"github.com/nerrad567/gray-logic-motion/internal/message"
	"github.com/nerrad567/gray-logic-motion/internal/slave"
)

// MachineGet reads one key: /machine/get key -> /machine/get/ok key value.
type MachineGet struct{ Machine Machine }

func (MachineGet) Alias() string { return message.PathMachineGet }

func (c MachineGet) Execute(ctx context.Context, m *message.Message) {
	if err := m.ExpectArgs(1, 1); err != nil {
		m.Answer = m.Error(err)
		return
	}
	key, _ := m.StringArg(0)
	v, err := c.Machine.Get(ctx, key)
	if err != nil {
		m.Answer = m.Error(err, key)
		return
	}
	m.Answer = m.OK(key, v)
}

// MachineSet writes one key: /machine/set key value...
type MachineSet struct {
	buffered
	Machine Machine
}

func (MachineSet) Alias() string { return message.PathMachineSet }

func (c MachineSet) Execute(ctx context.Context, m *message.Message) {
	if err := m.ExpectArgs(2, -1); err != nil {
		m.Answer = m.Error(err)
		return
	}
	key, _ := m.StringArg(0)
	values := m.Args[1:]

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

// MachineMode changes the operating mode: /machine/mode mode [master].
// Without arguments it reports the active mode.
type MachineMode struct {
	synced
	Machine Machine
}

func (MachineMode) Alias() string { return message.PathMachineMode }

func (c MachineMode) Execute(ctx context.Context, m *message.Message) {
	if err := m.ExpectArgs(0, 2); err != nil {
		m.Answer = m.Error(err)
		return
	}
	if len(m.Args) == 0 {
		m.Answer = m.OK(c.Machine.Mode().String())
		return
	}

	name, _ := m.StringArg(0)
	mode, err := machine.ParseOperatingMode(name)
	if err != nil {
		m.Answer = m.Error(err, m.Args...)
		return
	}
	var master string
	if len(m.Args) > 1 {
		master, _ = m.StringArg(1)
	}
	if err := c.Machine.SetOperatingMode(ctx, mode, master); err != nil {
		m.Answer = m.Error(err, m.Args...)
		return
	}

	reply := []any{c.Machine.Mode().String()}
	if addr := c.Machine.Master(); !addr.IsZero() {
		reply = append(reply, addr.String())
	}
	m.Answer = m.OK(reply...)
}

// MachineSlaves lists the registered slaves, one map per slave.
type MachineSlaves struct{ Machine Machine }

func (MachineSlaves) Alias() string { return message.PathMachineSlaves }

func (c MachineSlaves) Execute(_ context.Context, m *message.Message) {
	slaves := c.Machine.Slaves()
	out := make([]any, 0, len(slaves))
	for _, s := range slaves {
		out = append(out, describe(s))
	}
	m.Answer = m.OK(out...)
}

func describe(s slave.Slave) map[string]any {
	return map[string]any{
		"serialnumber": s.Serialnumber,
		"address":      s.Address.String(),
		"driver":       string(s.Driver),
		"control_mode": s.ControlMode.String(),
	}
}

// MachineSlaveAdd registers a slave: /machine/slave/add host[:port]
// [driver] [control_mode].
type MachineSlaveAdd struct {
	synced
	Machine Machine
}

func (MachineSlaveAdd) Alias() string { return message.PathMachineSlaveAdd }

func (c MachineSlaveAdd) Execute(ctx context.Context, m *message.Message) {
	if err := m.ExpectArgs(1, 3); err != nil {
		m.Answer = m.Error(err)
		return
	}
	var args [3]string
	for i := range m.Args {
		args[i], _ = m.StringArg(i)
	}

	s, err := slave.New(args[0], args[1], args[2], nil)
	if err != nil {
		m.Answer = m.Error(err, m.Args...)
		return
	}
	added, err := c.Machine.AddSlave(ctx, s)
	if err != nil {
		m.Answer = m.Error(err, m.Args...)
		return
	}
	m.Answer = m.OK(added.Serialnumber, added.Address.String())
}

// MachineSlaveRemove unregisters a slave by serial number or address.
type MachineSlaveRemove struct {
	synced
	Machine Machine
}

func (MachineSlaveRemove) Alias() string { return message.PathMachineSlaveRemove }

func (c MachineSlaveRemove) Execute(ctx context.Context, m *message.Message) {
	if err := m.ExpectArgs(1, 1); err != nil {
		m.Answer = m.Error(err)
		return
	}
	id, _ := m.StringArg(0)
	if err := c.Machine.RemoveSlave(ctx, id); err != nil {
		m.Answer = m.Error(fmt.Errorf("removing %s: %w", id, err), id)
		return
	}
	m.Answer = m.OK(id)
}
