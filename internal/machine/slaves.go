package machine

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-motion/internal/slave"
)

// SlaveMachines returns the slave machines in registration order.
func (m *Machine) SlaveMachines() []*slave.SlaveMachine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*slave.SlaveMachine(nil), m.slaves...)
}

// Slaves returns the registered slave descriptors.
func (m *Machine) Slaves() []slave.Slave {
	sms := m.SlaveMachines()
	out := make([]slave.Slave, 0, len(sms))
	for _, sm := range sms {
		out = append(out, sm.Slave())
	}
	return out
}

// SlaveMachine returns the slave machine matching id (serial number,
// address or host).
func (m *Machine) SlaveMachine(id string) (*slave.SlaveMachine, error) {
	for _, sm := range m.SlaveMachines() {
		if sm.Slave().Matches(id) {
			return sm, nil
		}
	}
	return nil, fmt.Errorf("%w: %w: %s", ErrMachine, slave.ErrNotFound, id)
}

// AddSlave registers s: it starts a SlaveMachine, verifies the slave
// answers with the expected serial number, persists it and, in master
// mode, enslaves it. The returned descriptor carries the serial number
// the slave reported.
func (m *Machine) AddSlave(ctx context.Context, s slave.Slave) (slave.Slave, error) {
	m.transition.Lock()
	defer m.transition.Unlock()
	return m.addSlave(ctx, s)
}

func (m *Machine) addSlave(ctx context.Context, s slave.Slave) (slave.Slave, error) {
	mode := m.Mode()
	if mode == ModeSlave {
		return s, fmt.Errorf("%w: cannot add slaves in slave mode", ErrMachine)
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("%w: %w", ErrMachine, err)
	}
	if m.registered(s) {
		return s, fmt.Errorf("%w: %s already registered", ErrMachine, s)
	}

	drv, err := m.drivers.New(s.Driver, s.DriverConfig())
	if err != nil {
		return s, fmt.Errorf("%w: building driver of %s: %w", ErrMachine, s.Address, err)
	}
	sm, err := slave.NewSlaveMachine(slave.Options{
		Slave:     s,
		Driver:    drv,
		State:     m.state,
		Values:    m,
		Telemetry: m.telemetry,
		Logger:    m.getLogger(),
	})
	if err != nil {
		return s, fmt.Errorf("%w: %w", ErrMachine, err)
	}
	if err := sm.Start(ctx); err != nil {
		return s, fmt.Errorf("%w: %w", ErrMachine, err)
	}

	verified, rtt, err := sm.Verify(ctx)
	if err != nil {
		m.discard(sm)
		return s, fmt.Errorf("%w: %w", ErrMachine, err)
	}
	if verified.Serialnumber != "" && verified.Serialnumber != s.Serialnumber && m.registered(verified) {
		m.discard(sm)
		return verified, fmt.Errorf("%w: serial number %s already registered", ErrMachine, verified.Serialnumber)
	}
	if m.telemetry != nil && rtt > 0 {
		m.telemetry.PingLatency(verified.ID(), rtt)
	}

	if mode == ModeMaster {
		if err := sm.Enslave(ctx, m.address); err != nil {
			m.discard(sm)
			return verified, fmt.Errorf("%w: enslaving %s: %w", ErrMachine, verified.ID(), err)
		}
		if err := sm.StartWatcher(); err != nil {
			m.discard(sm)
			return verified, fmt.Errorf("%w: %w", ErrMachine, err)
		}
	}

	if m.repo != nil {
		if err := m.repo.Save(ctx, verified); err != nil {
			m.discard(sm)
			return verified, fmt.Errorf("%w: %w", ErrMachine, err)
		}
	}

	m.mu.Lock()
	m.slaves = append(m.slaves, sm)
	n := len(m.slaves)
	m.mu.Unlock()
	if m.telemetry != nil {
		m.telemetry.SlaveCount(n)
	}

	if logger := m.getLogger(); logger != nil {
		logger.Info("slave added", "slave", verified.String(), "rtt", rtt)
	}
	return verified, nil
}

// registered reports whether a slave with the address or serial number of
// s is known.
func (m *Machine) registered(s slave.Slave) bool {
	for _, sm := range m.SlaveMachines() {
		known := sm.Slave()
		if known.Address == s.Address {
			return true
		}
		if s.Serialnumber != "" && known.Serialnumber == s.Serialnumber {
			return true
		}
	}
	return false
}

func (m *Machine) discard(sm *slave.SlaveMachine) {
	if err := sm.Stop(); err != nil {
		if logger := m.getLogger(); logger != nil {
			logger.Warn("stopping slave machine failed", "slave", sm.Slave().ID(), "error", err)
		}
	}
}

// RemoveSlave unregisters the slave matching id. In master mode the slave
// is first returned to standalone.
func (m *Machine) RemoveSlave(ctx context.Context, id string) error {
	m.transition.Lock()
	defer m.transition.Unlock()

	sm, err := m.SlaveMachine(id)
	if err != nil {
		return err
	}
	s := sm.Slave()

	if m.Mode() == ModeMaster {
		sm.StopWatcher()
		if err := sm.Set(ctx, slave.KeyOperatingMode, ModeStandalone.String()); err != nil {
			if logger := m.getLogger(); logger != nil {
				logger.Warn("releasing slave failed", "slave", s.ID(), "error", err)
			}
		}
	}

	m.mu.Lock()
	for i, candidate := range m.slaves {
		if candidate == sm {
			m.slaves = append(m.slaves[:i], m.slaves[i+1:]...)
			break
		}
	}
	n := len(m.slaves)
	m.mu.Unlock()
	m.discard(sm)
	if m.telemetry != nil {
		m.telemetry.SlaveCount(n)
	}

	if m.repo != nil {
		if err := m.repo.Delete(ctx, s.Address); err != nil && !errors.Is(err, slave.ErrNotFound) {
			return fmt.Errorf("%w: %w", ErrMachine, err)
		}
	}

	if logger := m.getLogger(); logger != nil {
		logger.Info("slave removed", "slave", s.String())
	}
	return nil
}

// LoadSlaves registers the persisted slaves plus static ones not yet
// persisted. Every slave is tried; the failures are returned joined.
func (m *Machine) LoadSlaves(ctx context.Context, static []slave.Slave) error {
	m.transition.Lock()
	defer m.transition.Unlock()

	var candidates []slave.Slave
	if m.repo != nil {
		stored, err := m.repo.List(ctx)
		if err != nil {
			return fmt.Errorf("%w: loading slaves: %w", ErrMachine, err)
		}
		candidates = stored
	}
	for _, s := range static {
		known := false
		for _, c := range candidates {
			if c.Address == s.Address {
				known = true
				break
			}
		}
		if !known {
			candidates = append(candidates, s)
		}
	}

	var errs []error
	for _, s := range candidates {
		if _, err := m.addSlave(ctx, s); err != nil {
			if logger := m.getLogger(); logger != nil {
				logger.Error("loading slave failed", "slave", s.String(), "error", err)
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
