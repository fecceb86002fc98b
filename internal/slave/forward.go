package slave

import "github.com/nerrad567/gray-logic-motion/internal/netdata"

// Forward pairs the key written on a slave with the local key it is read
// from. An empty Source means the same key as Dest.
type Forward struct {
	Dest   string
	Source string
}

// SourceKey returns the local key to read.
func (f Forward) SourceKey() string {
	if f.Source == "" {
		return f.Dest
	}
	return f.Source
}

// forwardTables lists, per control mode, what a master mirrors onto a slave.
var forwardTables = map[netdata.ControlMode][]Forward{
	netdata.ControlTorque: {
		{Dest: "machine:torque_ref", Source: "machine:torque"},
		{Dest: "machine:torque_rise_time"},
		{Dest: "machine:torque_fall_time"},
	},
	netdata.ControlEnhancedTorque: {
		{Dest: "machine:torque_ref", Source: "machine:current"},
		{Dest: "machine:velocity_ref", Source: "machine:velocity"},
		{Dest: "machine:torque_rise_time"},
		{Dest: "machine:torque_fall_time"},
	},
	netdata.ControlVelocity: {
		{Dest: "machine:velocity_ref", Source: "machine:velocity"},
		{Dest: "machine:acceleration"},
		{Dest: "machine:deceleration"},
	},
	netdata.ControlPosition: {
		{Dest: "machine:position_ref", Source: "machine:position"},
		{Dest: "machine:velocity_ref"},
		{Dest: "machine:acceleration"},
		{Dest: "machine:deceleration"},
	},
}

// ForwardTable returns the forwards of mode, or nil for an unknown mode.
func ForwardTable(mode netdata.ControlMode) []Forward {
	t := forwardTables[mode]
	out := make([]Forward, len(t))
	copy(out, t)
	if len(out) == 0 {
		return nil
	}
	return out
}
