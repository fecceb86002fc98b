package netdata

import (
	"fmt"
	"strconv"
	"strings"
)

// ControlMode selects the regulation loop of the drive.
type ControlMode int64

// Drive control modes as encoded in command:control_mode.
const (
	ControlTorque         ControlMode = 1
	ControlVelocity       ControlMode = 2
	ControlPosition       ControlMode = 3
	ControlEnhancedTorque ControlMode = 4
)

var controlModeNames = map[ControlMode]string{
	ControlTorque:         "torque",
	ControlVelocity:       "velocity",
	ControlPosition:       "position",
	ControlEnhancedTorque: "enhanced_torque",
}

// ControlModes lists every supported mode in ascending order.
func ControlModes() []ControlMode {
	return []ControlMode{ControlTorque, ControlVelocity, ControlPosition, ControlEnhancedTorque}
}

func (m ControlMode) String() string {
	if s, ok := controlModeNames[m]; ok {
		return s
	}
	return "ControlMode(" + strconv.FormatInt(int64(m), 10) + ")"
}

// Valid reports whether m is a known control mode.
func (m ControlMode) Valid() bool {
	_, ok := controlModeNames[m]
	return ok
}

// ParseControlMode accepts a mode name or its numeric value.
func ParseControlMode(s string) (ControlMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range controlModeNames {
		if name == s {
			return m, nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && ControlMode(n).Valid() {
		return ControlMode(n), nil
	}
	return 0, fmt.Errorf("%w: unknown control mode %q", ErrInvalidValue, s)
}

// ControlModeValues is the value table of a control_mode field.
func ControlModeValues() map[string]int64 {
	out := make(map[string]int64, len(controlModeNames))
	for m, name := range controlModeNames {
		out[name] = int64(m)
	}
	return out
}
