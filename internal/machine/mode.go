package machine

import (
	"fmt"
	"strings"
)

// OperatingMode is the coordination role of a machine.
type OperatingMode int

// Operating modes.
const (
	ModeStandalone OperatingMode = iota
	ModeMaster
	ModeSlave
)

func (m OperatingMode) String() string {
	switch m {
	case ModeStandalone:
		return "standalone"
	case ModeMaster:
		return "master"
	case ModeSlave:
		return "slave"
	}
	return fmt.Sprintf("OperatingMode(%d)", int(m))
}

// ParseOperatingMode accepts a mode name. An empty name is standalone.
func ParseOperatingMode(s string) (OperatingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standalone", "none":
		return ModeStandalone, nil
	case "master":
		return ModeMaster, nil
	case "slave":
		return ModeSlave, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}
