package slave

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-motion/internal/driver"
	"github.com/nerrad567/gray-logic-motion/internal/message"
	"github.com/nerrad567/gray-logic-motion/internal/netdata"
)

// Defaults applied when a slave config does not override them.
const (
	DefaultTimeout         = 500 * time.Millisecond
	DefaultRefreshInterval = 500 * time.Millisecond
	DefaultMaxErrors       = 10
)

// Config keys a slave may override.
const (
	ConfigTimeout         = "timeout"
	ConfigRefreshInterval = "refresh_interval"
	ConfigMaxErrors       = "max_errors"
)

// Slave describes one remote drive. It is a value: changing a field means
// building a new Slave.
type Slave struct {
	// Serialnumber is empty until the slave answered a query.
	Serialnumber string
	Address      message.Address
	Driver       driver.Type
	ControlMode  netdata.ControlMode
	Config       map[string]string
}

// New parses a slave descriptor. An empty driver means remote and an
// empty control mode means velocity.
func New(address, drv, mode string, config map[string]string) (Slave, error) {
	addr, err := message.ParseAddress(address)
	if err != nil {
		return Slave{}, fmt.Errorf("%w: %w", ErrInvalidSlave, err)
	}

	t := driver.TypeRemote
	if drv != "" {
		if t, err = driver.ParseType(drv); err != nil {
			return Slave{}, fmt.Errorf("%w: %w", ErrInvalidSlave, err)
		}
	}

	cm := netdata.ControlVelocity
	if mode != "" {
		if cm, err = netdata.ParseControlMode(mode); err != nil {
			return Slave{}, fmt.Errorf("%w: %w", ErrInvalidSlave, err)
		}
	}

	s := Slave{Address: addr, Driver: t, ControlMode: cm, Config: maps.Clone(config)}
	if err := s.Validate(); err != nil {
		return Slave{}, err
	}
	return s, nil
}

// Validate checks the descriptor.
func (s Slave) Validate() error {
	if s.Address.Host == "" {
		return fmt.Errorf("%w: missing address", ErrInvalidSlave)
	}
	if !s.ControlMode.Valid() {
		return fmt.Errorf("%w: control mode %s", ErrInvalidSlave, s.ControlMode)
	}
	if _, err := driver.ParseType(string(s.Driver)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSlave, err)
	}
	for _, key := range []string{ConfigTimeout, ConfigRefreshInterval} {
		if v, ok := s.Config[key]; ok {
			if _, err := parseSeconds(v); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidSlave, key, err)
			}
		}
	}
	if v, ok := s.Config[ConfigMaxErrors]; ok {
		if n, err := strconv.Atoi(v); err != nil || n < 0 {
			return fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidSlave, ConfigMaxErrors)
		}
	}
	return nil
}

// WithSerialnumber returns a copy of s with the serial number set.
func (s Slave) WithSerialnumber(sn string) Slave {
	s.Config = maps.Clone(s.Config)
	s.Serialnumber = sn
	return s
}

// ID returns the serial number, or the address while it is unknown.
func (s Slave) ID() string {
	if s.Serialnumber != "" {
		return s.Serialnumber
	}
	return s.Address.String()
}

// Matches reports whether id names s: its serial number, its address or
// its host.
func (s Slave) Matches(id string) bool {
	if id == "" {
		return false
	}
	return id == s.Serialnumber || id == s.Address.String() || id == s.Address.Host
}

// Timeout is the driver timeout of the slave.
func (s Slave) Timeout() time.Duration {
	return s.duration(ConfigTimeout, DefaultTimeout)
}

// RefreshInterval is the watcher and watchdog period.
func (s Slave) RefreshInterval() time.Duration {
	return s.duration(ConfigRefreshInterval, DefaultRefreshInterval)
}

// MaxErrors is the number of consecutive failed cycles tolerated before
// the fatal state is set.
func (s Slave) MaxErrors() int {
	if v, ok := s.Config[ConfigMaxErrors]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return DefaultMaxErrors
}

// DriverConfig locates the slave for a driver factory.
func (s Slave) DriverConfig() driver.Config {
	return driver.Config{
		Host:    s.Address.Host,
		Port:    s.Address.Port,
		Timeout: s.Timeout(),
		Options: maps.Clone(s.Config),
	}
}

func (s Slave) String() string {
	sn := s.Serialnumber
	if sn == "" {
		sn = "unknown"
	}
	return fmt.Sprintf("slave %s at %s (%s, %s)", sn, s.Address, s.Driver, s.ControlMode)
}

func (s Slave) duration(key string, def time.Duration) time.Duration {
	if v, ok := s.Config[key]; ok {
		if d, err := parseSeconds(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

// parseSeconds accepts a Go duration ("500ms") or a number of seconds ("0.5").
func parseSeconds(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return time.Duration(f * float64(time.Second)), nil
}
