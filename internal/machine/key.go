package machine

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-motion/internal/driver"
	"github.com/nerrad567/gray-logic-motion/internal/netdata"
)

// Scope is the namespace prefix of a key.
type Scope int

// Key scopes.
const (
	ScopeMachine Scope = iota
	ScopeDrive
)

func (s Scope) String() string {
	if s == ScopeDrive {
		return "drive"
	}
	return "machine"
}

// Machine attributes, answered by the key table instead of the driver.
const (
	AttrOperatingMode = "operating_mode"
	AttrSerialnumber  = "serialnumber"
	AttrAddress       = "address"
	AttrSlaves        = "slaves"
	AttrMaster        = "master"
	AttrMasterPort    = "master_port"
	AttrInfos         = "infos"
)

var machineAttrs = map[string]bool{
	AttrOperatingMode: true,
	AttrSerialnumber:  true,
	AttrAddress:       true,
	AttrSlaves:        true,
	AttrMaster:        true,
	AttrMasterPort:    true,
	AttrInfos:         true,
}

// Key is a parsed "scope:attr" key.
//
// "drive:<attr>" always targets the driver. "machine:<attr>" targets the
// key table when attr is a machine attribute and the driver otherwise, so
// "machine:velocity_ref" reads the drive's velocity_ref.
type Key struct {
	Scope Scope
	Attr  string

	// Machine is set when the key table answers the key.
	Machine bool
}

// ParseKey resolves the target of key.
func ParseKey(key string) (Key, error) {
	scope, attr, ok := strings.Cut(key, netdata.KeySeparator)
	if !ok || attr == "" {
		return Key{}, fmt.Errorf("%w: %q has no scope", ErrUnknownKey, key)
	}

	switch scope {
	case "drive":
		return Key{Scope: ScopeDrive, Attr: attr}, nil
	case "machine":
		return Key{Scope: ScopeMachine, Attr: attr, Machine: machineAttrs[attr]}, nil
	}
	return Key{}, fmt.Errorf("%w: unknown scope %q in %q", ErrUnknownKey, scope, key)
}

func (k Key) String() string {
	return k.Scope.String() + netdata.KeySeparator + k.Attr
}

// KeyTable lists the machine attributes of one operating mode and their
// access.
type KeyTable map[string]netdata.Access

var baseTable = KeyTable{
	AttrOperatingMode: netdata.AccessReadWrite,
	AttrSerialnumber:  netdata.AccessRead,
	AttrAddress:       netdata.AccessRead,
	AttrInfos:         netdata.AccessRead,
}

// TableFor returns the key table of mode.
func TableFor(mode OperatingMode) KeyTable {
	t := make(KeyTable, len(baseTable)+2)
	for k, a := range baseTable {
		t[k] = a
	}
	switch mode {
	case ModeMaster:
		t[AttrSlaves] = netdata.AccessRead
	case ModeSlave:
		t[AttrMaster] = netdata.AccessRead
		t[AttrMasterPort] = netdata.AccessRead
	}
	return t
}

// CheckRead returns an error unless attr is readable.
func (t KeyTable) CheckRead(attr string) error {
	a, ok := t[attr]
	if !ok {
		return fmt.Errorf("%w: machine:%s", ErrUnknownKey, attr)
	}
	if !a.Readable() {
		return &driver.WriteOnlyError{Key: "machine:" + attr}
	}
	return nil
}

// CheckWrite returns an error unless attr is writable.
func (t KeyTable) CheckWrite(attr string) error {
	a, ok := t[attr]
	if !ok {
		return fmt.Errorf("%w: machine:%s", ErrUnknownKey, attr)
	}
	if !a.Writable() {
		return &driver.ReadOnlyError{Key: "machine:" + attr}
	}
	return nil
}
