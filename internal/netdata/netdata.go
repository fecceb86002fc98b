package netdata

import (
	"fmt"
	"sort"
	"strings"
)

// Register layout of a netdata block.
const (
	// RegistersPerNetdata is the number of 16-bit registers of one block.
	RegistersPerNetdata = 2

	// BlockSize is the size in bytes of one block on the wire.
	BlockSize = RegistersPerNetdata * 2

	// MaxIndex is the highest netdata index a drive exposes.
	MaxIndex = 999

	// wordBits is the width of a block seen as one big-endian word.
	wordBits = 32
)

// KeySeparator separates a section from its subkey ("command:enable").
const KeySeparator = ":"

// ValueType is the decoded type of a field.
type ValueType int

// Supported value types.
const (
	TypeFloat ValueType = iota + 1 // IEEE-754 float32 on the wire, float64 in Go
	TypeInt                        // two's complement int32, or an unsigned bit field inside a composite
	TypeBool                       // single bit
)

// String returns the name used in netdata map files.
func (t ValueType) String() string {
	switch t {
	case TypeFloat:
		return "float"
	case TypeInt:
		return "int"
	case TypeBool:
		return "bool"
	default:
		return fmt.Sprintf("ValueType(%d)", int(t))
	}
}

// ParseValueType converts a map file type name.
func ParseValueType(s string) (ValueType, error) {
	switch strings.ToLower(s) {
	case "float", "float32":
		return TypeFloat, nil
	case "int", "int32", "uint":
		return TypeInt, nil
	case "bool":
		return TypeBool, nil
	default:
		return 0, fmt.Errorf("%w: unknown value type %q", ErrInvalidMap, s)
	}
}

// Access is the permitted direction of a field.
type Access string

// Access modes.
const (
	AccessRead      Access = "r"
	AccessWrite     Access = "w"
	AccessReadWrite Access = "rw"
)

// Readable reports whether the field may be read from the drive.
func (a Access) Readable() bool { return strings.Contains(string(a), "r") }

// Writable reports whether the field may be written to the drive.
func (a Access) Writable() bool { return strings.Contains(string(a), "w") }

func parseAccess(s string) (Access, error) {
	switch Access(strings.ToLower(s)) {
	case AccessRead, "ro":
		return AccessRead, nil
	case AccessWrite, "wo":
		return AccessWrite, nil
	case AccessReadWrite:
		return AccessReadWrite, nil
	default:
		return "", fmt.Errorf("%w: unknown access mode %q", ErrInvalidMap, s)
	}
}

// Field describes one value inside a block.
//
// Scalar sections have a single field spanning the whole word. Composite
// sections pack several fields, each at bit offset Start with Width bits
// (bit 0 is the least significant bit of the big-endian word).
type Field struct {
	Name   string
	Type   ValueType
	Access Access
	Start  uint
	Width  uint

	// Forget marks a momentary command bit: it is pulsed and never kept set.
	Forget bool

	// Unique marks a field whose write is skipped when unchanged.
	Unique bool

	// Values optionally names the accepted integer values ("velocity" -> 2).
	Values map[string]int64
}

func (f Field) mask() uint32 {
	if f.Width >= wordBits {
		return ^uint32(0)
	}
	return (uint32(1) << f.Width) - 1
}

// Section is one netdata block.
type Section struct {
	Name  string
	Index uint16

	// fields holds a single unnamed field for scalar sections.
	fields    []Field
	composite bool
}

// Composite reports whether the section packs named subkeys.
func (s *Section) Composite() bool { return s.composite }

// Fields returns the section fields in declaration order.
func (s *Section) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field returns a composite subkey descriptor.
func (s *Section) Field(name string) (Field, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Address returns the first register of the block.
func (s *Section) Address() uint16 {
	return s.Index * RegistersPerNetdata
}

// Scalar builds a section holding a single value.
func Scalar(name string, index uint16, t ValueType, access Access) Section {
	return Section{
		Name:   name,
		Index:  index,
		fields: []Field{{Name: name, Type: t, Access: access, Width: wordBits}},
	}
}

// Composite builds a section packing several named fields.
func Composite(name string, index uint16, fields ...Field) Section {
	fs := make([]Field, len(fields))
	for i, f := range fields {
		if f.Width == 0 {
			f.Width = 1
		}
		fs[i] = f
	}
	return Section{Name: name, Index: index, fields: fs, composite: true}
}

// Ref is a resolved key.
type Ref struct {
	Key     string
	Section *Section
	// Field is the addressed field. For a bare composite section it is the
	// zero value and Whole is true.
	Field Field
	Whole bool
}

// Map is an immutable netdata map for one driver type.
type Map struct {
	name     string
	sections map[string]*Section
	order    []string
}

// NewMap validates and builds a map.
func NewMap(name string, sections ...Section) (*Map, error) {
	m := &Map{
		name:     name,
		sections: make(map[string]*Section, len(sections)),
	}

	indexes := make(map[uint16]string, len(sections))
	for i := range sections {
		s := sections[i]
		if s.Name == "" {
			return nil, fmt.Errorf("%w: section %d has no name", ErrInvalidMap, i)
		}
		if strings.Contains(s.Name, KeySeparator) {
			return nil, fmt.Errorf("%w: section name %q contains %q", ErrInvalidMap, s.Name, KeySeparator)
		}
		if s.Index > MaxIndex {
			return nil, fmt.Errorf("%w: section %s index %d exceeds %d", ErrInvalidMap, s.Name, s.Index, MaxIndex)
		}
		if other, dup := indexes[s.Index]; dup {
			return nil, fmt.Errorf("%w: sections %s and %s share index %d", ErrInvalidMap, other, s.Name, s.Index)
		}
		if _, dup := m.sections[s.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate section %s", ErrInvalidMap, s.Name)
		}
		if err := validateFields(&s); err != nil {
			return nil, err
		}

		indexes[s.Index] = s.Name
		m.sections[s.Name] = &s
		m.order = append(m.order, s.Name)
	}

	return m, nil
}

func validateFields(s *Section) error {
	if len(s.fields) == 0 {
		return fmt.Errorf("%w: section %s has no fields", ErrInvalidMap, s.Name)
	}

	var used uint32
	names := make(map[string]bool, len(s.fields))
	for _, f := range s.fields {
		if f.Type == 0 {
			return fmt.Errorf("%w: %s:%s has no type", ErrInvalidMap, s.Name, f.Name)
		}
		if f.Access == "" {
			return fmt.Errorf("%w: %s:%s has no access mode", ErrInvalidMap, s.Name, f.Name)
		}
		if !s.composite {
			continue
		}
		if f.Name == "" || names[f.Name] {
			return fmt.Errorf("%w: section %s has an empty or duplicate field name %q", ErrInvalidMap, s.Name, f.Name)
		}
		names[f.Name] = true
		if f.Type == TypeFloat && f.Width != wordBits {
			return fmt.Errorf("%w: float field %s:%s must span the whole block", ErrInvalidMap, s.Name, f.Name)
		}
		if f.Type == TypeBool && f.Width != 1 {
			return fmt.Errorf("%w: bool field %s:%s must be one bit wide", ErrInvalidMap, s.Name, f.Name)
		}
		if f.Start+f.Width > wordBits {
			return fmt.Errorf("%w: field %s:%s overflows the block", ErrInvalidMap, s.Name, f.Name)
		}
		bits := f.mask() << f.Start
		if used&bits != 0 {
			return fmt.Errorf("%w: field %s:%s overlaps another field", ErrInvalidMap, s.Name, f.Name)
		}
		used |= bits
	}
	return nil
}

// Name returns the driver type the map describes.
func (m *Map) Name() string { return m.name }

// Section returns a section by name.
func (m *Map) Section(name string) (*Section, bool) {
	s, ok := m.sections[name]
	return s, ok
}

// Resolve splits "section[:subkey]" and returns its descriptor.
func (m *Map) Resolve(key string) (Ref, error) {
	section, subkey, _ := strings.Cut(key, KeySeparator)

	s, ok := m.sections[section]
	if !ok {
		return Ref{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	if !s.composite {
		if subkey != "" {
			return Ref{}, fmt.Errorf("%w: %s has no subkeys", ErrUnknownKey, section)
		}
		return Ref{Key: key, Section: s, Field: s.fields[0]}, nil
	}

	if subkey == "" {
		return Ref{Key: key, Section: s, Whole: true}, nil
	}

	f, ok := s.Field(subkey)
	if !ok {
		return Ref{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return Ref{Key: key, Section: s, Field: f}, nil
}

// Attribute is one addressable key of a map.
type Attribute struct {
	Key    string   `json:"key"`
	Type   string   `json:"type"`
	Access Access   `json:"access"`
	Index  uint16   `json:"netdata"`
	Flags  []string `json:"flags,omitempty"`
}

// Attributes lists every addressable key, sorted by key.
func (m *Map) Attributes() []Attribute {
	var attrs []Attribute
	for _, name := range m.order {
		s := m.sections[name]
		for _, f := range s.fields {
			key := s.Name
			if s.composite {
				key = s.Name + KeySeparator + f.Name
			}
			a := Attribute{Key: key, Type: f.Type.String(), Access: f.Access, Index: s.Index}
			if f.Forget {
				a.Flags = append(a.Flags, "forget")
			}
			if f.Unique {
				a.Flags = append(a.Flags, "unique")
			}
			attrs = append(attrs, a)
		}
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Key < attrs[j].Key })
	return attrs
}
