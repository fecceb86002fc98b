package netdata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// mapFile is the on-disk representation of a netdata map.
type mapFile struct {
	Name     string        `yaml:"name"`
	Sections []sectionFile `yaml:"sections"`
}

type sectionFile struct {
	Name   string      `yaml:"name"`
	Index  uint16      `yaml:"index"`
	Type   string      `yaml:"type"`
	Access string      `yaml:"access"`
	Fields []fieldFile `yaml:"fields"`
}

type fieldFile struct {
	Name   string           `yaml:"name"`
	Type   string           `yaml:"type"`
	Access string           `yaml:"access"`
	Start  uint             `yaml:"start"`
	Width  uint             `yaml:"width"`
	Forget bool             `yaml:"forget"`
	Unique bool             `yaml:"unique"`
	Values map[string]int64 `yaml:"values"`
	// ControlMode attaches the standard control mode names.
	ControlMode bool `yaml:"control_mode"`
}

// LoadMap reads a YAML netdata map from path.
func LoadMap(path string) (*Map, error) {
	data, err := os.ReadFile(path) //nolint:gosec // map path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("reading netdata map: %w", err)
	}
	return ParseMap(data)
}

// ParseMap decodes a YAML netdata map.
func ParseMap(data []byte) (*Map, error) {
	var mf mapFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("%w: parsing yaml: %v", ErrInvalidMap, err)
	}
	if mf.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidMap)
	}

	sections := make([]Section, 0, len(mf.Sections))
	for _, sf := range mf.Sections {
		s, err := sf.section()
		if err != nil {
			return nil, err
		}
		sections = append(sections, s)
	}

	return NewMap(mf.Name, sections...)
}

func (sf sectionFile) section() (Section, error) {
	if len(sf.Fields) == 0 {
		t, err := ParseValueType(sf.Type)
		if err != nil {
			return Section{}, fmt.Errorf("section %s: %w", sf.Name, err)
		}
		a, err := parseAccess(sf.Access)
		if err != nil {
			return Section{}, fmt.Errorf("section %s: %w", sf.Name, err)
		}
		return Scalar(sf.Name, sf.Index, t, a), nil
	}

	fields := make([]Field, 0, len(sf.Fields))
	for _, ff := range sf.Fields {
		t, err := ParseValueType(ff.Type)
		if err != nil {
			return Section{}, fmt.Errorf("field %s:%s: %w", sf.Name, ff.Name, err)
		}
		access := ff.Access
		if access == "" {
			access = sf.Access
		}
		a, err := parseAccess(access)
		if err != nil {
			return Section{}, fmt.Errorf("field %s:%s: %w", sf.Name, ff.Name, err)
		}

		width := ff.Width
		if width == 0 && t == TypeFloat {
			width = wordBits
		}
		values := ff.Values
		if ff.ControlMode {
			values = ControlModeValues()
		}

		fields = append(fields, Field{
			Name:   ff.Name,
			Type:   t,
			Access: a,
			Start:  ff.Start,
			Width:  width,
			Forget: ff.Forget,
			Unique: ff.Unique,
			Values: values,
		})
	}
	return Composite(sf.Name, sf.Index, fields...), nil
}
