package netdata

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Coerce converts an arbitrary input (JSON, CBOR or Go literal) to the
// canonical Go type of the field: float64, int64 or bool.
func Coerce(f Field, v any) (any, error) {
	switch f.Type {
	case TypeFloat:
		x, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, f.Name, err)
		}
		if math.IsNaN(x) || math.Abs(x) > math.MaxFloat32 {
			return nil, fmt.Errorf("%w: %s: %v out of float32 range", ErrInvalidValue, f.Name, v)
		}
		return x, nil

	case TypeInt:
		n, err := toInt(f, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, f.Name, err)
		}
		if f.Width < wordBits {
			if n < 0 || n > int64(f.mask()) {
				return nil, fmt.Errorf("%w: %s: %d does not fit %d bits", ErrInvalidValue, f.Name, n, f.Width)
			}
		} else if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("%w: %s: %d out of int32 range", ErrInvalidValue, f.Name, n)
		}
		if len(f.Values) > 0 && !definedValue(f, n) {
			return nil, fmt.Errorf("%w: %s: %d is not a defined value", ErrInvalidValue, f.Name, n)
		}
		return n, nil

	case TypeBool:
		b, err := toBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, f.Name, err)
		}
		return b, nil
	}

	return nil, fmt.Errorf("%w: %s has unsupported type %s", ErrInvalidValue, f.Name, f.Type)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	}
	return 0, fmt.Errorf("cannot convert %T to float", v)
}

func toInt(f Field, v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case ControlMode:
		return int64(x), nil
	case uint:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", x)
		}
		return int64(x), nil
	case float32:
		return floatToInt(float64(x))
	case float64:
		return floatToInt(x)
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(x)
		if n, ok := f.Values[strings.ToLower(s)]; ok {
			return n, nil
		}
		return strconv.ParseInt(s, 0, 64)
	}
	return 0, fmt.Errorf("cannot convert %T to int", v)
}

// definedValue reports whether n appears in the value table of f.
func definedValue(f Field, n int64) bool {
	for _, v := range f.Values {
		if v == n {
			return true
		}
	}
	return false
}

func floatToInt(x float64) (int64, error) {
	if x != math.Trunc(x) {
		return 0, fmt.Errorf("%v is not an integer", x)
	}
	return int64(x), nil
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	}
	n, err := toFloat(v)
	if err != nil {
		return false, fmt.Errorf("cannot convert %T to bool", v)
	}
	return n != 0, nil
}

// EncodeWord converts a coerced value to the raw bits of a field.
// The result is not shifted.
func EncodeWord(f Field, v any) uint32 {
	switch f.Type {
	case TypeFloat:
		x, _ := v.(float64)
		return math.Float32bits(float32(x))
	case TypeInt:
		n, _ := v.(int64)
		return uint32(n) & f.mask()
	case TypeBool:
		if b, _ := v.(bool); b {
			return 1
		}
	}
	return 0
}

// DecodeWord converts raw (unshifted) field bits to a Go value.
func DecodeWord(f Field, w uint32) any {
	switch f.Type {
	case TypeFloat:
		return float64(math.Float32frombits(w))
	case TypeInt:
		if f.Width >= wordBits {
			return int64(int32(w))
		}
		return int64(w & f.mask())
	case TypeBool:
		return w&1 == 1
	}
	return nil
}

// Insert replaces the bits of f inside word with v.
func Insert(word uint32, f Field, v any) uint32 {
	m := f.mask() << f.Start
	return (word &^ m) | ((EncodeWord(f, v) << f.Start) & m)
}

// Extract returns the value of f inside word.
func Extract(word uint32, f Field) any {
	return DecodeWord(f, (word>>f.Start)&f.mask())
}

// Unpack decodes every field of a section word. Scalar sections return a
// single entry keyed by the section name.
func Unpack(s *Section, word uint32) map[string]any {
	out := make(map[string]any, len(s.fields))
	for _, f := range s.fields {
		out[f.Name] = Extract(word, f)
	}
	return out
}

// Pack builds a section word from named values. Missing fields are zero.
func Pack(s *Section, values map[string]any) (uint32, error) {
	var word uint32
	for name, raw := range values {
		f, ok := s.Field(name)
		if !ok {
			return 0, fmt.Errorf("%w: %s:%s", ErrUnknownKey, s.Name, name)
		}
		v, err := Coerce(f, raw)
		if err != nil {
			return 0, err
		}
		word = Insert(word, f, v)
	}
	return word, nil
}

// PutBlock writes word as two big-endian registers.
func PutBlock(b []byte, word uint32) {
	binary.BigEndian.PutUint32(b, word)
}

// Block returns word as the register bytes of one block.
func Block(word uint32) []byte {
	b := make([]byte, BlockSize)
	PutBlock(b, word)
	return b
}

// Word reads one block from register bytes.
func Word(b []byte) (uint32, error) {
	if len(b) < BlockSize {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrShortBlock, len(b), BlockSize)
	}
	return binary.BigEndian.Uint32(b), nil
}
