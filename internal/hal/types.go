package hal

import (
	"fmt"
	"strconv"
	"strings"
)

// Type enumerates the HAL value types.
type Type int

const (
	Bit Type = iota + 1
	Float
	S32
	U32
	S64
	U64
)

// String returns the canonical lower-case type name.
func (t Type) String() string {
	switch t {
	case Bit:
		return "bit"
	case Float:
		return "float"
	case S32:
		return "s32"
	case U32:
		return "u32"
	case S64:
		return "s64"
	case U64:
		return "u64"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// PinDir is the data direction of a pin.
type PinDir int

const (
	In PinDir = iota + 1
	Out
	IO
)

// String returns the conventional direction name.
func (d PinDir) String() string {
	switch d {
	case In:
		return "in"
	case Out:
		return "out"
	case IO:
		return "io"
	default:
		return fmt.Sprintf("dir(%d)", int(d))
	}
}

// ParamDir is the writability of a parameter.
type ParamDir int

const (
	RO ParamDir = iota + 1
	RW
)

// String returns the conventional direction name.
func (d ParamDir) String() string {
	switch d {
	case RO:
		return "ro"
	case RW:
		return "rw"
	default:
		return fmt.Sprintf("dir(%d)", int(d))
	}
}

// coerce converts v to the Go representation of a HAL type: bool, float64,
// int32, uint32, int64 or uint64. Numeric inputs of any width are accepted;
// out-of-range values are an error, mirroring the backend's behavior for
// unsigned targets.
func coerce(t Type, v any) (any, error) {
	switch t {
	case Bit:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("bit value must be a bool, got %T", v)
		}
		return b, nil
	case Float:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("float value must be numeric, got %T", v)
		}
		return f, nil
	case S32:
		n, ok := toInt(v)
		if !ok {
			return nil, fmt.Errorf("s32 value must be an integer, got %T", v)
		}
		if n < -1<<31 || n > 1<<31-1 {
			return nil, fmt.Errorf("value %d out of range for s32", n)
		}
		return int32(n), nil
	case U32:
		n, ok := toInt(v)
		if !ok {
			return nil, fmt.Errorf("u32 value must be an integer, got %T", v)
		}
		if n < 0 || n > 1<<32-1 {
			return nil, fmt.Errorf("value %d out of range for u32", n)
		}
		return uint32(n), nil
	case S64:
		n, ok := toInt(v)
		if !ok {
			return nil, fmt.Errorf("s64 value must be an integer, got %T", v)
		}
		return n, nil
	case U64:
		switch n := v.(type) {
		case uint64:
			return n, nil
		case uint:
			return uint64(n), nil
		default:
			i, ok := toInt(v)
			if !ok {
				return nil, fmt.Errorf("u64 value must be an integer, got %T", v)
			}
			if i < 0 {
				return nil, fmt.Errorf("value %d out of range for u64", i)
			}
			return uint64(i), nil
		}
	default:
		return nil, fmt.Errorf("unsupported HAL type %v", t)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// parseValue converts the string form of a HAL value, used by the setter
// surface that accepts halcmd-style text. Integer strings accept the 0x/0
// prefixes; bit strings accept 1/0/true/false case-insensitively.
func parseValue(t Type, s string) (any, error) {
	switch t {
	case Bit:
		switch {
		case s == "1" || strings.EqualFold(s, "true"):
			return true, nil
		case s == "0" || strings.EqualFold(s, "false"):
			return false, nil
		default:
			return nil, fmt.Errorf("invalid bit value %q", s)
		}
	case Float:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float value %q", s)
		}
		return f, nil
	case S32:
		n, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid s32 value %q", s)
		}
		return int32(n), nil
	case U32:
		n, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid u32 value %q", s)
		}
		return uint32(n), nil
	case S64:
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid s64 value %q", s)
		}
		return n, nil
	case U64:
		n, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid u64 value %q", s)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unsupported HAL type %v", t)
	}
}

// zeroValue returns the initial value for a freshly created item.
func zeroValue(t Type) any {
	switch t {
	case Bit:
		return false
	case Float:
		return float64(0)
	case S32:
		return int32(0)
	case U32:
		return uint32(0)
	case S64:
		return int64(0)
	default:
		return uint64(0)
	}
}
