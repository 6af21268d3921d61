package protocol

import (
	"fmt"
	"math"
	"strconv"
)

// MemoryType is the numeric type tag of a memory access. It fixes both the
// access width and how the bits are interpreted.
type MemoryType uint8

// Memory types, in wire order.
const (
	U8 MemoryType = iota
	U16
	U32
	U64
	S8
	S16
	S32
	S64
	F32
	F64
)

type memoryTypeInfo struct {
	name   string
	size   int
	signed bool
	float  bool
}

var memoryTypes = [...]memoryTypeInfo{
	U8:  {"u8", 1, false, false},
	U16: {"u16", 2, false, false},
	U32: {"u32", 4, false, false},
	U64: {"u64", 8, false, false},
	S8:  {"s8", 1, true, false},
	S16: {"s16", 2, true, false},
	S32: {"s32", 4, true, false},
	S64: {"s64", 8, true, false},
	F32: {"f32", 4, true, true},
	F64: {"f64", 8, true, true},
}

// MemoryTypes lists all ten types in wire order.
func MemoryTypes() []MemoryType {
	return []MemoryType{U8, U16, U32, U64, S8, S16, S32, S64, F32, F64}
}

// Valid reports whether t is one of the ten known types.
func (t MemoryType) Valid() bool {
	return int(t) < len(memoryTypes)
}

// Size returns the access width in bytes, or 0 for an unknown type.
func (t MemoryType) Size() int {
	if !t.Valid() {
		return 0
	}
	return memoryTypes[t].size
}

// IsFloat reports whether t is f32 or f64.
func (t MemoryType) IsFloat() bool {
	return t.Valid() && memoryTypes[t].float
}

// IsSigned reports whether t is a signed integer type.
func (t MemoryType) IsSigned() bool {
	return t.Valid() && memoryTypes[t].signed && !memoryTypes[t].float
}

func (t MemoryType) String() string {
	if t.Valid() {
		return memoryTypes[t].name
	}
	return fmt.Sprintf("memtype(%d)", uint8(t))
}

// ParseMemoryType maps "u8".."f64" to a MemoryType.
func ParseMemoryType(s string) (MemoryType, error) {
	for i, info := range memoryTypes {
		if info.name == s {
			return MemoryType(i), nil
		}
	}
	return 0, &InvalidMemoryTypeError{Name: s}
}

// Value is a typed memory value. Bits holds the raw big-endian-ready bit
// pattern of the type's width; higher bits are always zero.
//
// Out-of-range values are rejected at construction for every type; nothing
// is ever wrapped or truncated.
type Value struct {
	Type MemoryType
	Bits uint64
}

func widthMask(t MemoryType) uint64 {
	if t.Size() == 8 {
		return math.MaxUint64
	}
	return 1<<(8*uint(t.Size())) - 1
}

// UintValue builds an unsigned value. t must be u8..u64.
func UintValue(t MemoryType, v uint64) (Value, error) {
	if !t.Valid() {
		return Value{}, &InvalidMemoryTypeError{Type: t}
	}
	if t.IsFloat() || t.IsSigned() {
		return Value{}, fmt.Errorf("%w: unsigned value for %s", ErrValueShape, t)
	}
	if v&^widthMask(t) != 0 {
		return Value{}, fmt.Errorf("%w: %d does not fit %s", ErrValueRange, v, t)
	}
	return Value{Type: t, Bits: v}, nil
}

// IntValue builds a signed value. t must be s8..s64.
func IntValue(t MemoryType, v int64) (Value, error) {
	if !t.Valid() {
		return Value{}, &InvalidMemoryTypeError{Type: t}
	}
	if !t.IsSigned() {
		return Value{}, fmt.Errorf("%w: signed value for %s", ErrValueShape, t)
	}
	bits := 8 * uint(t.Size())
	if bits < 64 {
		lo, hi := -(int64(1) << (bits - 1)), int64(1)<<(bits-1)-1
		if v < lo || v > hi {
			return Value{}, fmt.Errorf("%w: %d does not fit %s", ErrValueRange, v, t)
		}
	}
	return Value{Type: t, Bits: uint64(v) & widthMask(t)}, nil
}

// FloatValue builds a float value. t must be f32 or f64. For f32, finite
// values beyond ±MaxFloat32 are rejected; NaN and ±Inf are stored as is.
func FloatValue(t MemoryType, v float64) (Value, error) {
	if !t.Valid() {
		return Value{}, &InvalidMemoryTypeError{Type: t}
	}
	switch t {
	case F32:
		if !math.IsInf(v, 0) && !math.IsNaN(v) && math.Abs(v) > math.MaxFloat32 {
			return Value{}, fmt.Errorf("%w: %g does not fit f32", ErrValueRange, v)
		}
		return Value{Type: t, Bits: uint64(math.Float32bits(float32(v)))}, nil
	case F64:
		return Value{Type: t, Bits: math.Float64bits(v)}, nil
	default:
		return Value{}, fmt.Errorf("%w: float value for %s", ErrValueShape, t)
	}
}

// ParseValue parses s according to t: decimal or 0x-prefixed integers for
// integer types, floating point for f32/f64.
func ParseValue(t MemoryType, s string) (Value, error) {
	switch {
	case !t.Valid():
		return Value{}, &InvalidMemoryTypeError{Type: t}
	case t.IsFloat():
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not a float", ErrValueShape, s)
		}
		return FloatValue(t, f)
	case t.IsSigned():
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not a signed integer", ErrValueShape, s)
		}
		return IntValue(t, n)
	default:
		n, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not an unsigned integer", ErrValueShape, s)
		}
		return UintValue(t, n)
	}
}

// Validate checks a decoded value: known type and no bits above its width.
func (v Value) Validate() error {
	if !v.Type.Valid() {
		return &InvalidMemoryTypeError{Type: v.Type}
	}
	if v.Bits&^widthMask(v.Type) != 0 {
		return fmt.Errorf("%w: bits %#x exceed %s", ErrValueRange, v.Bits, v.Type)
	}
	return nil
}

// Uint returns the value of an unsigned type.
func (v Value) Uint() (uint64, bool) {
	if !v.Type.Valid() || v.Type.IsSigned() || v.Type.IsFloat() {
		return 0, false
	}
	return v.Bits, true
}

// Int returns the value of a signed integer type, sign-extended.
func (v Value) Int() (int64, bool) {
	if !v.Type.IsSigned() {
		return 0, false
	}
	shift := 64 - 8*uint(v.Type.Size())
	return int64(v.Bits<<shift) >> shift, true
}

// Float returns the value of a float type.
func (v Value) Float() (float64, bool) {
	switch v.Type {
	case F32:
		return float64(math.Float32frombits(uint32(v.Bits))), true
	case F64:
		return math.Float64frombits(v.Bits), true
	default:
		return 0, false
	}
}

func (v Value) String() string {
	if n, ok := v.Uint(); ok {
		return fmt.Sprintf("%s:%d", v.Type, n)
	}
	if n, ok := v.Int(); ok {
		return fmt.Sprintf("%s:%d", v.Type, n)
	}
	if f, ok := v.Float(); ok {
		return fmt.Sprintf("%s:%g", v.Type, f)
	}
	return fmt.Sprintf("%s:%#x", v.Type, v.Bits)
}

// MemoryAccess addresses one typed location in emulated memory. Value is
// only meaningful for writes, where Value.Type must equal Type.
type MemoryAccess struct {
	Address uint32
	Type    MemoryType
	Value   Value
}

// Validate checks the type tag and, for writes, the value shape.
func (m MemoryAccess) Validate(write bool) error {
	if !m.Type.Valid() {
		return &InvalidMemoryTypeError{Type: m.Type}
	}
	if !write {
		return nil
	}
	if m.Value.Type != m.Type {
		return fmt.Errorf("%w: %s value written as %s", ErrValueShape, m.Value.Type, m.Type)
	}
	return m.Value.Validate()
}
