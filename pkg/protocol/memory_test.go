package protocol_test

import (
	"errors"
	"math"
	"testing"

	"dolphinenv/pkg/protocol"
)

func TestMemoryType_SizeAndNames(t *testing.T) {
	t.Parallel()

	want := map[protocol.MemoryType]struct {
		name string
		size int
	}{
		protocol.U8: {"u8", 1}, protocol.U16: {"u16", 2}, protocol.U32: {"u32", 4}, protocol.U64: {"u64", 8},
		protocol.S8: {"s8", 1}, protocol.S16: {"s16", 2}, protocol.S32: {"s32", 4}, protocol.S64: {"s64", 8},
		protocol.F32: {"f32", 4}, protocol.F64: {"f64", 8},
	}
	for _, mt := range protocol.MemoryTypes() {
		if got := mt.String(); got != want[mt].name {
			t.Errorf("String(%d) = %q, want %q", mt, got, want[mt].name)
		}
		if got := mt.Size(); got != want[mt].size {
			t.Errorf("%s.Size() = %d, want %d", mt, got, want[mt].size)
		}
		parsed, err := protocol.ParseMemoryType(want[mt].name)
		if err != nil || parsed != mt {
			t.Errorf("ParseMemoryType(%q) = %v, %v", want[mt].name, parsed, err)
		}
	}

	if protocol.MemoryType(10).Valid() {
		t.Error("type 10 should be invalid")
	}
	var memErr *protocol.InvalidMemoryTypeError
	if _, err := protocol.ParseMemoryType("u128"); !errors.As(err, &memErr) {
		t.Errorf("ParseMemoryType(u128) error = %v, want InvalidMemoryTypeError", err)
	}
}

// Out-of-range values are rejected for every type, never wrapped.
func TestValue_RejectsOutOfRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		build func() (protocol.Value, error)
	}{
		{"u8 256", func() (protocol.Value, error) { return protocol.UintValue(protocol.U8, 256) }},
		{"u16 65536", func() (protocol.Value, error) { return protocol.UintValue(protocol.U16, 1<<16) }},
		{"u32 2^32", func() (protocol.Value, error) { return protocol.UintValue(protocol.U32, 1<<32) }},
		{"s8 128", func() (protocol.Value, error) { return protocol.IntValue(protocol.S8, 128) }},
		{"s8 -129", func() (protocol.Value, error) { return protocol.IntValue(protocol.S8, -129) }},
		{"s16 32768", func() (protocol.Value, error) { return protocol.IntValue(protocol.S16, 32768) }},
		{"s32 -2^31-1", func() (protocol.Value, error) { return protocol.IntValue(protocol.S32, math.MinInt32-1) }},
		{"f32 1e39", func() (protocol.Value, error) { return protocol.FloatValue(protocol.F32, 1e39) }},
		{"parse u8 300", func() (protocol.Value, error) { return protocol.ParseValue(protocol.U8, "300") }},
		{"parse u64 2^64", func() (protocol.Value, error) { return protocol.ParseValue(protocol.U64, "18446744073709551616") }},
		{"parse s64 2^63", func() (protocol.Value, error) { return protocol.ParseValue(protocol.S64, "9223372036854775808") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := tt.build()
			if err == nil {
				t.Fatal("expected error")
			}
			// ParseUint/ParseInt overflow surfaces as a shape error; direct
			// constructors surface a range error.
			if !errors.Is(err, protocol.ErrValueRange) && !errors.Is(err, protocol.ErrValueShape) {
				t.Fatalf("error = %v, want ErrValueRange", err)
			}
		})
	}
}

func TestValue_RejectsMismatchedShape(t *testing.T) {
	t.Parallel()

	if _, err := protocol.UintValue(protocol.S8, 1); !errors.Is(err, protocol.ErrValueShape) {
		t.Errorf("UintValue(s8) error = %v", err)
	}
	if _, err := protocol.IntValue(protocol.U8, 1); !errors.Is(err, protocol.ErrValueShape) {
		t.Errorf("IntValue(u8) error = %v", err)
	}
	if _, err := protocol.FloatValue(protocol.U32, 1); !errors.Is(err, protocol.ErrValueShape) {
		t.Errorf("FloatValue(u32) error = %v", err)
	}
	if _, err := protocol.IntValue(protocol.F64, 1); !errors.Is(err, protocol.ErrValueShape) {
		t.Errorf("IntValue(f64) error = %v", err)
	}
	if _, err := protocol.ParseValue(protocol.U8, "1.5"); !errors.Is(err, protocol.ErrValueShape) {
		t.Errorf("ParseValue(u8, 1.5) error = %v", err)
	}
}

func TestValue_Accessors(t *testing.T) {
	t.Parallel()

	u, _ := protocol.UintValue(protocol.U16, 0xBEEF)
	if n, ok := u.Uint(); !ok || n != 0xBEEF {
		t.Errorf("Uint() = %d, %v", n, ok)
	}
	if _, ok := u.Int(); ok {
		t.Error("Int() on u16 should fail")
	}

	s, _ := protocol.IntValue(protocol.S8, -2)
	if s.Bits != 0xFE {
		t.Errorf("s8 -2 bits = %#x, want 0xfe", s.Bits)
	}
	if n, ok := s.Int(); !ok || n != -2 {
		t.Errorf("Int() = %d, %v", n, ok)
	}

	s64, _ := protocol.IntValue(protocol.S64, math.MinInt64)
	if n, _ := s64.Int(); n != math.MinInt64 {
		t.Errorf("s64 min = %d", n)
	}

	f, _ := protocol.FloatValue(protocol.F32, 1.5)
	if v, ok := f.Float(); !ok || v != 1.5 {
		t.Errorf("Float() = %g, %v", v, ok)
	}
	if f.Bits != uint64(math.Float32bits(1.5)) {
		t.Errorf("f32 bits = %#x", f.Bits)
	}

	inf, err := protocol.FloatValue(protocol.F32, math.Inf(1))
	if err != nil {
		t.Fatalf("FloatValue(+Inf): %v", err)
	}
	if v, _ := inf.Float(); !math.IsInf(v, 1) {
		t.Errorf("f32 +Inf round trip = %g", v)
	}
}

func TestValue_ValidateRejectsHighBits(t *testing.T) {
	t.Parallel()

	v := protocol.Value{Type: protocol.U8, Bits: 0x1FF}
	if err := v.Validate(); !errors.Is(err, protocol.ErrValueRange) {
		t.Errorf("Validate() = %v, want ErrValueRange", err)
	}
	bad := protocol.Value{Type: protocol.MemoryType(42)}
	var memErr *protocol.InvalidMemoryTypeError
	if err := bad.Validate(); !errors.As(err, &memErr) {
		t.Errorf("Validate() = %v, want InvalidMemoryTypeError", err)
	}
}

func TestMemoryAccess_Validate(t *testing.T) {
	t.Parallel()

	v, _ := protocol.UintValue(protocol.U8, 7)
	ok := protocol.MemoryAccess{Address: 0x80000000, Type: protocol.U8, Value: v}
	if err := ok.Validate(true); err != nil {
		t.Errorf("Validate(write) = %v", err)
	}

	mismatch := protocol.MemoryAccess{Address: 0x80000000, Type: protocol.U16, Value: v}
	if err := mismatch.Validate(true); !errors.Is(err, protocol.ErrValueShape) {
		t.Errorf("Validate(mismatch) = %v, want ErrValueShape", err)
	}
	if err := mismatch.Validate(false); err != nil {
		t.Errorf("reads ignore the value, got %v", err)
	}
}
