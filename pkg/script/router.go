package script

import (
	"encoding/binary"
	"fmt"
	"math"

	"dolphinenv/pkg/action"
	"dolphinenv/pkg/protocol"
)

// Route applies every entry of b to the host in ascending port order. It
// stops at the first failure; entries before it have been applied.
func Route(h Host, b action.Batch) error {
	for _, port := range b.Ports() {
		if !protocol.ValidPort(port) {
			return &protocol.InvalidPortError{Port: port}
		}
	}
	for _, port := range b.Ports() {
		if err := routeOne(h, port, b[port]); err != nil {
			return fmt.Errorf("port %d: %w", port, err)
		}
	}
	return nil
}

func routeOne(h Host, port int, a action.Action) error {
	switch a.Kind() {
	case protocol.GameCube:
		return h.SetGameCubeButtons(port, a)
	case protocol.Wiimote:
		return h.SetWiimoteButtons(port, a)
	case protocol.WiiClassic:
		return h.SetWiiClassicButtons(port, a)
	case protocol.WiiNunchuk:
		return h.SetWiiNunchukButtons(port, a)
	case protocol.GBA:
		return h.SetGBAButtons(port, a)
	default:
		return &protocol.InvalidControllerKindError{Kind: a.Kind()}
	}
}

// ReadValue performs a typed big-endian read.
func ReadValue(h Host, addr uint32, t protocol.MemoryType) (protocol.Value, error) {
	var buf [8]byte
	if !t.Valid() {
		return protocol.Value{}, &protocol.InvalidMemoryTypeError{Type: t}
	}
	b := buf[:t.Size()]
	if err := h.ReadMemory(addr, b); err != nil {
		return protocol.Value{}, fmt.Errorf("read %s at %#08x: %w", t, addr, err)
	}

	switch t {
	case protocol.U8:
		return protocol.UintValue(t, uint64(b[0]))
	case protocol.U16:
		return protocol.UintValue(t, uint64(binary.BigEndian.Uint16(b)))
	case protocol.U32:
		return protocol.UintValue(t, uint64(binary.BigEndian.Uint32(b)))
	case protocol.U64:
		return protocol.UintValue(t, binary.BigEndian.Uint64(b))
	case protocol.S8:
		return protocol.IntValue(t, int64(int8(b[0])))
	case protocol.S16:
		return protocol.IntValue(t, int64(int16(binary.BigEndian.Uint16(b))))
	case protocol.S32:
		return protocol.IntValue(t, int64(int32(binary.BigEndian.Uint32(b))))
	case protocol.S64:
		return protocol.IntValue(t, int64(binary.BigEndian.Uint64(b)))
	case protocol.F32:
		// Keep the raw bits; a float64 round trip would quiet NaN payloads.
		return protocol.Value{Type: t, Bits: uint64(binary.BigEndian.Uint32(b))}, nil
	case protocol.F64:
		return protocol.FloatValue(t, math.Float64frombits(binary.BigEndian.Uint64(b)))
	default:
		return protocol.Value{}, &protocol.InvalidMemoryTypeError{Type: t}
	}
}

// WriteValue performs a typed big-endian write. The access is validated
// first, so out-of-range values never reach memory.
func WriteValue(h Host, acc protocol.MemoryAccess) error {
	if err := acc.Validate(true); err != nil {
		return err
	}
	var buf [8]byte
	v := acc.Value
	b := buf[:acc.Type.Size()]

	switch acc.Type {
	case protocol.U8, protocol.S8:
		b[0] = byte(v.Bits)
	case protocol.U16, protocol.S16:
		binary.BigEndian.PutUint16(b, uint16(v.Bits))
	case protocol.U32, protocol.S32, protocol.F32:
		binary.BigEndian.PutUint32(b, uint32(v.Bits))
	case protocol.U64, protocol.S64, protocol.F64:
		binary.BigEndian.PutUint64(b, v.Bits)
	default:
		return &protocol.InvalidMemoryTypeError{Type: acc.Type}
	}
	if err := h.WriteMemory(acc.Address, b); err != nil {
		return fmt.Errorf("write %s at %#08x: %w", acc.Type, acc.Address, err)
	}
	return nil
}
