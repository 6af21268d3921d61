// Package codec frames protocol messages for the pipes.
//
// A frame is a one-byte kind, a big-endian uint32 payload length and the
// payload. Command payloads are the single command byte; every other payload
// is gob-encoded. Decoding is strict: an unknown kind, an oversize length, a
// short payload, an undecodable body and unconsumed bytes after the value are
// all framing errors.
package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"

	"dolphinenv/pkg/action"
	"dolphinenv/pkg/protocol"
)

// Kind identifies the payload type of a frame.
type Kind uint8

// Frame kinds.
const (
	KindCommand Kind = iota + 1
	KindBatch
	KindFrame
	KindPointer
	KindState
	KindMemoryRequest
	KindMemoryValue
	KindEmpty
	KindError
)

var kindNames = map[Kind]string{
	KindCommand:       "command",
	KindBatch:         "batch",
	KindFrame:         "frame",
	KindPointer:       "pointer",
	KindState:         "state",
	KindMemoryRequest: "memory-request",
	KindMemoryValue:   "memory-value",
	KindEmpty:         "empty",
	KindError:         "error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// HeaderSize is the size of the kind and length prefix.
const HeaderSize = 5

// MaxPayload bounds a single payload. A 640x528 RGBA frame is about 1.3 MiB.
const MaxPayload = 64 << 20

// Message is one decoded frame.
type Message struct {
	Kind    Kind
	Payload []byte
}

func framingErr(reason string, err error) error {
	return &protocol.FramingError{Reason: reason, Err: err}
}

// Marshal encodes v as a complete frame of the given kind. A nil v produces
// an empty payload.
func Marshal(kind Kind, v any) ([]byte, error) {
	if !kind.Valid() {
		return nil, framingErr(fmt.Sprintf("unknown kind %d", uint8(kind)), nil)
	}
	var payload []byte
	switch {
	case kind == KindCommand:
		cmd, ok := v.(protocol.Command)
		if !ok {
			return nil, fmt.Errorf("command frame needs a protocol.Command, got %T", v)
		}
		payload = []byte{byte(cmd)}
	case v != nil:
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(v); err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", kind, err)
		}
		payload = buf.Bytes()
	}
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%s payload of %d bytes exceeds %d", kind, len(payload), MaxPayload)
	}

	out := make([]byte, HeaderSize+len(payload))
	out[0] = byte(kind)
	binary.BigEndian.PutUint32(out[1:HeaderSize], uint32(len(payload)))
	copy(out[HeaderSize:], payload)
	return out, nil
}

// Write encodes v and writes the frame to w in one call.
func Write(w io.Writer, kind Kind, v any) error {
	data, err := Marshal(kind, v)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s frame: %w", kind, err)
	}
	return nil
}

// ReadMessage reads exactly one frame from r.
func ReadMessage(r io.Reader) (Message, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Message{}, framingErr("empty message", err)
		}
		return Message{}, framingErr("short header", err)
	}
	kind := Kind(hdr[0])
	if !kind.Valid() {
		return Message{}, framingErr(fmt.Sprintf("unknown kind %d", hdr[0]), nil)
	}
	n := binary.BigEndian.Uint32(hdr[1:])
	if n > MaxPayload {
		return Message{}, framingErr(fmt.Sprintf("payload length %d exceeds %d", n, MaxPayload), nil)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, framingErr(fmt.Sprintf("short %s payload", kind), err)
	}
	return Message{Kind: kind, Payload: payload}, nil
}

// ReadSingle reads one frame and then requires r to be at EOF. A pipe opened
// for one message must carry nothing else.
func ReadSingle(r io.Reader) (Message, error) {
	msg, err := ReadMessage(r)
	if err != nil {
		return Message{}, err
	}
	var extra [1]byte
	n, err := r.Read(extra[:])
	for n == 0 && err == nil {
		n, err = r.Read(extra[:])
	}
	if n > 0 {
		return Message{}, framingErr("trailing bytes after "+msg.Kind.String()+" frame", nil)
	}
	if !errors.Is(err, io.EOF) {
		return Message{}, fmt.Errorf("read after %s frame: %w", msg.Kind, err)
	}
	return msg, nil
}

// Expect checks the message kind.
func (m Message) Expect(kind Kind) error {
	if m.Kind == KindError && kind != KindError {
		remote, err := m.RemoteError()
		if err != nil {
			return err
		}
		return remote
	}
	if m.Kind != kind {
		return framingErr(fmt.Sprintf("got %s frame, want %s", m.Kind, kind), nil)
	}
	return nil
}

// Decode gob-decodes the payload into v. Bytes left over after the value
// are a framing error.
func (m Message) Decode(v any) error {
	r := bytes.NewReader(m.Payload)
	if err := gob.NewDecoder(r).Decode(v); err != nil {
		return framingErr("decode "+m.Kind.String(), err)
	}
	if r.Len() != 0 {
		return framingErr(fmt.Sprintf("%d trailing bytes in %s payload", r.Len(), m.Kind), nil)
	}
	return nil
}

// Command decodes a command frame.
func (m Message) Command() (protocol.Command, error) {
	if err := m.Expect(KindCommand); err != nil {
		return 0, err
	}
	if len(m.Payload) != 1 {
		return 0, framingErr(fmt.Sprintf("command payload is %d bytes", len(m.Payload)), nil)
	}
	cmd := protocol.Command(m.Payload[0])
	if !cmd.Valid() {
		return 0, framingErr("unknown command "+cmd.String(), nil)
	}
	return cmd, nil
}

// Batch decodes a batch frame into wire records. Converting them to a
// validated action.Batch is left to the receiver so that an unknown kind
// surfaces as a controller error, not a framing error.
func (m Message) Batch() ([]action.PortRecord, error) {
	if err := m.Expect(KindBatch); err != nil {
		return nil, err
	}
	var recs []action.PortRecord
	if err := m.Decode(&recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// Frame decodes and validates a frame payload.
func (m Message) Frame() (protocol.Frame, error) {
	if err := m.Expect(KindFrame); err != nil {
		return protocol.Frame{}, err
	}
	var f protocol.Frame
	if err := m.Decode(&f); err != nil {
		return protocol.Frame{}, err
	}
	if err := f.Validate(); err != nil {
		return protocol.Frame{}, framingErr("invalid frame", err)
	}
	return f, nil
}

// Pointer decodes a pointer payload.
func (m Message) Pointer() (protocol.Pointer, error) {
	if err := m.Expect(KindPointer); err != nil {
		return protocol.Pointer{}, err
	}
	var p protocol.Pointer
	if err := m.Decode(&p); err != nil {
		return protocol.Pointer{}, err
	}
	return p, nil
}

// MemoryAccess decodes a memory request payload.
func (m Message) MemoryAccess() (protocol.MemoryAccess, error) {
	if err := m.Expect(KindMemoryRequest); err != nil {
		return protocol.MemoryAccess{}, err
	}
	var acc protocol.MemoryAccess
	if err := m.Decode(&acc); err != nil {
		return protocol.MemoryAccess{}, err
	}
	return acc, nil
}

// Value decodes and validates a memory value payload.
func (m Message) Value() (protocol.Value, error) {
	if err := m.Expect(KindMemoryValue); err != nil {
		return protocol.Value{}, err
	}
	var v protocol.Value
	if err := m.Decode(&v); err != nil {
		return protocol.Value{}, err
	}
	if err := v.Validate(); err != nil {
		return protocol.Value{}, framingErr("invalid value", err)
	}
	return v, nil
}

// RemoteError decodes an error reply.
func (m Message) RemoteError() (*protocol.RemoteError, error) {
	if m.Kind != KindError {
		return nil, framingErr(fmt.Sprintf("got %s frame, want error", m.Kind), nil)
	}
	var e protocol.RemoteError
	if err := m.Decode(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ErrorReply builds the payload of an error reply for err.
func ErrorReply(err error) *protocol.RemoteError {
	return &protocol.RemoteError{Code: protocol.ErrorCode(err), Message: err.Error()}
}
