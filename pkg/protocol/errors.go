package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors. Match with errors.Is.
var (
	// ErrNotSupported is returned by operations the emulator side does not
	// implement yet (state retrieval).
	ErrNotSupported = errors.New("not supported")

	// ErrNotConnected means no emulator subprocess is running for the session.
	ErrNotConnected = errors.New("session not connected")

	// ErrDisconnected means End was already sent; the emulator no longer reads commands.
	ErrDisconnected = errors.New("session disconnected")

	// ErrValueShape is a memory value whose kind (unsigned, signed, float)
	// does not match the type tag.
	ErrValueShape = errors.New("value shape does not match memory type")

	// ErrValueRange is a memory value outside the range of its type.
	ErrValueRange = errors.New("value out of range for memory type")
)

// PipeCreationConflictError reports an object already present at a pipe path
// that could not be reused.
type PipeCreationConflictError struct {
	Path   string
	Reason string
}

func (e *PipeCreationConflictError) Error() string {
	return fmt.Sprintf("pipe %s: %s", e.Path, e.Reason)
}

// FramingError reports a malformed message: bad header, short payload,
// undecodable body or trailing bytes. It spoils one message, not the loop.
type FramingError struct {
	Reason string
	Err    error
}

func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("framing: %s: %v", e.Reason, e.Err)
	}
	return "framing: " + e.Reason
}

func (e *FramingError) Unwrap() error { return e.Err }

// InvalidControllerKindError reports an action whose kind matches none of the five.
type InvalidControllerKindError struct {
	Kind ControllerKind
}

func (e *InvalidControllerKindError) Error() string {
	return fmt.Sprintf("invalid controller kind %d", uint8(e.Kind))
}

// InvalidPortError reports a controller index outside 0..MaxPorts-1.
type InvalidPortError struct {
	Port int
}

func (e *InvalidPortError) Error() string {
	return fmt.Sprintf("invalid controller port %d (want 0..%d)", e.Port, MaxPorts-1)
}

// InvalidMemoryTypeError reports an unrecognized memory type tag or name.
type InvalidMemoryTypeError struct {
	Type MemoryType
	Name string // set when parsing a name failed
}

func (e *InvalidMemoryTypeError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("invalid memory type %q", e.Name)
	}
	return fmt.Sprintf("invalid memory type %d", uint8(e.Type))
}

// PeerUnavailableError reports a transport operation that did not complete
// because the other side never showed up or went away.
type PeerUnavailableError struct {
	Op   string // "open", "read", "write", "ack"
	Path string
	Err  error
}

func (e *PeerUnavailableError) Error() string {
	return fmt.Sprintf("peer unavailable: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PeerUnavailableError) Unwrap() error { return e.Err }

// Error codes carried in an error reply.
const (
	CodeInternal              uint8 = 0
	CodeInvalidControllerKind uint8 = 1
	CodeInvalidPort           uint8 = 2
	CodeInvalidMemoryType     uint8 = 3
	CodeInvalidValue          uint8 = 4
	CodeFraming               uint8 = 5
)

// RemoteError is an error reply from the emulator side.
type RemoteError struct {
	Code    uint8
	Message string
}

func (e *RemoteError) Error() string {
	return "emulator: " + e.Message
}

// ErrorCode classifies err for an error reply.
func ErrorCode(err error) uint8 {
	var (
		kindErr *InvalidControllerKindError
		portErr *InvalidPortError
		memErr  *InvalidMemoryTypeError
		frmErr  *FramingError
	)
	switch {
	case errors.As(err, &kindErr):
		return CodeInvalidControllerKind
	case errors.As(err, &portErr):
		return CodeInvalidPort
	case errors.As(err, &memErr):
		return CodeInvalidMemoryType
	case errors.Is(err, ErrValueShape), errors.Is(err, ErrValueRange):
		return CodeInvalidValue
	case errors.As(err, &frmErr):
		return CodeFraming
	default:
		return CodeInternal
	}
}
