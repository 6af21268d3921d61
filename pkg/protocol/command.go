package protocol

import "fmt"

// Command is the tag sent on the command pipe. It selects the request shape
// that follows on the data pipe, if any.
type Command uint8

// Command values. DoAction..End keep the numbering of the first protocol
// revision so old captures still decode.
const (
	CmdDoAction Command = iota
	CmdGetFrame
	CmdGetState
	CmdEnd
	CmdSetPointer
	CmdReadMemory
	CmdWriteMemory
)

var commandNames = [...]string{
	CmdDoAction:    "DO_ACTION",
	CmdGetFrame:    "GET_FRAME",
	CmdGetState:    "GET_STATE",
	CmdEnd:         "END",
	CmdSetPointer:  "SET_POINTER",
	CmdReadMemory:  "READ_MEMORY",
	CmdWriteMemory: "WRITE_MEMORY",
}

// Valid reports whether c is a known command.
func (c Command) Valid() bool {
	return int(c) < len(commandNames)
}

func (c Command) String() string {
	if c.Valid() {
		return commandNames[c]
	}
	return fmt.Sprintf("COMMAND(%d)", uint8(c))
}

// ExpectsReply reports whether the emulator answers c on the data pipe.
func (c Command) ExpectsReply() bool {
	switch c {
	case CmdDoAction, CmdGetFrame, CmdGetState, CmdReadMemory, CmdWriteMemory:
		return true
	default:
		return false
	}
}
