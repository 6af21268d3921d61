// Package script is the emulator side of the control protocol: it reads
// commands from the pipes, applies them to a Host and writes the replies.
package script

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"dolphinenv/pkg/action"
	"dolphinenv/pkg/protocol"
)

// Host is the capability surface of the emulator's scripting environment.
// Calls come from the single dispatch goroutine.
type Host interface {
	// AdvanceFrame runs the emulation until the next frame is rendered and
	// returns it. The returned pixels may be reused by the next call.
	AdvanceFrame(ctx context.Context) (protocol.Frame, error)

	SetGameCubeButtons(port int, a action.Action) error
	SetWiimoteButtons(port int, a action.Action) error
	SetWiiClassicButtons(port int, a action.Action) error
	SetWiiNunchukButtons(port int, a action.Action) error
	SetGBAButtons(port int, a action.Action) error

	SetWiimotePointer(port int, x, y float64) error

	// ReadMemory fills buf from emulated memory at addr.
	ReadMemory(addr uint32, buf []byte) error
	// WriteMemory stores buf into emulated memory at addr.
	WriteMemory(addr uint32, buf []byte) error
}

// ReadHandshake reads the driver's handshake line from r (the emulator's stdin).
func ReadHandshake(r io.Reader) (protocol.Handshake, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && (err != io.EOF || strings.TrimSpace(line) == "") {
		return protocol.Handshake{}, fmt.Errorf("read handshake: %w", err)
	}
	var h protocol.Handshake
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &h); err != nil {
		return protocol.Handshake{}, err
	}
	return h, nil
}
