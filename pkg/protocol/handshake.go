package protocol

import (
	"encoding/json"
	"fmt"
)

// Handshake is the first line the driver writes to the emulator's stdin:
// a JSON array ["<pipe_root>", <session_id>].
type Handshake struct {
	Root string
	ID   int
}

// MarshalJSON encodes the handshake as a two-element array.
func (h Handshake) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{h.Root, h.ID})
}

// UnmarshalJSON decodes a two-element array.
func (h *Handshake) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	if len(parts) != 2 {
		return fmt.Errorf("handshake: want [root, id], got %d elements", len(parts))
	}
	if err := json.Unmarshal(parts[0], &h.Root); err != nil {
		return fmt.Errorf("handshake root: %w", err)
	}
	if err := json.Unmarshal(parts[1], &h.ID); err != nil {
		return fmt.Errorf("handshake id: %w", err)
	}
	if h.Root == "" {
		return fmt.Errorf("handshake: empty pipe root")
	}
	return nil
}
