package protocol

// Pipe file names inside a session directory ({pipe_root}/{session_id}/).
const (
	// DataPipe carries payload messages in both directions, one at a time.
	DataPipe = "main_pipe"

	// CommandPipe carries command tags from driver to emulator.
	CommandPipe = "command_pipe"

	// WaitingPipe carries the one-byte receipt that closes every message exchange.
	WaitingPipe = "waiting_pipe"
)

// HomeDir is the user-level state directory (e.g., ~/.dolphinenv).
const HomeDir = ".dolphinenv"

// MaxPorts is the number of physical controller ports per kind.
const MaxPorts = 4

// Default render size of the target title. Matches the observation shape the
// environment wrapper advertises.
const (
	DefaultFrameWidth  = 640
	DefaultFrameHeight = 348
)

// ValidPort reports whether port addresses a physical controller port.
func ValidPort(port int) bool {
	return port >= 0 && port < MaxPorts
}
