// Package session is the driver side of the control protocol: it launches
// one emulator subprocess, hands it the pipe location and turns each request
// into a lockstep exchange over the channel pair.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"dolphinenv/pkg/action"
	"dolphinenv/pkg/channel"
	"dolphinenv/pkg/codec"
	"dolphinenv/pkg/eventlog"
	"dolphinenv/pkg/protocol"
)

// DefaultStepEvery is how many steps pass between step events.
const DefaultStepEvery = 100

// recordTimeout bounds a single event-log write.
const recordTimeout = 5 * time.Second

// Recorder receives session lifecycle events. *eventlog.Writer implements it.
type Recorder interface {
	Record(ctx context.Context, e eventlog.Event) error
}

// Config configures a Session.
type Config struct {
	ID       int
	PipeRoot string

	// Command is the emulator argv prefix; "--script <Script> <Image>" is
	// appended.
	Command []string
	Script  string
	Image   string
	Env     []string

	// Home, when set, receives the emulator's output under sessions/<id>/.
	Home string

	// RequestTimeout bounds every request; 0 means only the caller's
	// context applies.
	RequestTimeout time.Duration

	// StepEvery sets how often a step event is recorded; 0 means
	// DefaultStepEvery, <0 disables step events.
	StepEvery int

	Recorder Recorder
	Logger   *log.Logger
}

// Session drives one emulator. Requests are serialized: at most one
// exchange is in flight on the pipes.
type Session struct {
	cfg    Config
	logger *log.Logger

	// mu serializes requests and lifecycle changes.
	mu   sync.Mutex
	pair *channel.Pair

	// pmu guards the fields below so Kill does not queue behind a request.
	pmu          sync.Mutex
	proc         *process
	runID        string
	disconnected bool
	steps        uint64
}

// New provisions the session's pipes, replacing stale ones, and returns an
// unconnected Session.
func New(cfg Config) (*Session, error) {
	if cfg.PipeRoot == "" {
		return nil, errors.New("session: pipe root is required")
	}
	if cfg.StepEvery == 0 {
		cfg.StepEvery = DefaultStepEvery
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Session{cfg: cfg, logger: logger}
	if err := s.provision(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) provision() error {
	pair, report, err := channel.Provision(s.cfg.PipeRoot, s.cfg.ID, true, channel.WithLogger(s.logger))
	if err != nil {
		return fmt.Errorf("provision session %d: %w", s.cfg.ID, err)
	}
	s.pair = pair
	if n := report.Count(channel.Recreated); n > 0 {
		s.logger.Printf("session %d: replaced %d stale pipes in %s", s.cfg.ID, n, report.Dir)
	}
	return nil
}

// ID returns the session id.
func (s *Session) ID() int { return s.cfg.ID }

// Dir returns the session's pipe directory.
func (s *Session) Dir() string { return channel.SessionDir(s.cfg.PipeRoot, s.cfg.ID) }

// RunID returns the id minted by the last Connect, or "".
func (s *Session) RunID() string {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	return s.runID
}

// Steps returns how many steps succeeded since the last Connect.
func (s *Session) Steps() uint64 {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	return s.steps
}

// Running reports whether the emulator subprocess is alive.
func (s *Session) Running() bool {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	return s.proc != nil && !s.proc.exited()
}

// PID returns the emulator's pid, or 0 when not running.
func (s *Session) PID() int {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	if s.proc == nil || s.proc.exited() {
		return 0
	}
	return s.proc.pid()
}

func (s *Session) argv() []string {
	argv := append([]string(nil), s.cfg.Command...)
	return append(argv, "--script", s.cfg.Script, s.cfg.Image)
}

// Connect starts the emulator and sends the handshake. It is idempotent:
// a running session logs a diagnostic and returns nil.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

func (s *Session) connectLocked(ctx context.Context) error {
	if s.Running() {
		s.logger.Printf("session %d: already connected (pid %d)", s.cfg.ID, s.PID())
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.pair.Exists() {
		if err := s.provision(); err != nil {
			return err
		}
	}

	line, err := json.Marshal(protocol.Handshake{Root: s.cfg.PipeRoot, ID: s.cfg.ID})
	if err != nil {
		return fmt.Errorf("encode handshake: %w", err)
	}
	argv := s.argv()
	proc, err := spawn(spawnOptions{
		argv:  argv,
		env:   s.cfg.Env,
		home:  s.cfg.Home,
		id:    s.cfg.ID,
		stdin: append(line, '\n'),
	})
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	s.pmu.Lock()
	s.proc = proc
	s.runID = runID
	s.disconnected = false
	s.steps = 0
	s.pmu.Unlock()

	s.logger.Printf("session %d: started %s (pid %d, run %s)", s.cfg.ID, argv[0], proc.pid(), runID)
	s.record(eventlog.TypeConnect, map[string]any{"pid": proc.pid(), "argv": argv})
	go s.watchExit(proc)
	return nil
}

// watchExit records an exit the session did not ask for.
func (s *Session) watchExit(p *process) {
	<-p.ctx.Done()
	if p.wasKilled() {
		return
	}
	s.logger.Printf("session %d: emulator exited: %v", s.cfg.ID, p.exitErr())
	payload := map[string]any{"pid": p.pid()}
	if err := p.exitErr(); err != nil {
		payload["error"] = err.Error()
	}
	s.record(eventlog.TypeExit, payload)
}

// live returns the running process or the reason a request cannot run.
func (s *Session) live() (*process, error) {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	if s.disconnected {
		return nil, protocol.ErrDisconnected
	}
	if s.proc == nil || s.proc.exited() {
		return nil, protocol.ErrNotConnected
	}
	return s.proc, nil
}

// exchange runs one request. The context is bounded by RequestTimeout and
// ends early if the emulator exits. A transport failure means the pipes
// can no longer be trusted to be in step, so the watchdog kills the
// emulator.
func (s *Session) exchange(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	proc, err := s.live()
	if err != nil {
		return err
	}
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(proc.ctx, cancel)
	defer stop()

	err = fn(ctx)
	if err == nil {
		return nil
	}

	var pu *protocol.PeerUnavailableError
	if !errors.As(err, &pu) {
		return err
	}
	if proc.exited() {
		if proc.wasKilled() {
			return fmt.Errorf("%s: %w: emulator killed", op, protocol.ErrNotConnected)
		}
		return fmt.Errorf("%s: %w: emulator exited (%v)", op, protocol.ErrNotConnected, proc.exitErr())
	}
	s.logger.Printf("session %d: %s: %v; killing emulator", s.cfg.ID, op, err)
	_ = proc.kill()
	s.record(eventlog.TypeTimeout, map[string]any{"op": op, "error": err.Error()})
	return err
}

// Step applies b and advances one frame, returning it.
func (s *Session) Step(ctx context.Context, b action.Batch) (protocol.Frame, error) {
	if err := b.Validate(); err != nil {
		return protocol.Frame{}, err
	}
	var frame protocol.Frame
	err := s.exchange(ctx, "step", func(ctx context.Context) error {
		if err := s.pair.SendCommand(ctx, protocol.CmdDoAction); err != nil {
			return err
		}
		if err := s.pair.SendData(ctx, codec.KindBatch, b.Wire()); err != nil {
			return err
		}
		msg, err := s.pair.ReceiveData(ctx)
		if err != nil {
			return err
		}
		frame, err = msg.Frame()
		return err
	})
	if err != nil {
		return protocol.Frame{}, err
	}

	s.pmu.Lock()
	s.steps++
	n := s.steps
	s.pmu.Unlock()
	if s.cfg.StepEvery > 0 && n%uint64(s.cfg.StepEvery) == 0 {
		s.record(eventlog.TypeStep, eventlog.StepPayload{Steps: n, Digest: fmt.Sprintf("%016x", frame.Digest())})
	}
	return frame, nil
}

// StepAction steps with a single action on port 0.
func (s *Session) StepAction(ctx context.Context, a action.Action) (protocol.Frame, error) {
	return s.Step(ctx, action.Single(a))
}

// GetFrame returns the most recent frame without advancing.
func (s *Session) GetFrame(ctx context.Context) (protocol.Frame, error) {
	var frame protocol.Frame
	err := s.exchange(ctx, "get-frame", func(ctx context.Context) error {
		if err := s.pair.SendCommand(ctx, protocol.CmdGetFrame); err != nil {
			return err
		}
		msg, err := s.pair.ReceiveData(ctx)
		if err != nil {
			return err
		}
		frame, err = msg.Frame()
		return err
	})
	return frame, err
}

// GetState asks for the emulator state. The emulator answers with an empty
// payload, so this always ends in protocol.ErrNotSupported once the
// exchange succeeds.
func (s *Session) GetState(ctx context.Context) (protocol.State, error) {
	err := s.exchange(ctx, "get-state", func(ctx context.Context) error {
		if err := s.pair.SendCommand(ctx, protocol.CmdGetState); err != nil {
			return err
		}
		msg, err := s.pair.ReceiveData(ctx)
		if err != nil {
			return err
		}
		return msg.Expect(codec.KindEmpty)
	})
	if err != nil {
		return protocol.State{}, err
	}
	return protocol.State{}, protocol.ErrNotSupported
}

// SetPointer positions a Wii Remote pointer. There is no reply; host-side
// errors are only logged by the emulator.
func (s *Session) SetPointer(ctx context.Context, port int, x, y float64) error {
	if !protocol.ValidPort(port) {
		return &protocol.InvalidPortError{Port: port}
	}
	return s.exchange(ctx, "set-pointer", func(ctx context.Context) error {
		if err := s.pair.SendCommand(ctx, protocol.CmdSetPointer); err != nil {
			return err
		}
		return s.pair.SendData(ctx, codec.KindPointer, protocol.Pointer{Port: port, X: x, Y: y})
	})
}

// ReadMemory reads one typed big-endian value.
func (s *Session) ReadMemory(ctx context.Context, addr uint32, t protocol.MemoryType) (protocol.Value, error) {
	acc := protocol.MemoryAccess{Address: addr, Type: t}
	if err := acc.Validate(false); err != nil {
		return protocol.Value{}, err
	}
	var v protocol.Value
	err := s.exchange(ctx, "read-memory", func(ctx context.Context) error {
		if err := s.pair.SendCommand(ctx, protocol.CmdReadMemory); err != nil {
			return err
		}
		if err := s.pair.SendData(ctx, codec.KindMemoryRequest, acc); err != nil {
			return err
		}
		msg, err := s.pair.ReceiveData(ctx)
		if err != nil {
			return err
		}
		v, err = msg.Value()
		return err
	})
	if err != nil {
		return protocol.Value{}, err
	}
	if v.Type != t {
		return protocol.Value{}, fmt.Errorf("%w: asked for %s, got %s", protocol.ErrValueShape, t, v.Type)
	}
	return v, nil
}

// WriteMemory writes one typed big-endian value. Values are validated here
// too, so an out-of-range value never leaves the driver.
func (s *Session) WriteMemory(ctx context.Context, addr uint32, v protocol.Value) error {
	acc := protocol.MemoryAccess{Address: addr, Type: v.Type, Value: v}
	if err := acc.Validate(true); err != nil {
		return err
	}
	return s.exchange(ctx, "write-memory", func(ctx context.Context) error {
		if err := s.pair.SendCommand(ctx, protocol.CmdWriteMemory); err != nil {
			return err
		}
		if err := s.pair.SendData(ctx, codec.KindMemoryRequest, acc); err != nil {
			return err
		}
		msg, err := s.pair.ReceiveData(ctx)
		if err != nil {
			return err
		}
		return msg.Expect(codec.KindEmpty)
	})
}

// Disconnect sends End. It does not wait for the emulator to exit; later
// requests return protocol.ErrDisconnected.
func (s *Session) Disconnect(ctx context.Context) error {
	err := s.exchange(ctx, "disconnect", func(ctx context.Context) error {
		return s.pair.SendCommand(ctx, protocol.CmdEnd)
	})
	if err != nil {
		return err
	}
	s.pmu.Lock()
	s.disconnected = true
	steps := s.steps
	s.pmu.Unlock()
	s.record(eventlog.TypeDisconnect, map[string]any{"steps": steps})
	return nil
}

// Kill sends SIGKILL to the emulator's process group. It does not wait for
// a request in flight to finish; that request fails once the emulator is
// gone. Killing a dead or unconnected session is a no-op.
func (s *Session) Kill() error {
	s.pmu.Lock()
	proc := s.proc
	s.proc = nil
	steps := s.steps
	s.pmu.Unlock()
	if proc == nil {
		return nil
	}
	alive := !proc.exited()
	if err := proc.kill(); err != nil {
		return err
	}
	if alive {
		s.logger.Printf("session %d: killed pid %d", s.cfg.ID, proc.pid())
		s.record(eventlog.TypeKill, map[string]any{"pid": proc.pid(), "steps": steps})
	}
	return nil
}

// Reset kills the emulator and starts a fresh one.
func (s *Session) Reset(ctx context.Context) error {
	if err := s.Kill(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(eventlog.TypeReset, nil)
	return s.connectLocked(ctx)
}

// Close kills the emulator and removes the pipes.
func (s *Session) Close() error {
	if err := s.Kill(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pair.Remove(); err != nil {
		return fmt.Errorf("remove pipes: %w", err)
	}
	return nil
}

func (s *Session) record(typ string, payload any) {
	if s.cfg.Recorder == nil {
		return
	}
	e := eventlog.Event{Type: typ, SessionID: s.cfg.ID, RunID: s.RunID()}
	if payload != nil {
		e.Payload = eventlog.EncodePayload(payload)
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := s.cfg.Recorder.Record(ctx, e); err != nil {
		s.logger.Printf("warning: session %d: %v", s.cfg.ID, err)
	}
}
