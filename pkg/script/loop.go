package script

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"dolphinenv/pkg/action"
	"dolphinenv/pkg/channel"
	"dolphinenv/pkg/codec"
	"dolphinenv/pkg/protocol"
)

// DefaultReportEvery is how many steps pass between throughput log lines.
const DefaultReportEvery = 100

// State is the dispatch loop's lifecycle state.
type State int32

// Loop states.
const (
	Idle State = iota
	AwaitCommand
	Dispatching
	Draining
	Terminated
)

var stateNames = [...]string{"idle", "await-command", "dispatching", "draining", "terminated"}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// EndPolicy is what the loop does after an End command.
type EndPolicy int

const (
	// Drain keeps advancing frames with no command intake until the
	// context ends, so the emulator never stalls mid-frame.
	Drain EndPolicy = iota
	// Exit returns from Run.
	Exit
)

func (p EndPolicy) String() string {
	switch p {
	case Drain:
		return "drain"
	case Exit:
		return "exit"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParseEndPolicy maps "drain" or "exit" (case-insensitive) to a policy. An
// empty string is Drain.
func ParseEndPolicy(s string) (EndPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drain":
		return Drain, nil
	case "exit":
		return Exit, nil
	default:
		return 0, fmt.Errorf("unknown end policy %q (want drain or exit)", s)
	}
}

// Config configures a Loop.
type Config struct {
	Root        string
	ID          int
	EndPolicy   EndPolicy
	ReportEvery int // steps between throughput logs; 0 means DefaultReportEvery, <0 disables
	Logger      *log.Logger
}

// Stats is a snapshot of loop progress.
type Stats struct {
	State  State
	Steps  uint64 // DoAction requests served
	Frames uint64 // frames advanced, including while draining
}

// Loop serves one session's requests against a Host. Requests are handled
// strictly one at a time in arrival order.
type Loop struct {
	host   Host
	cfg    Config
	logger *log.Logger

	pair    *channel.Pair
	last    protocol.Frame
	started time.Time

	state  atomic.Int32
	steps  atomic.Uint64
	frames atomic.Uint64
}

// New creates a Loop. Nothing touches the filesystem until Run.
func New(host Host, cfg Config) *Loop {
	if cfg.ReportEvery == 0 {
		cfg.ReportEvery = DefaultReportEvery
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Loop{host: host, cfg: cfg, logger: logger}
}

// Stats returns a snapshot. Safe to call from any goroutine.
func (l *Loop) Stats() Stats {
	return Stats{
		State:  State(l.state.Load()),
		Steps:  l.steps.Load(),
		Frames: l.frames.Load(),
	}
}

func (l *Loop) setState(s State) { l.state.Store(int32(s)) }

// Run provisions the pipes (keeping any the driver already made) and serves
// requests until ctx ends, or until End under the Exit policy. Errors on a
// single request are logged and the loop goes back to waiting; only setup
// failures and vanished pipes are returned.
func (l *Loop) Run(ctx context.Context) error {
	pair, report, err := channel.Provision(l.cfg.Root, l.cfg.ID, false, channel.WithLogger(l.logger))
	if err != nil {
		l.setState(Terminated)
		return fmt.Errorf("provision pipes: %w", err)
	}
	l.pair = pair
	l.started = time.Now()
	l.logger.Printf("serving session %d in %s (%d created, %d reused)",
		l.cfg.ID, report.Dir, report.Count(channel.Created), report.Count(channel.AlreadyExists))
	defer l.setState(Terminated)

	for {
		l.setState(AwaitCommand)
		cmd, err := pair.ReceiveCommand(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("command pipe gone: %w", err)
			}
			l.logger.Printf("receive command: %v", err)
			continue
		}

		l.setState(Dispatching)
		end, err := l.dispatch(ctx, cmd)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.logger.Printf("%s: %v", cmd, err)
		}
		if end {
			l.logger.Printf("end requested (policy %s) after %d steps", l.cfg.EndPolicy, l.steps.Load())
			if l.cfg.EndPolicy == Exit {
				return nil
			}
			return l.drain(ctx)
		}
	}
}

// dispatch handles one command. The returned error is for logging; any
// reply owed to the driver has already been written.
func (l *Loop) dispatch(ctx context.Context, cmd protocol.Command) (bool, error) {
	switch cmd {
	case protocol.CmdDoAction:
		return false, l.doAction(ctx)
	case protocol.CmdGetFrame:
		return false, l.pair.SendData(ctx, codec.KindFrame, l.last)
	case protocol.CmdGetState:
		return false, l.pair.SendData(ctx, codec.KindEmpty, nil)
	case protocol.CmdSetPointer:
		return false, l.setPointer(ctx)
	case protocol.CmdReadMemory:
		return false, l.readMemory(ctx)
	case protocol.CmdWriteMemory:
		return false, l.writeMemory(ctx)
	case protocol.CmdEnd:
		return true, nil
	default:
		// ReceiveCommand only returns known commands.
		return false, fmt.Errorf("unhandled command %s", cmd)
	}
}

// fail answers the pending request with an error reply and returns cause.
func (l *Loop) fail(ctx context.Context, cause error) error {
	if err := l.pair.SendData(ctx, codec.KindError, codec.ErrorReply(cause)); err != nil {
		return fmt.Errorf("%w (error reply failed: %w)", cause, err)
	}
	return cause
}

func (l *Loop) doAction(ctx context.Context) error {
	msg, err := l.pair.ReceiveData(ctx)
	if err != nil {
		// Rejected or lost: the driver is not waiting for a reply.
		return fmt.Errorf("receive batch: %w", err)
	}
	recs, err := msg.Batch()
	if err != nil {
		return l.fail(ctx, err)
	}
	batch, err := action.FromWire(recs)
	if err != nil {
		return l.fail(ctx, err)
	}
	if err := Route(l.host, batch); err != nil {
		return l.fail(ctx, err)
	}
	frame, err := l.advance(ctx)
	if err != nil {
		return l.fail(ctx, err)
	}
	l.count()
	return l.pair.SendData(ctx, codec.KindFrame, frame)
}

func (l *Loop) advance(ctx context.Context) (protocol.Frame, error) {
	frame, err := l.host.AdvanceFrame(ctx)
	if err != nil {
		return protocol.Frame{}, fmt.Errorf("advance frame: %w", err)
	}
	if err := frame.Validate(); err != nil {
		return protocol.Frame{}, err
	}
	// Hosts may reuse their buffer; keep our own copy of the latest frame.
	l.last = frame.Clone()
	l.frames.Add(1)
	return l.last, nil
}

func (l *Loop) count() {
	n := l.steps.Add(1)
	if l.cfg.ReportEvery > 0 && n%uint64(l.cfg.ReportEvery) == 0 {
		elapsed := time.Since(l.started).Seconds()
		if elapsed > 0 {
			l.logger.Printf("%d steps, %.1f steps/s", n, float64(n)/elapsed)
		}
	}
}

func (l *Loop) setPointer(ctx context.Context) error {
	msg, err := l.pair.ReceiveData(ctx)
	if err != nil {
		return fmt.Errorf("receive pointer: %w", err)
	}
	p, err := msg.Pointer()
	if err != nil {
		return err
	}
	if !protocol.ValidPort(p.Port) {
		return &protocol.InvalidPortError{Port: p.Port}
	}
	return l.host.SetWiimotePointer(p.Port, p.X, p.Y)
}

func (l *Loop) readMemory(ctx context.Context) error {
	msg, err := l.pair.ReceiveData(ctx)
	if err != nil {
		return fmt.Errorf("receive memory request: %w", err)
	}
	acc, err := msg.MemoryAccess()
	if err != nil {
		return l.fail(ctx, err)
	}
	v, err := ReadValue(l.host, acc.Address, acc.Type)
	if err != nil {
		return l.fail(ctx, err)
	}
	return l.pair.SendData(ctx, codec.KindMemoryValue, v)
}

func (l *Loop) writeMemory(ctx context.Context) error {
	msg, err := l.pair.ReceiveData(ctx)
	if err != nil {
		return fmt.Errorf("receive memory request: %w", err)
	}
	acc, err := msg.MemoryAccess()
	if err != nil {
		return l.fail(ctx, err)
	}
	if err := WriteValue(l.host, acc); err != nil {
		return l.fail(ctx, err)
	}
	return l.pair.SendData(ctx, codec.KindEmpty, nil)
}

// drain advances frames with no command intake until ctx ends.
func (l *Loop) drain(ctx context.Context) error {
	l.setState(Draining)
	for ctx.Err() == nil {
		if _, err := l.advance(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
	}
	return nil
}
