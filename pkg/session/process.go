package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// process is one emulator subprocess running in its own process group.
type process struct {
	cmd  *exec.Cmd
	pgid int

	// ctx is cancelled by the reaper when the process exits.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	waitErr error
	killed  bool
}

// spawnOptions controls how the subprocess is started.
type spawnOptions struct {
	argv []string
	env  []string
	home string // output.log goes under home/sessions/<id>/ when set
	id   int
	// stdin receives the handshake; nil leaves stdin unconnected.
	stdin []byte
}

// spawn starts the subprocess with Setpgid so Kill can take down the whole
// tree, writes the handshake to its stdin and starts the reaper.
//
// When home is set, stdout and stderr go to home/sessions/<id>/output.log
// (created if needed). Otherwise they go to os.Stdout/os.Stderr with a
// warning.
func spawn(opts spawnOptions) (*process, error) {
	if len(opts.argv) == 0 {
		return nil, errors.New("no emulator command configured")
	}
	//nolint:gosec // spawning the configured emulator is the point
	cmd := exec.Command(opts.argv[0], opts.argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(opts.env) > 0 {
		cmd.Env = append(os.Environ(), opts.env...)
	}

	var logFile *os.File
	if opts.home == "" {
		fmt.Fprintf(os.Stderr, "warning: home not set; session %d emulator output goes to this terminal\n", opts.id)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		var err error
		if logFile, err = openOutputLog(opts.home, opts.id); err != nil {
			return nil, err
		}
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	var stdin io.WriteCloser
	if opts.stdin != nil {
		var err error
		if stdin, err = cmd.StdinPipe(); err != nil {
			closeLog(logFile)
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		closeLog(logFile)
		return nil, fmt.Errorf("spawn emulator %s: %w", opts.argv[0], err)
	}
	// The child inherited the log fd; the parent can close its copy.
	closeLog(logFile)

	// The handshake fits in the pipe buffer, so this does not wait on the
	// child. It must finish before Wait runs, which closes the pipe.
	if stdin != nil {
		_, werr := stdin.Write(opts.stdin)
		if cerr := stdin.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
			_ = cmd.Wait()
			return nil, fmt.Errorf("write handshake: %w", werr)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &process{cmd: cmd, pgid: cmd.Process.Pid, ctx: ctx, cancel: cancel}

	// Reap the child in the background to avoid zombies.
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		cancel()
	}()
	return p, nil
}

// OutputLogPath is where a session's emulator output is written.
func OutputLogPath(home string, id int) string {
	return filepath.Join(home, "sessions", strconv.Itoa(id), "output.log")
}

func openOutputLog(home string, id int) (*os.File, error) {
	path := OutputLogPath(home, id)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create session log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // log path is deterministic
	if err != nil {
		return nil, fmt.Errorf("open session log %s: %w", path, err)
	}
	return f, nil
}

func closeLog(f *os.File) {
	if f != nil {
		_ = f.Close()
	}
}

func (p *process) pid() int { return p.pgid }

// exited reports whether the reaper has collected the process.
func (p *process) exited() bool {
	select {
	case <-p.ctx.Done():
		return true
	default:
		return false
	}
}

// exitErr returns the Wait result once exited.
func (p *process) exitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// kill sends SIGKILL to the process group and waits for the reaper. It is
// idempotent and a no-op once the process has exited.
func (p *process) kill() error {
	p.mu.Lock()
	already := p.killed
	p.killed = true
	p.mu.Unlock()
	if already || p.exited() {
		<-p.ctx.Done()
		return nil
	}

	// Negative pid: the whole group, including anything the emulator forked.
	if err := unix.Kill(-p.pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		_ = p.cmd.Process.Kill()
	}
	<-p.ctx.Done()
	return nil
}

// wasKilled reports whether kill was called.
func (p *process) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}
