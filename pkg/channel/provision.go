// Package channel manages the three named pipes shared by a driver session
// and its emulator.
//
// Both sides call Provision for the same {root}/{id} directory: the driver
// first with remake=true (stale pipes from a crashed run are replaced), the
// emulator with remake=false (pipes the driver made are kept). Messages then
// move one at a time with Send and Receive.
package channel

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"

	"dolphinenv/pkg/protocol"
)

// Outcome is what Provision did for one pipe.
type Outcome int

// Provision outcomes.
const (
	Created Outcome = iota
	AlreadyExists
	Recreated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case AlreadyExists:
		return "already-exists"
	case Recreated:
		return "recreated"
	default:
		return "outcome(" + strconv.Itoa(int(o)) + ")"
	}
}

// PipeStatus reports one pipe.
type PipeStatus struct {
	Name    string
	Path    string
	Outcome Outcome
}

// Report is the result of Provision, one entry per pipe in
// data, command, waiting order.
type Report struct {
	Dir   string
	Pipes []PipeStatus
}

// Count returns how many pipes ended with outcome o.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, p := range r.Pipes {
		if p.Outcome == o {
			n++
		}
	}
	return n
}

// PipeNames lists the pipe file names in a session directory.
func PipeNames() []string {
	return []string{protocol.DataPipe, protocol.CommandPipe, protocol.WaitingPipe}
}

// SessionDir returns {root}/{id}.
func SessionDir(root string, id int) string {
	return filepath.Join(root, strconv.Itoa(id))
}

// Pair is a provisioned pipe set. It is not safe for concurrent use: one
// message may be in flight at a time and the caller serializes.
type Pair struct {
	root   string
	id     int
	dir    string
	logger *log.Logger
}

// Option configures a Pair.
type Option func(*Pair)

// WithLogger sets the logger for provisioning warnings and transport
// diagnostics. The default is log.Default().
func WithLogger(l *log.Logger) Option {
	return func(p *Pair) {
		if l != nil {
			p.logger = l
		}
	}
}

// Open returns a Pair for an already provisioned directory without touching
// the filesystem.
func Open(root string, id int, opts ...Option) *Pair {
	p := &Pair{root: root, id: id, dir: SessionDir(root, id), logger: log.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Provision creates {root}/{id} and the three FIFOs in it.
//
// With remake=true any existing object at a pipe path is removed and a fresh
// FIFO created (Recreated). With remake=false an existing FIFO is kept
// (AlreadyExists) and an existing non-FIFO is a *protocol.PipeCreationConflictError.
func Provision(root string, id int, remake bool, opts ...Option) (*Pair, Report, error) {
	p := Open(root, id, opts...)
	report := Report{Dir: p.dir}

	if err := os.MkdirAll(p.dir, 0o700); err != nil {
		return nil, report, fmt.Errorf("create session dir %s: %w", p.dir, err)
	}
	for _, name := range PipeNames() {
		path := filepath.Join(p.dir, name)
		outcome, err := p.makeFIFO(path, remake)
		if err != nil {
			return nil, report, err
		}
		report.Pipes = append(report.Pipes, PipeStatus{Name: name, Path: path, Outcome: outcome})
	}
	return p, report, nil
}

func (p *Pair) makeFIFO(path string, remake bool) (Outcome, error) {
	info, err := os.Lstat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return p.mkfifo(path, remake)
	case err != nil:
		return 0, fmt.Errorf("stat pipe %s: %w", path, err)
	}

	isFIFO := info.Mode()&fs.ModeNamedPipe != 0
	if !remake {
		if !isFIFO {
			return 0, &protocol.PipeCreationConflictError{
				Path:   path,
				Reason: "exists and is not a FIFO (" + info.Mode().Type().String() + ")",
			}
		}
		p.logger.Printf("warning: pipe %s already exists, reusing it", path)
		return AlreadyExists, nil
	}

	p.logger.Printf("warning: pipe %s already exists, recreating it", path)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, &protocol.PipeCreationConflictError{Path: path, Reason: "remove stale object: " + err.Error()}
	}
	if err := unix.Mkfifo(path, 0o600); err != nil {
		return 0, fmt.Errorf("mkfifo %s: %w", path, err)
	}
	return Recreated, nil
}

func (p *Pair) mkfifo(path string, remake bool) (Outcome, error) {
	err := unix.Mkfifo(path, 0o600)
	if err == nil {
		return Created, nil
	}
	if errors.Is(err, unix.EEXIST) {
		// The peer created it between our stat and mkfifo.
		return p.makeFIFO(path, remake)
	}
	return 0, fmt.Errorf("mkfifo %s: %w", path, err)
}

// Dir returns the session directory.
func (p *Pair) Dir() string { return p.dir }

// ID returns the session id.
func (p *Pair) ID() int { return p.id }

// Root returns the pipe root.
func (p *Pair) Root() string { return p.root }

// Path returns the full path of the named pipe.
func (p *Pair) Path(name string) string { return filepath.Join(p.dir, name) }

// Exists reports whether all three FIFOs are present.
func (p *Pair) Exists() bool {
	for _, name := range PipeNames() {
		info, err := os.Lstat(p.Path(name))
		if err != nil || info.Mode()&fs.ModeNamedPipe == 0 {
			return false
		}
	}
	return true
}

// Remove deletes the three FIFOs and the session directory if it is left
// empty. Missing pipes are not an error.
func (p *Pair) Remove() error {
	var errs []error
	for _, name := range PipeNames() {
		if err := os.Remove(p.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := os.Remove(p.dir); err != nil && !errors.Is(err, fs.ErrNotExist) && !isNotEmpty(err) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func isNotEmpty(err error) bool {
	return errors.Is(err, unix.ENOTEMPTY) || errors.Is(err, unix.EEXIST)
}
