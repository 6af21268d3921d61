// Package sim is a deterministic software stand-in for the emulator's
// scripting host. It renders synthetic frames from the frame counter and the
// applied inputs and backs a big-endian RAM window, so the full protocol can
// be exercised without the real emulator.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dolphinenv/pkg/action"
	"dolphinenv/pkg/protocol"
)

// Default RAM window: the GameCube/Wii MEM1 mapping.
const (
	DefaultRAMBase = 0x80000000
	DefaultRAMSize = 24 << 20
)

// ErrOutOfRange is a memory access outside the RAM window.
var ErrOutOfRange = errors.New("address outside emulated RAM")

// Config sizes the host.
type Config struct {
	Width, Height uint32
	RAMBase       uint32
	RAMSize       uint32
	// FrameInterval, when set, is slept per AdvanceFrame to mimic vsync.
	FrameInterval time.Duration
}

type pointer struct{ x, y float64 }

// Host implements script.Host in memory.
type Host struct {
	cfg Config

	mu       sync.Mutex
	frame    protocol.Frame
	count    uint64
	ram      []byte
	pads     map[int]action.Action
	pointers map[int]pointer
	applied  []Applied
}

// Applied records one input call, in call order.
type Applied struct {
	Frame   uint64 // frame counter when the call arrived
	Port    int
	Action  action.Action
	Pointer bool // SetWiimotePointer rather than a button call
	X, Y    float64
}

// New returns a host. Zero fields take defaults.
func New(cfg Config) *Host {
	if cfg.Width == 0 {
		cfg.Width = protocol.DefaultFrameWidth
	}
	if cfg.Height == 0 {
		cfg.Height = protocol.DefaultFrameHeight
	}
	if cfg.RAMBase == 0 {
		cfg.RAMBase = DefaultRAMBase
	}
	if cfg.RAMSize == 0 {
		cfg.RAMSize = DefaultRAMSize
	}
	return &Host{
		cfg:      cfg,
		frame:    protocol.NewFrame(cfg.Width, cfg.Height),
		ram:      make([]byte, cfg.RAMSize),
		pads:     make(map[int]action.Action),
		pointers: make(map[int]pointer),
	}
}

// AdvanceFrame renders the next frame. The returned pixels are reused by the
// next call.
func (h *Host) AdvanceFrame(ctx context.Context) (protocol.Frame, error) {
	if h.cfg.FrameInterval > 0 {
		t := time.NewTimer(h.cfg.FrameInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return protocol.Frame{}, ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return protocol.Frame{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.render()
	return h.frame, nil
}

// FrameCount returns how many frames have been advanced.
func (h *Host) FrameCount() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// render paints the frame: a background that depends on the frame counter
// and port 0's first stick, then one lit column per pressed button on port 0.
func (h *Host) render() {
	w, ht := int(h.cfg.Width), int(h.cfg.Height)
	pad := h.pads[0]
	var shift int
	if names := action.AxisNames(pad.Kind()); len(names) > 0 {
		if v, err := pad.Axis(names[0]); err == nil {
			shift = int(v * 64)
		}
	}
	base := byte(h.count)
	pix := h.frame.Pixels
	for y := 0; y < ht; y++ {
		row := pix[y*w*protocol.BytesPerPixel : (y+1)*w*protocol.BytesPerPixel]
		for x := 0; x < w; x++ {
			o := x * protocol.BytesPerPixel
			row[o] = base + byte(x+shift)
			row[o+1] = base + byte(y)
			row[o+2] = base
			row[o+3] = 0xff
		}
	}

	buttons := action.ButtonNames(pad.Kind())
	if len(buttons) == 0 || w == 0 {
		return
	}
	colWidth := w / len(buttons)
	if colWidth == 0 {
		colWidth = 1
	}
	for i, b := range buttons {
		if !pad.Pressed(b) {
			continue
		}
		for y := 0; y < ht; y++ {
			for x := i * colWidth; x < (i+1)*colWidth && x < w; x++ {
				o := (y*w + x) * protocol.BytesPerPixel
				pix[o], pix[o+1], pix[o+2] = 0xff, 0xff, 0xff
			}
		}
	}
}

func (h *Host) set(kind protocol.ControllerKind, port int, a action.Action) error {
	if !protocol.ValidPort(port) {
		return &protocol.InvalidPortError{Port: port}
	}
	if a.Kind() != kind {
		return fmt.Errorf("%s action sent to %s setter", a.Kind(), kind)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pads[port] = a
	h.applied = append(h.applied, Applied{Frame: h.count, Port: port, Action: a})
	return nil
}

func (h *Host) SetGameCubeButtons(port int, a action.Action) error {
	return h.set(protocol.GameCube, port, a)
}

func (h *Host) SetWiimoteButtons(port int, a action.Action) error {
	return h.set(protocol.Wiimote, port, a)
}

func (h *Host) SetWiiClassicButtons(port int, a action.Action) error {
	return h.set(protocol.WiiClassic, port, a)
}

func (h *Host) SetWiiNunchukButtons(port int, a action.Action) error {
	return h.set(protocol.WiiNunchuk, port, a)
}

func (h *Host) SetGBAButtons(port int, a action.Action) error {
	return h.set(protocol.GBA, port, a)
}

func (h *Host) SetWiimotePointer(port int, x, y float64) error {
	if !protocol.ValidPort(port) {
		return &protocol.InvalidPortError{Port: port}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pointers[port] = pointer{x, y}
	h.applied = append(h.applied, Applied{Frame: h.count, Port: port, Pointer: true, X: x, Y: y})
	return nil
}

// Pad returns the last action applied to port.
func (h *Host) Pad(port int) (action.Action, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.pads[port]
	return a, ok
}

// Pointer returns the last pointer position set on port.
func (h *Host) Pointer(port int) (x, y float64, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pointers[port]
	return p.x, p.y, ok
}

// Applied returns every input call so far, in order.
func (h *Host) Applied() []Applied {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Applied(nil), h.applied...)
}

func (h *Host) span(addr uint32, n int) (int, error) {
	off := int64(addr) - int64(h.cfg.RAMBase)
	if off < 0 || off+int64(n) > int64(len(h.ram)) {
		return 0, fmt.Errorf("%w: %#08x+%d", ErrOutOfRange, addr, n)
	}
	return int(off), nil
}

func (h *Host) ReadMemory(addr uint32, buf []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	off, err := h.span(addr, len(buf))
	if err != nil {
		return err
	}
	copy(buf, h.ram[off:])
	return nil
}

func (h *Host) WriteMemory(addr uint32, buf []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	off, err := h.span(addr, len(buf))
	if err != nil {
		return err
	}
	copy(h.ram[off:], buf)
	return nil
}
