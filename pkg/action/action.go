// Package action holds the controller input records sent with DoAction.
//
// An Action is a fixed-shape record for one controller kind: a set of named
// buttons and a set of named analog axes, each axis bounded to its domain
// (sticks in [-1,1], triggers in [0,1]). Every field is present from
// construction; the neutral record has all buttons released and all axes at
// 0. Mutation only goes through setters that validate the name and the value,
// so an Action is never partial or out of range.
//
// Actions are plain values: copy by assignment, compare with ==. The zero
// Action is a neutral GameCube controller.
package action

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"dolphinenv/pkg/protocol"
)

// Errors returned by the setters.
var (
	ErrUnknownInput = errors.New("unknown input")
	ErrOutOfDomain  = errors.New("value outside axis domain")
)

// Action is the full input state of one controller.
type Action struct {
	kind    protocol.ControllerKind
	buttons uint16
	axes    [maxAxes]float64
}

// New returns the neutral action for kind.
func New(kind protocol.ControllerKind) (Action, error) {
	if !kind.Valid() {
		return Action{}, &protocol.InvalidControllerKindError{Kind: kind}
	}
	return Action{kind: kind}, nil
}

// NewGameCube returns a neutral GameCube controller.
func NewGameCube() Action { return Action{kind: protocol.GameCube} }

// NewWiimote returns a neutral Wii Remote.
func NewWiimote() Action { return Action{kind: protocol.Wiimote} }

// NewWiiClassic returns a neutral Wii Classic controller.
func NewWiiClassic() Action { return Action{kind: protocol.WiiClassic} }

// NewWiiNunchuk returns a neutral Wii Nunchuk.
func NewWiiNunchuk() Action { return Action{kind: protocol.WiiNunchuk} }

// NewGBA returns a neutral Game Boy Advance.
func NewGBA() Action { return Action{kind: protocol.GBA} }

// Kind returns the controller kind.
func (a Action) Kind() protocol.ControllerKind { return a.kind }

func (a *Action) layout() *layout { return &layouts[a.kind] }

// Press presses a button.
func (a *Action) Press(button string) error { return a.SetButton(button, true) }

// Release releases a button.
func (a *Action) Release(button string) error { return a.SetButton(button, false) }

// SetButton sets a button by name.
func (a *Action) SetButton(button string, pressed bool) error {
	i := a.layout().buttonIndex(button)
	if i < 0 {
		return fmt.Errorf("%w: %s has no button %q", ErrUnknownInput, a.kind, button)
	}
	if pressed {
		a.buttons |= 1 << i
	} else {
		a.buttons &^= 1 << i
	}
	return nil
}

// Button reports whether a button is pressed.
func (a Action) Button(button string) (bool, error) {
	i := a.layout().buttonIndex(button)
	if i < 0 {
		return false, fmt.Errorf("%w: %s has no button %q", ErrUnknownInput, a.kind, button)
	}
	return a.buttons&(1<<i) != 0, nil
}

// Pressed is Button without the error; unknown names read as released.
func (a Action) Pressed(button string) bool {
	ok, _ := a.Button(button)
	return ok
}

// SetStick positions a stick. Both coordinates must lie in [-1,1]; on error
// the action is unchanged.
func (a *Action) SetStick(name string, x, y float64) error {
	l := a.layout()
	s, ok := l.findStick(name)
	if !ok {
		return fmt.Errorf("%w: %s has no stick %q", ErrUnknownInput, a.kind, name)
	}
	if err := checkDomain(l.axes[s.x], x); err != nil {
		return err
	}
	if err := checkDomain(l.axes[s.y], y); err != nil {
		return err
	}
	a.axes[s.x], a.axes[s.y] = x, y
	return nil
}

// ResetStick returns a stick to neutral.
func (a *Action) ResetStick(name string) error { return a.SetStick(name, 0, 0) }

// SetTrigger sets an analog trigger in [0,1].
func (a *Action) SetTrigger(name string, v float64) error {
	l := a.layout()
	i := l.axisIndex(name)
	if i < 0 || !l.isTrigger(i) {
		return fmt.Errorf("%w: %s has no trigger %q", ErrUnknownInput, a.kind, name)
	}
	if err := checkDomain(l.axes[i], v); err != nil {
		return err
	}
	a.axes[i] = v
	return nil
}

// ResetTrigger releases an analog trigger.
func (a *Action) ResetTrigger(name string) error { return a.SetTrigger(name, 0) }

// Axis returns an axis value by its full name ("StickX", "TriggerLeft", ...).
func (a Action) Axis(name string) (float64, error) {
	i := a.layout().axisIndex(name)
	if i < 0 {
		return 0, fmt.Errorf("%w: %s has no axis %q", ErrUnknownInput, a.kind, name)
	}
	return a.axes[i], nil
}

// Reset returns every input to neutral, keeping the kind.
func (a *Action) Reset() {
	*a = Action{kind: a.kind}
}

// Neutral reports whether every button is released and every axis at rest.
func (a Action) Neutral() bool {
	return a == Action{kind: a.kind}
}

// Inputs renders the action as the name to value map taken by the host's
// native setters: bool for buttons, float64 for axes.
func (a Action) Inputs() map[string]any {
	l := a.layout()
	out := make(map[string]any, len(l.buttons)+len(l.axes))
	for i, b := range l.buttons {
		out[b] = a.buttons&(1<<i) != 0
	}
	for i, ax := range l.axes {
		out[ax.name] = a.axes[i]
	}
	return out
}

func (a Action) String() string {
	l := a.layout()
	var parts []string
	for i, b := range l.buttons {
		if a.buttons&(1<<i) != 0 {
			parts = append(parts, b)
		}
	}
	for i, ax := range l.axes {
		if a.axes[i] != 0 {
			parts = append(parts, fmt.Sprintf("%s=%g", ax.name, a.axes[i]))
		}
	}
	return fmt.Sprintf("%s{%s}", a.kind, strings.Join(parts, " "))
}

func checkDomain(ax axis, v float64) error {
	if math.IsNaN(v) || v < ax.min || v > ax.max {
		return fmt.Errorf("%w: %s=%g not in [%g,%g]", ErrOutOfDomain, ax.name, v, ax.min, ax.max)
	}
	return nil
}

// Record is the wire shape of an Action.
type Record struct {
	Kind    protocol.ControllerKind
	Buttons uint16
	Axes    []float64
}

// Record returns the wire shape of a.
func (a Action) Record() Record {
	n := len(a.layout().axes)
	return Record{
		Kind:    a.kind,
		Buttons: a.buttons,
		Axes:    append([]float64(nil), a.axes[:n]...),
	}
}

// FromRecord validates a wire record and rebuilds the Action.
func FromRecord(r Record) (Action, error) {
	if !r.Kind.Valid() {
		return Action{}, &protocol.InvalidControllerKindError{Kind: r.Kind}
	}
	l := &layouts[r.Kind]
	if r.Buttons&^l.buttonMask() != 0 {
		return Action{}, fmt.Errorf("%w: %s button bits %#x", ErrUnknownInput, r.Kind, r.Buttons)
	}
	if len(r.Axes) != len(l.axes) {
		return Action{}, fmt.Errorf("%w: %s has %d axes, record has %d",
			ErrUnknownInput, r.Kind, len(l.axes), len(r.Axes))
	}
	a := Action{kind: r.Kind, buttons: r.Buttons}
	for i, v := range r.Axes {
		if err := checkDomain(l.axes[i], v); err != nil {
			return Action{}, err
		}
		a.axes[i] = v
	}
	return a, nil
}

// Batch maps a controller port to the action applied to it.
type Batch map[int]Action

// Single normalizes one action to a batch on port 0.
func Single(a Action) Batch {
	return Batch{0: a}
}

// Ports returns the batch's ports in ascending order.
func (b Batch) Ports() []int {
	ports := make([]int, 0, len(b))
	for p := range b {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports
}

// Validate checks every port is a physical port.
func (b Batch) Validate() error {
	for p := range b {
		if !protocol.ValidPort(p) {
			return &protocol.InvalidPortError{Port: p}
		}
	}
	return nil
}

// PortRecord is one batch entry on the wire.
type PortRecord struct {
	Port   int
	Action Record
}

// Wire returns the batch as records in ascending port order.
func (b Batch) Wire() []PortRecord {
	out := make([]PortRecord, 0, len(b))
	for _, p := range b.Ports() {
		out = append(out, PortRecord{Port: p, Action: b[p].Record()})
	}
	return out
}

// FromWire rebuilds a batch. Duplicate ports are rejected.
func FromWire(recs []PortRecord) (Batch, error) {
	b := make(Batch, len(recs))
	for _, r := range recs {
		if _, dup := b[r.Port]; dup {
			return nil, fmt.Errorf("duplicate port %d in batch", r.Port)
		}
		a, err := FromRecord(r.Action)
		if err != nil {
			return nil, fmt.Errorf("port %d: %w", r.Port, err)
		}
		b[r.Port] = a
	}
	return b, nil
}
