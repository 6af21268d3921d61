package action

import "dolphinenv/pkg/protocol"

// maxAxes is the widest axis set of any kind (WiiClassic: two sticks, two triggers).
const maxAxes = 6

type axis struct {
	name     string
	min, max float64
}

type stick struct {
	name string
	x, y int // axis indices
}

type layout struct {
	buttons  []string
	axes     []axis
	sticks   []stick
	triggers []int // axis indices
}

var layouts = [...]layout{
	protocol.GameCube: {
		buttons: []string{"A", "B", "X", "Y", "Z", "Start", "Up", "Down", "Left", "Right", "L", "R"},
		axes: []axis{
			{"StickX", -1, 1}, {"StickY", -1, 1},
			{"CStickX", -1, 1}, {"CStickY", -1, 1},
			{"TriggerLeft", 0, 1}, {"TriggerRight", 0, 1},
		},
		sticks:   []stick{{"Stick", 0, 1}, {"CStick", 2, 3}},
		triggers: []int{4, 5},
	},
	protocol.Wiimote: {
		buttons: []string{"A", "B", "One", "Two", "Plus", "Minus", "Home", "Up", "Down", "Left", "Right"},
	},
	protocol.WiiClassic: {
		buttons: []string{"A", "B", "X", "Y", "ZL", "ZR", "Plus", "Minus", "Home", "Up", "Down", "Left", "Right", "L", "R"},
		axes: []axis{
			{"TriggerLeft", 0, 1}, {"TriggerRight", 0, 1},
			{"LeftStickX", -1, 1}, {"LeftStickY", -1, 1},
			{"RightStickX", -1, 1}, {"RightStickY", -1, 1},
		},
		sticks:   []stick{{"LeftStick", 2, 3}, {"RightStick", 4, 5}},
		triggers: []int{0, 1},
	},
	protocol.WiiNunchuk: {
		buttons: []string{"C", "Z"},
		axes:    []axis{{"StickX", -1, 1}, {"StickY", -1, 1}},
		sticks:  []stick{{"Stick", 0, 1}},
	},
	protocol.GBA: {
		buttons: []string{"A", "B", "L", "R", "Start", "Select", "Up", "Down", "Left", "Right"},
	},
}

func (l *layout) buttonIndex(name string) int {
	for i, b := range l.buttons {
		if b == name {
			return i
		}
	}
	return -1
}

func (l *layout) axisIndex(name string) int {
	for i, a := range l.axes {
		if a.name == name {
			return i
		}
	}
	return -1
}

func (l *layout) findStick(name string) (stick, bool) {
	for _, s := range l.sticks {
		if s.name == name {
			return s, true
		}
	}
	return stick{}, false
}

func (l *layout) isTrigger(idx int) bool {
	for _, t := range l.triggers {
		if t == idx {
			return true
		}
	}
	return false
}

func (l *layout) buttonMask() uint16 {
	return uint16(1)<<len(l.buttons) - 1
}

// ButtonNames lists the buttons of kind in wire bit order.
func ButtonNames(kind protocol.ControllerKind) []string {
	if !kind.Valid() {
		return nil
	}
	return append([]string(nil), layouts[kind].buttons...)
}

// AxisNames lists the analog axes of kind in wire order.
func AxisNames(kind protocol.ControllerKind) []string {
	if !kind.Valid() {
		return nil
	}
	names := make([]string, 0, len(layouts[kind].axes))
	for _, a := range layouts[kind].axes {
		names = append(names, a.name)
	}
	return names
}

// StickNames lists the two-axis sticks of kind ("Stick", "CStick", ...).
func StickNames(kind protocol.ControllerKind) []string {
	if !kind.Valid() {
		return nil
	}
	names := make([]string, 0, len(layouts[kind].sticks))
	for _, s := range layouts[kind].sticks {
		names = append(names, s.name)
	}
	return names
}
