package protocol

import "fmt"

// ControllerKind discriminates the five supported input-device shapes.
type ControllerKind uint8

// Controller kinds.
const (
	GameCube ControllerKind = iota
	Wiimote
	WiiClassic
	WiiNunchuk
	GBA
)

var kindNames = [...]string{
	GameCube:   "GameCube",
	Wiimote:    "Wiimote",
	WiiClassic: "WiiClassic",
	WiiNunchuk: "WiiNunchuk",
	GBA:        "GBA",
}

// ControllerKinds lists every kind in discriminant order.
func ControllerKinds() []ControllerKind {
	return []ControllerKind{GameCube, Wiimote, WiiClassic, WiiNunchuk, GBA}
}

// Valid reports whether k is one of the five kinds.
func (k ControllerKind) Valid() bool {
	return int(k) < len(kindNames)
}

func (k ControllerKind) String() string {
	if k.Valid() {
		return kindNames[k]
	}
	return fmt.Sprintf("ControllerKind(%d)", uint8(k))
}

// ParseControllerKind maps a kind name (case-sensitive, as printed by String)
// back to its discriminant.
func ParseControllerKind(s string) (ControllerKind, error) {
	for i, name := range kindNames {
		if name == s {
			return ControllerKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown controller kind %q", s)
}
