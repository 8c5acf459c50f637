package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Layer is a rank in the neuron hierarchy, from L1 (lowest) to L9 (highest).
// Forward traffic flows from higher to lower layers.
type Layer int

const (
	L1 Layer = iota + 1
	L2
	L3
	L4
	L5
	L6
	L7
	L8
	L9
)

// MinLayer and MaxLayer bound the valid layer range.
const (
	MinLayer = L1
	MaxLayer = L9
)

var layerDescriptions = map[Layer]string{
	L1: "Reflexive",
	L2: "Implementation",
	L3: "Design",
	L4: "Strategic",
	L5: "Tactical",
	L6: "Operational",
	L7: "Executive",
	L8: "Visionary",
	L9: "Universal",
}

// Valid reports whether l is within L1..L9.
func (l Layer) Valid() bool {
	return l >= MinLayer && l <= MaxLayer
}

// String returns the canonical label ("L1".."L9").
func (l Layer) String() string {
	return "L" + strconv.Itoa(int(l))
}

// Description returns the human name of the layer role.
func (l Layer) Description() string {
	if d, ok := layerDescriptions[l]; ok {
		return d
	}
	return "Unknown"
}

// Below returns the layer a forward peer must live at.
func (l Layer) Below() Layer { return l - 1 }

// Above returns the layer a backward peer must live at.
func (l Layer) Above() Layer { return l + 1 }

// Adjacent reports whether the two layers differ by exactly one.
func (l Layer) Adjacent(other Layer) bool {
	d := int(l) - int(other)
	return d == 1 || d == -1
}

// ParseLayer accepts "L3", "l3" or "3".
func ParseLayer(s string) (Layer, error) {
	raw := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "L")
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid layer %q", s)
	}
	l := Layer(n)
	if !l.Valid() {
		return 0, fmt.Errorf("layer %q out of range L1..L9", s)
	}
	return l, nil
}

// MarshalText implements encoding.TextMarshaler.
func (l Layer) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid layer %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Layer) UnmarshalText(text []byte) error {
	parsed, err := ParseLayer(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
