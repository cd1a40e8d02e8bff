// Package sensor names the two Kinect image sensors the monitor can read from.
package sensor

import (
	"fmt"
	"strings"
)

// Mode selects the camera sensor used for motion sensing or snapshots.
type Mode int

const (
	IR Mode = iota
	RGB
)

func (m Mode) String() string {
	switch m {
	case IR:
		return "ir"
	case RGB:
		return "rgb"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Valid reports whether m is one of the known sensors.
func (m Mode) Valid() bool {
	return m == IR || m == RGB
}

// Parse accepts "ir" or "rgb" in any case.
func Parse(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ir":
		return IR, nil
	case "rgb":
		return RGB, nil
	}
	return 0, fmt.Errorf("unknown sensor %q (valid: ir, rgb)", s)
}

// Set implements flag.Value.
func (m *Mode) Set(s string) error {
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
