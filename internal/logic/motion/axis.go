package motion

import (
	"fmt"

	"github.com/cjeanneret/StaGo/internal/hw/encoder"
	"github.com/cjeanneret/StaGo/internal/hw/sensor"
)

// Direction of travel along an axis. Its value indexes per-direction state.
type Direction int

const (
	Positive Direction = iota
	Negative
)

// Sign returns +1 or -1.
func (d Direction) Sign() float64 {
	if d == Negative {
		return -1
	}
	return 1
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Negative {
		return Positive
	}
	return Negative
}

func (d Direction) String() string {
	if d == Negative {
		return "-"
	}
	return "+"
}

// Stick selects the joystick coordinate driving an axis.
type Stick int

const (
	StickX Stick = iota
	StickY
)

// ParseStick accepts "x" or "y".
func ParseStick(s string) (Stick, error) {
	switch s {
	case "x":
		return StickX, nil
	case "y":
		return StickY, nil
	}
	return StickX, fmt.Errorf("unknown joystick axis %q (want x or y)", s)
}

// Motor is the throttle interface of a DC motor.
type Motor interface {
	SetThrottle(v float64) error
	Throttle() float64
}

// CurrentReader returns a fresh current snapshot of every channel.
type CurrentReader interface {
	ReadAll() (sensor.Sample, error)
}

// Axis is one driven axis of the stage.
type Axis struct {
	Name    string
	Motor   Motor
	Encoder encoder.Encoder // nil without position feedback
	Channel int             // current-sense channel
	Stick   Stick

	// Encoder bounds, in counts from home.
	Min, Max int64
}

// AxisState is the per-direction state carried across ticks.
type AxisState struct {
	Moving  [2]bool
	Latched [2]bool
}

// Clear drops all flags.
func (s *AxisState) Clear() {
	*s = AxisState{}
}

// Setting is the active speed and over-current threshold for an axis.
type Setting struct {
	Speed     float64
	Threshold float64
}

// Deflection holds the joystick thresholds that count as a push.
type Deflection struct {
	High int // positive when the stick reads above
	Low  int // negative when the stick reads below
}

// DefaultDeflection matches the inverted 10-bit gamepad scale.
var DefaultDeflection = Deflection{High: 675, Low: 375}

// Deflected reports whether joy pushes toward dir.
func (d Deflection) Deflected(dir Direction, joy int) bool {
	if dir == Negative {
		return joy < d.Low
	}
	return joy > d.High
}
