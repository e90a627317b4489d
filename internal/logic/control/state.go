package control

import (
	"fmt"

	"github.com/cjeanneret/StaGo/internal/hw/gamepad"
	"github.com/cjeanneret/StaGo/internal/logic/motion"
)

// Group is the set of axes the joystick drives.
type Group int

const (
	GroupXY Group = iota
	GroupZ
)

func (g Group) String() string {
	if g == GroupZ {
		return "z"
	}
	return "xy"
}

// ParseGroup accepts "xy" or "z".
func ParseGroup(s string) (Group, error) {
	switch s {
	case "xy":
		return GroupXY, nil
	case "z":
		return GroupZ, nil
	}
	return GroupXY, fmt.Errorf("unknown axis group %q", s)
}

// Preset is a button-selected speed. Thresholds, when set, override the
// global current threshold per axis name.
type Preset struct {
	Button     gamepad.Button
	Speed      float64
	Thresholds map[string]float64
}

// ControllerState is all mutable state of the control loop. It is created
// once, changed on every tick and never persisted.
type ControllerState struct {
	Axes    []motion.AxisState // parallel to the loop's axes
	Preset  int                // index into the presets
	Group   Group
	LightOn bool
	Homed   bool
	Buttons gamepad.Buttons // previous read, for edge detection
	Stick   StickFilter
}

// NewControllerState returns the power-on state: every flag cleared, the
// slowest preset selected and the XY group active.
func NewControllerState(numAxes int, presets []Preset, deadband int) ControllerState {
	return ControllerState{
		Axes:    make([]motion.AxisState, numAxes),
		Preset:  slowestPreset(presets),
		Group:   GroupXY,
		Buttons: gamepad.Released,
		Stick:   StickFilter{Deadband: deadband},
	}
}

func slowestPreset(presets []Preset) int {
	best := 0
	for i, p := range presets {
		if p.Speed < presets[best].Speed {
			best = i
		}
	}
	return best
}

// ClearAxes drops every moving and latched flag.
func (s *ControllerState) ClearAxes() {
	for i := range s.Axes {
		s.Axes[i].Clear()
	}
}
