package control

import "github.com/cjeanneret/StaGo/internal/hw/gamepad"

// Edges are the buttons that changed between two consecutive reads.
type Edges struct {
	pressed, released uint32
}

// DetectEdges compares the previous and current button masks.
func DetectEdges(prev, cur gamepad.Buttons) Edges {
	var e Edges
	for _, b := range gamepad.All {
		switch {
		case cur.Pressed(b) && !prev.Pressed(b):
			e.pressed |= 1 << b
		case !cur.Pressed(b) && prev.Pressed(b):
			e.released |= 1 << b
		}
	}
	return e
}

// Pressed reports whether b went down.
func (e Edges) Pressed(b gamepad.Button) bool {
	return e.pressed&(1<<b) != 0
}

// Released reports whether b came up.
func (e Edges) Released(b gamepad.Button) bool {
	return e.released&(1<<b) != 0
}

// Any reports whether any button changed.
func (e Edges) Any() bool {
	return e.pressed|e.released != 0
}

// StickFilter keeps the last accepted joystick position. A new reading is
// accepted, both coordinates at once, only when either coordinate moved by
// more than the deadband.
type StickFilter struct {
	X, Y     int
	Deadband int
}

// Update offers a new reading and reports whether it was accepted.
func (f *StickFilter) Update(x, y int) bool {
	if abs(x-f.X) > f.Deadband || abs(y-f.Y) > f.Deadband {
		f.X, f.Y = x, y
		return true
	}
	return false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
