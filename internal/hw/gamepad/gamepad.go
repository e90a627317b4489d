// Package gamepad reads the stage's joystick and buttons from a seesaw
// gamepad.
package gamepad

import "fmt"

// Button is a logical button, numbered by its expander pin.
type Button uint

// Button pins on the Gamepad QT.
const (
	Select Button = 0
	B      Button = 1
	Y      Button = 2
	A      Button = 5
	X      Button = 6
	Start  Button = 16
)

// Joystick axes on the expander's ADC.
const (
	JoystickXPin uint8 = 14
	JoystickYPin uint8 = 15
)

// JoystickMax is the full-scale joystick reading.
const JoystickMax = 1023

// All lists every button in bit order.
var All = []Button{Select, B, Y, A, X, Start}

// Mask selects every button pin.
var Mask = func() uint32 {
	var m uint32
	for _, b := range All {
		m |= 1 << b
	}
	return m
}()

func (b Button) String() string {
	switch b {
	case Select:
		return "Select"
	case B:
		return "B"
	case Y:
		return "Y"
	case A:
		return "A"
	case X:
		return "X"
	case Start:
		return "Start"
	}
	return fmt.Sprintf("Button(%d)", uint(b))
}

// ParseButton returns the button with the given name.
func ParseButton(name string) (Button, error) {
	for _, b := range All {
		if b.String() == name {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown button %q", name)
}

// Buttons is a raw button mask as read from the expander. Bits are
// active-low: a cleared bit means the button is held.
type Buttons uint32

// Released is the mask with no button held.
const Released = Buttons(0xFFFFFFFF)

// Pressed reports whether b is held.
func (s Buttons) Pressed(b Button) bool {
	return uint32(s)&(1<<b) == 0
}

// With returns s with b held.
func (s Buttons) With(b Button) Buttons {
	return s &^ (1 << b)
}

// Expander is the part of the seesaw protocol the gamepad uses.
type Expander interface {
	PinModeInputPullup(pins uint32) error
	DigitalReadBulk(pins uint32) (uint32, error)
	AnalogRead(pin uint8) (uint16, error)
}

// Gamepad reads buttons and joystick from an expander.
type Gamepad struct {
	dev Expander
}

// New returns a gamepad on dev. Call Init before reading.
func New(dev Expander) *Gamepad {
	return &Gamepad{dev: dev}
}

// Init configures every button pin as a pulled-up input.
func (g *Gamepad) Init() error {
	if err := g.dev.PinModeInputPullup(Mask); err != nil {
		return fmt.Errorf("gamepad init: %w", err)
	}
	return nil
}

// ReadButtons reads all buttons in one bulk transfer. Pins outside Mask read
// as released.
func (g *Gamepad) ReadButtons() (Buttons, error) {
	raw, err := g.dev.DigitalReadBulk(Mask)
	if err != nil {
		return Released, fmt.Errorf("read buttons: %w", err)
	}
	return Buttons(raw | ^Mask), nil
}

// ReadJoystick returns the stick position, each axis inverted so that 0 and
// 1023 are the physical extremes the motion thresholds are calibrated for.
func (g *Gamepad) ReadJoystick() (x, y int, err error) {
	rx, err := g.dev.AnalogRead(JoystickXPin)
	if err != nil {
		return 0, 0, fmt.Errorf("read joystick x: %w", err)
	}
	ry, err := g.dev.AnalogRead(JoystickYPin)
	if err != nil {
		return 0, 0, fmt.Errorf("read joystick y: %w", err)
	}
	return JoystickMax - int(rx), JoystickMax - int(ry), nil
}
