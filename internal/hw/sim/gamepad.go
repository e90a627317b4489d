package sim

import (
	"sync"

	"github.com/cjeanneret/StaGo/internal/hw/gamepad"
)

// Gamepad is a simulated seesaw gamepad. It starts centred with every
// button released.
type Gamepad struct {
	mu      sync.Mutex
	levels  uint32
	adc     map[uint8]uint16
	pullups uint32
}

func NewGamepad() *Gamepad {
	g := &Gamepad{levels: 0xFFFFFFFF, adc: map[uint8]uint16{}}
	g.SetStick(512, 512)
	return g
}

// SetStick sets the stick position as read after inversion.
func (g *Gamepad) SetStick(x, y int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.adc[gamepad.JoystickXPin] = uint16(gamepad.JoystickMax - x)
	g.adc[gamepad.JoystickYPin] = uint16(gamepad.JoystickMax - y)
}

// Press holds b down.
func (g *Gamepad) Press(b gamepad.Button) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.levels &^= 1 << b
}

// Release lets b up.
func (g *Gamepad) Release(b gamepad.Button) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.levels |= 1 << b
}

// PinModeInputPullup implements gamepad.Expander.
func (g *Gamepad) PinModeInputPullup(pins uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pullups |= pins
	return nil
}

// DigitalReadBulk implements gamepad.Expander.
func (g *Gamepad) DigitalReadBulk(pins uint32) (uint32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.levels & pins, nil
}

// AnalogRead implements gamepad.Expander.
func (g *Gamepad) AnalogRead(pin uint8) (uint16, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.adc[pin], nil
}
