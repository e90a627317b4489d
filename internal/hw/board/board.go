// Package board assembles the stage hardware from configuration: the real
// Raspberry Pi board or the simulated one.
package board

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/cjeanneret/StaGo/internal/config"
	"github.com/cjeanneret/StaGo/internal/debug"
	"github.com/cjeanneret/StaGo/internal/hw/adc"
	"github.com/cjeanneret/StaGo/internal/hw/encoder"
	"github.com/cjeanneret/StaGo/internal/hw/gamepad"
	"github.com/cjeanneret/StaGo/internal/hw/gpio"
	"github.com/cjeanneret/StaGo/internal/hw/motor"
	"github.com/cjeanneret/StaGo/internal/hw/pca9685"
	"github.com/cjeanneret/StaGo/internal/hw/seesaw"
	"github.com/cjeanneret/StaGo/internal/hw/sensor"
	"github.com/cjeanneret/StaGo/internal/hw/sim"
	"github.com/cjeanneret/StaGo/internal/logic/control"
	"github.com/cjeanneret/StaGo/internal/logic/motion"
)

// MotorNames labels the motor outputs.
var MotorNames = [config.NumMotors]string{"A", "B", "C", "D"}

// Board is the opened hardware.
type Board struct {
	Gamepad  *gamepad.Gamepad
	Current  *sensor.Current
	Motors   [config.NumMotors]*motor.DCMotor
	Encoders [config.NumMotors]encoder.Encoder // nil where no axis needs one

	// Set on a simulated board only.
	Plant  *sim.Plant
	SimPad *sim.Gamepad

	closers []func() error
}

// Open opens the real board, or a simulated one when defaults.mock_hw is
// set.
func Open(cfg *config.Config) (*Board, error) {
	if cfg.Defaults.MockHW {
		return Simulated(cfg, sim.NewPlant(sim.DefaultConfig(), nil))
	}
	return openReal(cfg)
}

func openReal(cfg *config.Config) (_ *Board, err error) {
	hw := cfg.Hardware
	b := &Board{}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	debug.Section("Opening board")
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(hw.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", hw.I2CBus, err)
	}
	b.closers = append(b.closers, bus.Close)
	debug.Verbose("I2C bus %s", bus)

	b.Gamepad = gamepad.New(seesaw.NewI2C(bus, uint16(hw.GamepadAddr)))
	if err := b.Gamepad.Init(); err != nil {
		return nil, err
	}

	conv, err := adc.NewI2C(bus, uint16(hw.ADCAddr), hw.ADCChannel, sensor.ReferenceVolts)
	if err != nil {
		return nil, err
	}
	drv, err := gpio.NewDriver(false)
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, drv.Close)
	b.Current, err = sensor.NewCurrent(drv, conv, sensor.Config{AddressPins: hw.MuxPins, Base: hw.MuxBase})
	if err != nil {
		return nil, err
	}

	decay, err := motor.ParseDecayMode(hw.PWM.Decay)
	if err != nil {
		return nil, err
	}
	freq := physic.Frequency(hw.PWM.FrequencyHz) * physic.Hertz
	switch hw.PWM.Backend {
	case config.PWMPCA9685:
		err = b.openPCA9685(hw.PWM, freq, decay)
	default:
		err = b.openPinPWM(hw.PWM, freq, decay)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Motion.Variant == config.VariantEncoder {
		for _, m := range axisMotors(cfg) {
			lines := hw.Encoders.Lines[m]
			e, err := encoder.OpenLines(MotorNames[m], hw.Encoders.Chip, lines[0], lines[1], hw.Encoders.Divisor)
			if err != nil {
				return nil, err
			}
			b.closers = append(b.closers, e.Close)
			b.Encoders[m] = e
		}
	}
	debug.Info("Board ready (%s PWM at %s)", hw.PWM.Backend, freq)
	return b, nil
}

func (b *Board) openPinPWM(pc config.PWMConfig, freq physic.Frequency, decay motor.DecayMode) error {
	for i, pins := range pc.Pins {
		pos, err := motor.NewPinPWM(pins[0], freq)
		if err != nil {
			return fmt.Errorf("motor %s: %w", MotorNames[i], err)
		}
		b.closers = append(b.closers, pos.Halt)
		neg, err := motor.NewPinPWM(pins[1], freq)
		if err != nil {
			return fmt.Errorf("motor %s: %w", MotorNames[i], err)
		}
		b.closers = append(b.closers, neg.Halt)
		b.Motors[i] = motor.NewDCMotor(MotorNames[i], pos, neg, decay)
	}
	return nil
}

func (b *Board) openPCA9685(pc config.PWMConfig, freq physic.Frequency, decay motor.DecayMode) error {
	chip, err := pca9685.Open(pc.Device, pc.Address)
	if err != nil {
		return err
	}
	b.closers = append(b.closers, chip.Close)
	if err := chip.Configure(freq); err != nil {
		return err
	}
	for i, ch := range pc.Channels {
		b.Motors[i] = motor.NewDCMotor(MotorNames[i], chip.Channel(ch[0]), chip.Channel(ch[1]), decay)
	}
	return nil
}

// Simulated builds a board on top of plant.
func Simulated(cfg *config.Config, plant *sim.Plant) (*Board, error) {
	hw := cfg.Hardware
	debug.Info("Using simulated hardware")
	b := &Board{Plant: plant, SimPad: sim.NewGamepad()}

	b.Gamepad = gamepad.New(b.SimPad)
	if err := b.Gamepad.Init(); err != nil {
		return nil, err
	}
	drv, err := gpio.NewDriver(true)
	if err != nil {
		return nil, err
	}
	b.Current, err = sensor.NewCurrent(drv, plant.AnalogInput(drv, hw.MuxPins, hw.MuxBase),
		sensor.Config{AddressPins: hw.MuxPins, Base: hw.MuxBase})
	if err != nil {
		return nil, err
	}
	decay, err := motor.ParseDecayMode(hw.PWM.Decay)
	if err != nil {
		return nil, err
	}
	for i := range b.Motors {
		b.Motors[i] = motor.NewDCMotor(MotorNames[i], plant.PWM(i, false), plant.PWM(i, true), decay)
	}
	if cfg.Motion.Variant == config.VariantEncoder {
		for _, m := range axisMotors(cfg) {
			b.Encoders[m] = plant.Encoder(m)
		}
	}
	return b, nil
}

// axisMotors returns the motor index of every configured axis.
func axisMotors(cfg *config.Config) []int {
	out := make([]int, 0, len(cfg.Motion.Axes))
	for _, ax := range cfg.Motion.Axes {
		out = append(out, ax.Motor)
	}
	return out
}

// Hardware returns the devices the control loop drives.
func (b *Board) Hardware() control.Hardware {
	hw := control.Hardware{Input: b.Gamepad, Current: b.Current, Encoders: b.Encoders}
	for i, m := range b.Motors {
		if m != nil {
			hw.Motors[i] = m
		}
	}
	return hw
}

// Close brakes every motor and releases the devices in reverse order.
func (b *Board) Close() error {
	var errs []error
	for _, m := range b.Motors {
		if m != nil {
			if err := m.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

var _ motion.Motor = (*motor.DCMotor)(nil)
