// Package sensor reads motor current through the analog multiplexer.
package sensor

import (
	"fmt"

	"github.com/cjeanneret/StaGo/internal/debug"
	"github.com/cjeanneret/StaGo/internal/hw/gpio"
)

// NumChannels is the number of current-sense channels.
const NumChannels = 4

// Calibration of the sense amplifier.
const (
	ReferenceVolts = 3.3
	CodeSpan       = 65536
	Offset         = -0.005
	Gain           = 1 / 0.47
)

// Sample is one current reading per channel, in amperes.
type Sample [NumChannels]float64

// AnalogInput is the converter shared by all mux channels. ReadRaw returns a
// 16-bit code where CodeSpan corresponds to ReferenceVolts.
type AnalogInput interface {
	ReadRaw() (uint16, error)
}

// Config holds the mux wiring.
type Config struct {
	AddressPins [3]int // bit0, bit1, bit2
	Base        int    // mux address of channel 0
}

// Current reads calibrated motor currents.
type Current struct {
	driver gpio.Driver
	input  AnalogInput
	cfg    Config
}

// NewCurrent configures the address pins as outputs.
func NewCurrent(driver gpio.Driver, input AnalogInput, cfg Config) (*Current, error) {
	for _, pin := range cfg.AddressPins {
		if err := driver.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup mux pin %d: %w", pin, err)
		}
	}
	return &Current{driver: driver, input: input, cfg: cfg}, nil
}

// Volts converts a raw code to volts.
func Volts(code uint16) float64 {
	return float64(code) * ReferenceVolts / CodeSpan
}

// Amps converts a sense voltage to motor current. Codes outside the
// amplifier's range are not clamped.
func Amps(volts float64) float64 {
	return (volts + Offset) * Gain
}

func (c *Current) selectAddress(address int) error {
	for bit, pin := range c.cfg.AddressPins {
		if err := c.driver.WritePin(pin, gpio.LevelOf(address&(1<<bit) != 0)); err != nil {
			return fmt.Errorf("mux address bit %d: %w", bit, err)
		}
	}
	return nil
}

// ReadCurrent returns the current on one channel (0-3).
func (c *Current) ReadCurrent(channel int) (float64, error) {
	if channel < 0 || channel >= NumChannels {
		return 0, fmt.Errorf("current channel %d out of range", channel)
	}
	if err := c.selectAddress(channel + c.cfg.Base); err != nil {
		return 0, err
	}
	code, err := c.input.ReadRaw()
	if err != nil {
		return 0, fmt.Errorf("read current channel %d: %w", channel, err)
	}
	return Amps(Volts(code)), nil
}

// ReadAll reads every channel in order.
func (c *Current) ReadAll() (Sample, error) {
	var s Sample
	for ch := range s {
		v, err := c.ReadCurrent(ch)
		if err != nil {
			return s, err
		}
		s[ch] = v
	}
	debug.Currents(s)
	return s, nil
}
