// Package pca9685 drives the motor half-bridges from a PCA9685 16-channel
// PWM controller instead of the host's PWM pins.
package pca9685

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/io/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/cjeanneret/StaGo/internal/debug"
)

const (
	DefaultAddr = 0x40

	RegMode1 = 0x00
	RegMode2 = 0x01

	// Each output has an ON and an OFF 16-bit register, low byte first.
	RegLEDBase = 0x06

	RegPreScale = 0xfe

	mode1AllCall = 0x01
	mode1Sleep   = 0x10
	mode1AutoInc = 0x20
	mode1Restart = 0x80

	// Bit 12 of an ON/OFF register forces the output fully on/off.
	fullBit = 0x1000

	oscillator = 25 * physic.MegaHertz

	MinFrequency = 24 * physic.Hertz
	MaxFrequency = 1526 * physic.Hertz

	Channels = 16
)

// register is the part of x/exp/io/i2c.Device used here.
type register interface {
	WriteReg(reg byte, buf []byte) error
	Close() error
}

// PCA9685 is one controller.
type PCA9685 struct {
	dev  register
	freq physic.Frequency
}

// Open opens the controller at addr on an i2c-dev bus such as /dev/i2c-1.
func Open(deviceFile string, addr int) (*PCA9685, error) {
	dev, err := i2c.Open(&i2c.Devfs{Dev: deviceFile}, addr)
	if err != nil {
		return nil, fmt.Errorf("open pca9685 on %s: %w", deviceFile, err)
	}
	return &PCA9685{dev: dev}, nil
}

// Frequency returns the carrier actually programmed by Configure.
func (p *PCA9685) Frequency() physic.Frequency {
	return p.freq
}

// Configure sets the carrier frequency and enables the outputs. Frequencies
// outside the chip's range are clamped.
func (p *PCA9685) Configure(freq physic.Frequency) error {
	clamped := ClampFrequency(freq)
	if clamped != freq {
		debug.Info("PCA9685: carrier %s out of range, using %s", freq, clamped)
	}
	if err := p.dev.WriteReg(RegMode1, []byte{mode1Sleep | mode1AllCall}); err != nil {
		return fmt.Errorf("pca9685 sleep: %w", err)
	}
	if err := p.dev.WriteReg(RegPreScale, []byte{Prescale(clamped)}); err != nil {
		return fmt.Errorf("pca9685 prescale: %w", err)
	}
	if err := p.dev.WriteReg(RegMode1, []byte{mode1AllCall}); err != nil {
		return fmt.Errorf("pca9685 wake: %w", err)
	}
	// Oscillator needs 500us after leaving sleep.
	time.Sleep(time.Millisecond)
	if err := p.dev.WriteReg(RegMode1, []byte{mode1Restart | mode1AutoInc | mode1AllCall}); err != nil {
		return fmt.Errorf("pca9685 restart: %w", err)
	}
	p.freq = clamped
	return nil
}

// ClampFrequency limits freq to what the prescaler can produce.
func ClampFrequency(freq physic.Frequency) physic.Frequency {
	if freq < MinFrequency {
		return MinFrequency
	}
	if freq > MaxFrequency {
		return MaxFrequency
	}
	return freq
}

// Prescale returns the prescaler value for freq.
func Prescale(freq physic.Frequency) byte {
	v := math.Round(float64(oscillator)/(4096*float64(freq))) - 1
	if v < 3 {
		v = 3
	}
	if v > 255 {
		v = 255
	}
	return byte(v)
}

// SetDuty sets one output. Duty is 0 to 0xFFFF; the chip resolves 12 bits.
func (p *PCA9685) SetDuty(channel int, duty uint16) error {
	if channel < 0 || channel >= Channels {
		return fmt.Errorf("pca9685 channel %d out of range", channel)
	}
	on, off := counts(duty)
	addr := RegLEDBase + channel*4
	buf := []byte{byte(on), byte(on >> 8), byte(off), byte(off >> 8)}
	if err := p.dev.WriteReg(byte(addr), buf); err != nil {
		return fmt.Errorf("pca9685 channel %d: %w", channel, err)
	}
	return nil
}

func counts(duty uint16) (on, off uint16) {
	switch duty {
	case 0xFFFF:
		return fullBit, 0
	case 0:
		return 0, fullBit
	}
	return 0, duty >> 4
}

// Channel returns an output usable as a motor PWM.
func (p *PCA9685) Channel(n int) *Channel {
	return &Channel{chip: p, n: n}
}

// Close releases the bus device.
func (p *PCA9685) Close() error {
	return p.dev.Close()
}

// Channel is one PCA9685 output.
type Channel struct {
	chip *PCA9685
	n    int
}

// SetDutyCycle implements motor.PWM.
func (c *Channel) SetDutyCycle(duty uint16) error {
	return c.chip.SetDuty(c.n, duty)
}
