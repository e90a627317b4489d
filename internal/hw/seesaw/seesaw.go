// Package seesaw implements the register protocol of the Adafruit seesaw I/O
// expander (the chip behind the Gamepad QT) over a periph.io connection.
package seesaw

import (
	"encoding/binary"
	"fmt"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"

	"github.com/cjeanneret/StaGo/internal/debug"
)

// DefaultAddr is the factory address of the Gamepad QT.
const DefaultAddr uint16 = 0x50

// Module base registers.
const (
	ModuleGPIO byte = 0x01
	ModuleADC  byte = 0x09
)

// GPIO module functions.
const (
	gpioDirClrBulk byte = 0x03
	gpioBulk       byte = 0x04
	gpioBulkSet    byte = 0x05
	gpioPullEnSet  byte = 0x0B
)

// adcChannelOffset is added to the pin number to address an ADC channel.
const adcChannelOffset byte = 0x07

// DefaultReadDelay is the time the chip needs between the register select
// and the data read.
const DefaultReadDelay = 8 * time.Millisecond

// Device is a seesaw chip on a connection.
type Device struct {
	c         conn.Conn
	readDelay time.Duration
}

// New returns a seesaw device over an existing connection.
func New(c conn.Conn) *Device {
	return &Device{c: c, readDelay: DefaultReadDelay}
}

// NewI2C returns a seesaw device at addr on bus b.
func NewI2C(b i2c.Bus, addr uint16) *Device {
	return New(&i2c.Dev{Bus: b, Addr: addr})
}

// SetReadDelay changes the delay between register select and read.
func (d *Device) SetReadDelay(delay time.Duration) {
	d.readDelay = delay
}

// String implements conn.Resource.
func (d *Device) String() string {
	return "seesaw"
}

func (d *Device) write(module, function byte, data []byte) error {
	w := append([]byte{module, function}, data...)
	if err := d.c.Tx(w, nil); err != nil {
		return fmt.Errorf("seesaw: write %02x:%02x: %w", module, function, err)
	}
	debug.I2C(d.String(), w, nil)
	return nil
}

func (d *Device) read(module, function byte, n int) ([]byte, error) {
	w := []byte{module, function}
	if err := d.c.Tx(w, nil); err != nil {
		return nil, fmt.Errorf("seesaw: select %02x:%02x: %w", module, function, err)
	}
	if d.readDelay > 0 {
		time.Sleep(d.readDelay)
	}
	r := make([]byte, n)
	if err := d.c.Tx(nil, r); err != nil {
		return nil, fmt.Errorf("seesaw: read %02x:%02x: %w", module, function, err)
	}
	debug.I2C(d.String(), w, r)
	return r, nil
}

func mask32(pins uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, pins)
	return b
}

// PinModeInputPullup configures every pin set in pins as an input with its
// pull-up enabled.
func (d *Device) PinModeInputPullup(pins uint32) error {
	m := mask32(pins)
	if err := d.write(ModuleGPIO, gpioDirClrBulk, m); err != nil {
		return err
	}
	if err := d.write(ModuleGPIO, gpioPullEnSet, m); err != nil {
		return err
	}
	// Pull direction follows the output latch: high selects pull-up.
	return d.write(ModuleGPIO, gpioBulkSet, m)
}

// DigitalReadBulk reads all GPIO levels at once and returns those in pins.
func (d *Device) DigitalReadBulk(pins uint32) (uint32, error) {
	r, err := d.read(ModuleGPIO, gpioBulk, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(r) & pins, nil
}

// AnalogRead returns the 10-bit ADC reading of pin.
func (d *Device) AnalogRead(pin uint8) (uint16, error) {
	r, err := d.read(ModuleADC, adcChannelOffset+pin, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(r), nil
}
