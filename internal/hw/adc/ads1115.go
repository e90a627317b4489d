// Package adc drives the ADS1115 converter used as the shared analog input
// behind the current-sense multiplexer.
package adc

import (
	"encoding/binary"
	"fmt"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"

	"github.com/cjeanneret/StaGo/internal/debug"
)

// DefaultAddr is the ADS1115 address with ADDR tied to GND.
const DefaultAddr uint16 = 0x48

const (
	regConversion = 0x00
	regConfig     = 0x01

	cfgStartSingle = 0x8000
	cfgMuxSingle0  = 0x4 // AIN0 vs GND; AINn is 0x4+n
	cfgPGA4096     = 0x1 // ±4.096 V full scale
	cfgModeSingle  = 0x0100
	cfgRate860     = 0x7
	cfgCompDisable = 0x0003

	fullScaleVolts = 4.096

	// conversionTime covers one 860 SPS conversion plus margin.
	conversionTime = 2 * time.Millisecond
)

// ADS1115 reads one single-ended channel of an ADS1115 and reports it as a
// 16-bit code relative to a reference voltage, so callers can treat it like a
// microcontroller ADC pin.
type ADS1115 struct {
	c         conn.Conn
	channel   int
	reference float64
	wait      time.Duration
}

// NewI2C returns an ADS1115 on bus b reading the given channel (0-3).
// reference is the voltage that maps to a code of 65536 (3.3 V on the stage board).
func NewI2C(b i2c.Bus, addr uint16, channel int, reference float64) (*ADS1115, error) {
	return New(&i2c.Dev{Bus: b, Addr: addr}, channel, reference)
}

// New returns an ADS1115 using an existing connection.
func New(c conn.Conn, channel int, reference float64) (*ADS1115, error) {
	if channel < 0 || channel > 3 {
		return nil, fmt.Errorf("ads1115: channel must be 0-3, got %d", channel)
	}
	if reference <= 0 {
		return nil, fmt.Errorf("ads1115: reference voltage must be > 0, got %g", reference)
	}
	return &ADS1115{
		c:         c,
		channel:   channel,
		reference: reference,
		wait:      conversionTime,
	}, nil
}

// String implements conn.Resource.
func (a *ADS1115) String() string {
	return fmt.Sprintf("ADS1115(ch%d)", a.channel)
}

// configWord returns the config register value that starts a single-shot
// conversion on the configured channel.
func (a *ADS1115) configWord() uint16 {
	return cfgStartSingle |
		uint16(cfgMuxSingle0+a.channel)<<12 |
		cfgPGA4096<<9 |
		cfgModeSingle |
		cfgRate860<<5 |
		cfgCompDisable
}

// ReadRaw starts a conversion and returns the result scaled to a 16-bit
// code against the reference voltage. Negative readings report 0 and
// readings above the reference report 0xFFFF.
func (a *ADS1115) ReadRaw() (uint16, error) {
	w := []byte{regConfig, 0, 0}
	binary.BigEndian.PutUint16(w[1:], a.configWord())
	if err := a.c.Tx(w, nil); err != nil {
		return 0, fmt.Errorf("ads1115: start conversion: %w", err)
	}

	if a.wait > 0 {
		time.Sleep(a.wait)
	}

	r := make([]byte, 2)
	if err := a.c.Tx([]byte{regConversion}, r); err != nil {
		return 0, fmt.Errorf("ads1115: read conversion: %w", err)
	}
	debug.I2C(a.String(), w, r)

	return a.scale(int16(binary.BigEndian.Uint16(r))), nil
}

func (a *ADS1115) scale(raw int16) uint16 {
	if raw <= 0 {
		return 0
	}
	volts := float64(raw) * fullScaleVolts / 32768
	code := volts / a.reference * 65536
	if code >= 0xFFFF {
		return 0xFFFF
	}
	return uint16(code)
}
