package motor

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
)

// DefaultFrequency is the PWM carrier, above the audible range.
const DefaultFrequency = 25 * physic.KiloHertz

// PinPWM drives a hardware PWM capable pin through periph.io.
type PinPWM struct {
	pin  gpio.PinOut
	freq physic.Frequency
}

// NewPinPWM looks up a pin by name (e.g. "GPIO12") and holds it at 0% duty.
// periph.io host drivers must be initialized first.
func NewPinPWM(name string, freq physic.Frequency) (*PinPWM, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("pwm pin %q not found", name)
	}
	p := &PinPWM{pin: pin, freq: freq}
	if err := p.SetDutyCycle(0); err != nil {
		return nil, err
	}
	return p, nil
}

// SetDutyCycle implements PWM.
func (p *PinPWM) SetDutyCycle(duty uint16) error {
	d := gpio.Duty(int64(duty) * int64(gpio.DutyMax) / FullDuty)
	if err := p.pin.PWM(d, p.freq); err != nil {
		return fmt.Errorf("pwm %s: %w", p.pin, err)
	}
	return nil
}

// Halt stops the PWM output.
func (p *PinPWM) Halt() error {
	return p.pin.Halt()
}
