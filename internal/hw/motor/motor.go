// Package motor drives bidirectional DC motors through a pair of PWM
// outputs on an H-bridge.
package motor

import (
	"fmt"
	"math"

	"github.com/cjeanneret/StaGo/internal/debug"
)

// FullDuty is a PWM output held fully on.
const FullDuty = 0xFFFF

// PWM is one half-bridge input. Duty is 0 (off) to FullDuty (on).
type PWM interface {
	SetDutyCycle(duty uint16) error
}

// DecayMode selects how the bridge recirculates current between pulses.
type DecayMode int

const (
	// SlowDecay shorts the winding between pulses; smoother at low speed.
	SlowDecay DecayMode = iota
	// FastDecay lets the winding current collapse between pulses.
	FastDecay
)

func (m DecayMode) String() string {
	if m == FastDecay {
		return "fast"
	}
	return "slow"
}

// ParseDecayMode accepts "slow" or "fast".
func ParseDecayMode(s string) (DecayMode, error) {
	switch s {
	case "", "slow":
		return SlowDecay, nil
	case "fast":
		return FastDecay, nil
	}
	return SlowDecay, fmt.Errorf("unknown decay mode %q (want slow or fast)", s)
}

// DCMotor is one motor on two PWM outputs.
type DCMotor struct {
	name     string
	pos, neg PWM
	decay    DecayMode
	throttle float64
}

// NewDCMotor returns a motor driving pos for positive throttle and neg for
// negative throttle.
func NewDCMotor(name string, pos, neg PWM, decay DecayMode) *DCMotor {
	return &DCMotor{name: name, pos: pos, neg: neg, decay: decay}
}

// Name returns the motor label (A-D).
func (m *DCMotor) Name() string {
	return m.name
}

// Throttle returns the last throttle successfully applied.
func (m *DCMotor) Throttle() float64 {
	return m.throttle
}

// SetThrottle drives the motor at v in [-1, 1]. Zero brakes the motor.
func (m *DCMotor) SetThrottle(v float64) error {
	if math.IsNaN(v) || v < -1 || v > 1 {
		return fmt.Errorf("motor %s: throttle %v out of range [-1, 1]", m.name, v)
	}
	posDuty, negDuty := Duties(v, m.decay)
	if err := m.pos.SetDutyCycle(posDuty); err != nil {
		return fmt.Errorf("motor %s: positive output: %w", m.name, err)
	}
	if err := m.neg.SetDutyCycle(negDuty); err != nil {
		return fmt.Errorf("motor %s: negative output: %w", m.name, err)
	}
	if v != m.throttle {
		debug.Trace("Motor %s throttle %.3f -> %.3f (pos=0x%04x neg=0x%04x)", m.name, m.throttle, v, posDuty, negDuty)
	}
	m.throttle = v
	return nil
}

// Stop brakes the motor.
func (m *DCMotor) Stop() error {
	return m.SetThrottle(0)
}

// Duties returns the duty cycles of the positive and negative outputs for
// throttle v. v must already be within [-1, 1].
func Duties(v float64, decay DecayMode) (pos, neg uint16) {
	if v == 0 {
		return FullDuty, FullDuty
	}
	duty := uint16(math.Round(FullDuty * math.Abs(v)))
	switch {
	case decay == SlowDecay && v > 0:
		return FullDuty, FullDuty - duty
	case decay == SlowDecay:
		return FullDuty - duty, FullDuty
	case v > 0:
		return duty, 0
	default:
		return 0, duty
	}
}
