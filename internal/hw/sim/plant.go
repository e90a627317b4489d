// Package sim simulates the stage hardware: four motors on lead screws with
// hard stops at both ends, their encoders, the current-sense front end and
// the gamepad. It stands in for the board in mock mode and in tests.
package sim

import (
	"math"
	"sync"
	"time"

	"github.com/cjeanneret/StaGo/internal/hw/gpio"
	"github.com/cjeanneret/StaGo/internal/hw/sensor"
)

// NumMotors matches the number of current-sense channels.
const NumMotors = sensor.NumChannels

// Config describes the simulated mechanics.
type Config struct {
	CountsPerSecond float64            // encoder counts per second at full throttle
	Travel          [NumMotors]float64 // distance between the hard stops, in counts
	Start           [NumMotors]float64 // initial carriage position
	IdleCurrent     float64            // amperes with the motor braked
	RunCurrent      float64            // extra amperes at full throttle
	StallCurrent    float64            // amperes when pushing into a hard stop
}

// DefaultConfig fits the stage's soft limits inside the hard stops with
// room for the homing back-off.
func DefaultConfig() Config {
	return Config{
		CountsPerSecond: 8000,
		Travel:          [NumMotors]float64{1000, 30000, 45000, 45000},
		Start:           [NumMotors]float64{0, 12000, 20000, 20000},
		IdleCurrent:     0.02,
		RunCurrent:      0.07,
		StallCurrent:    0.6,
	}
}

type motorState struct {
	pos, neg uint16
	position float64
	offset   float64 // encoder zero
}

func (m *motorState) throttle() float64 {
	return (float64(m.pos) - float64(m.neg)) / 0xFFFF
}

// Plant is the simulated mechanics shared by all simulated devices.
type Plant struct {
	mu     sync.Mutex
	cfg    Config
	motors [NumMotors]motorState
	now    func() time.Time
	last   time.Time
}

// NewPlant returns a plant with every motor braked. now may be nil for the
// wall clock.
func NewPlant(cfg Config, now func() time.Time) *Plant {
	if now == nil {
		now = time.Now
	}
	p := &Plant{cfg: cfg, now: now, last: now()}
	for i := range p.motors {
		p.motors[i] = motorState{pos: 0xFFFF, neg: 0xFFFF, position: cfg.Start[i]}
	}
	return p
}

// advance integrates motion up to now. Caller holds mu.
func (p *Plant) advance() {
	t := p.now()
	dt := t.Sub(p.last).Seconds()
	p.last = t
	if dt <= 0 {
		return
	}
	for i := range p.motors {
		m := &p.motors[i]
		m.position += m.throttle() * p.cfg.CountsPerSecond * dt
		m.position = math.Max(0, math.Min(p.cfg.Travel[i], m.position))
	}
}

func (p *Plant) stalled(i int) bool {
	m := &p.motors[i]
	v := m.throttle()
	return (v < 0 && m.position <= 0) || (v > 0 && m.position >= p.cfg.Travel[i])
}

// Current returns the simulated current of motor i.
func (p *Plant) Current(i int) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	if p.stalled(i) {
		return p.cfg.StallCurrent
	}
	return p.cfg.IdleCurrent + p.cfg.RunCurrent*math.Abs(p.motors[i].throttle())
}

// Throttle returns the throttle implied by motor i's PWM outputs.
func (p *Plant) Throttle(i int) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.motors[i].throttle()
}

// Position returns the carriage position of motor i from its lower stop.
func (p *Plant) Position(i int) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	return p.motors[i].position
}

// Output is one simulated half-bridge input.
type Output struct {
	plant    *Plant
	motor    int
	negative bool
}

// PWM returns the positive or negative input of motor i.
func (p *Plant) PWM(i int, negative bool) *Output {
	return &Output{plant: p, motor: i, negative: negative}
}

// SetDutyCycle implements motor.PWM.
func (o *Output) SetDutyCycle(duty uint16) error {
	p := o.plant
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	if o.negative {
		p.motors[o.motor].neg = duty
	} else {
		p.motors[o.motor].pos = duty
	}
	return nil
}

// Encoder is the simulated encoder of one motor.
type Encoder struct {
	plant *Plant
	motor int
}

// Encoder returns the encoder of motor i.
func (p *Plant) Encoder(i int) *Encoder {
	return &Encoder{plant: p, motor: i}
}

// Position implements encoder.Encoder.
func (e *Encoder) Position() int64 {
	p := e.plant
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	m := &p.motors[e.motor]
	return int64(math.Round(m.position - m.offset))
}

// Reset implements encoder.Encoder.
func (e *Encoder) Reset() {
	p := e.plant
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	m := &p.motors[e.motor]
	m.offset = m.position
}

// SenseInput is the shared analog input behind the current mux. It decodes
// the channel from the levels of the address pins.
type SenseInput struct {
	plant  *Plant
	driver gpio.Driver
	pins   [3]int
	base   int
}

// AnalogInput returns the mux output as seen through driver.
func (p *Plant) AnalogInput(driver gpio.Driver, pins [3]int, base int) *SenseInput {
	return &SenseInput{plant: p, driver: driver, pins: pins, base: base}
}

// ReadRaw implements sensor.AnalogInput.
func (s *SenseInput) ReadRaw() (uint16, error) {
	addr := 0
	for bit, pin := range s.pins {
		level, err := s.driver.ReadPin(pin)
		if err != nil {
			return 0, err
		}
		if level == gpio.High {
			addr |= 1 << bit
		}
	}
	ch := addr - s.base
	if ch < 0 || ch >= NumMotors {
		return 0, nil
	}
	return Code(s.plant.Current(ch)), nil
}

// Code converts a current to the raw code the sense front end would
// produce.
func Code(amps float64) uint16 {
	volts := amps/sensor.Gain - sensor.Offset
	code := math.Round(volts / sensor.ReferenceVolts * sensor.CodeSpan)
	return uint16(math.Max(0, math.Min(0xFFFF, code)))
}
