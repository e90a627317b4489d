package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/StaGo/internal/config"
	"github.com/cjeanneret/StaGo/internal/debug"
	"github.com/cjeanneret/StaGo/internal/hw/encoder"
	"github.com/cjeanneret/StaGo/internal/hw/gamepad"
	"github.com/cjeanneret/StaGo/internal/hw/sensor"
	"github.com/cjeanneret/StaGo/internal/logic/homing"
	"github.com/cjeanneret/StaGo/internal/logic/motion"
)

// Input is the operator's gamepad.
type Input interface {
	ReadButtons() (gamepad.Buttons, error)
	ReadJoystick() (x, y int, err error)
}

// Homer runs the homing sequence over a list of axes.
type Homer interface {
	HomeAll(ctx context.Context, axes []*motion.Axis) ([]homing.Result, error)
}

// Hardware is everything the loop drives. Encoders may hold nil entries
// for motors without position feedback.
type Hardware struct {
	Input    Input
	Current  motion.CurrentReader
	Motors   [config.NumMotors]motion.Motor
	Encoders [config.NumMotors]encoder.Encoder
}

type boundAxis struct {
	axis  *motion.Axis
	group Group
}

type light struct {
	motor     motion.Motor
	button    gamepad.Button
	throttle  float64
	momentary bool
}

// Loop is the fixed-tick control loop of the stage.
type Loop struct {
	tick    time.Duration
	input   Input
	current *sampleRecorder
	ctrl    *motion.Controller
	homer   Homer

	axes        []boundAxis
	homingOrder []*motion.Axis // nil when homing is disabled
	presets     []Preset
	threshold   float64
	light       *light // nil when disabled

	state ControllerState

	mu     sync.Mutex
	snap   Snapshot
	homing string
}

// New builds a loop from a validated configuration.
func New(cfg *config.Config, hw Hardware) (*Loop, error) {
	policy, err := motion.PolicyByName(cfg.Motion.Variant)
	if err != nil {
		return nil, err
	}
	rec := &sampleRecorder{src: hw.Current}
	l := &Loop{
		tick:      cfg.Tick(),
		input:     hw.Input,
		current:   rec,
		ctrl:      motion.NewController(policy, rec, motion.Deflection{High: cfg.Motion.JoyHigh, Low: cfg.Motion.JoyLow}),
		threshold: cfg.Motion.CurrentThreshold,
	}

	byName := make(map[string]*motion.Axis)
	for _, ac := range cfg.Motion.Axes {
		stick, err := motion.ParseStick(ac.Stick)
		if err != nil {
			return nil, fmt.Errorf("axis %s: %w", ac.Name, err)
		}
		group, err := ParseGroup(ac.Group)
		if err != nil {
			return nil, fmt.Errorf("axis %s: %w", ac.Name, err)
		}
		if hw.Motors[ac.Motor] == nil {
			return nil, fmt.Errorf("axis %s: motor %d not connected", ac.Name, ac.Motor)
		}
		ax := &motion.Axis{
			Name:    ac.Name,
			Motor:   hw.Motors[ac.Motor],
			Encoder: hw.Encoders[ac.Motor],
			Channel: ac.Channel,
			Stick:   stick,
			Min:     ac.Min,
			Max:     ac.Max,
		}
		l.axes = append(l.axes, boundAxis{axis: ax, group: group})
		byName[ac.Name] = ax
	}

	for _, pc := range cfg.Motion.Presets {
		b, err := gamepad.ParseButton(pc.Button)
		if err != nil {
			return nil, fmt.Errorf("preset: %w", err)
		}
		l.presets = append(l.presets, Preset{Button: b, Speed: pc.Speed, Thresholds: pc.Thresholds})
	}
	if len(l.presets) == 0 {
		return nil, errors.New("no speed presets")
	}

	if cfg.HomingEnabled() {
		for _, name := range cfg.Homing.Order {
			ax, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("homing order: unknown axis %q", name)
			}
			l.homingOrder = append(l.homingOrder, ax)
		}
		seq := homing.NewSequencer(rec, homing.Timing{
			SpinUp:    cfg.Homing.SpinUp(),
			Poll:      cfg.Homing.Poll(),
			Settle:    cfg.Homing.Settle(),
			BackOff:   cfg.Homing.BackOff(),
			Threshold: cfg.Homing.Threshold,
			Timeout:   cfg.Homing.Timeout(),
		})
		seq.OnPhase = l.homingPhase
		l.homer = seq
	}

	if cfg.LightEnabled() {
		b, err := gamepad.ParseButton(cfg.Light.Button)
		if err != nil {
			return nil, fmt.Errorf("light: %w", err)
		}
		m := hw.Motors[cfg.Light.Motor]
		if m == nil {
			return nil, fmt.Errorf("light: motor %d not connected", cfg.Light.Motor)
		}
		l.light = &light{
			motor:     m,
			button:    b,
			throttle:  cfg.Light.Throttle,
			momentary: cfg.Light.Mode == config.LightMomentary,
		}
	}

	l.state = NewControllerState(len(l.axes), l.presets, cfg.Motion.Deadband)
	l.publish()
	return l, nil
}

// SetHomer replaces the homing sequencer.
func (l *Loop) SetHomer(h Homer) {
	l.homer = h
}

// State returns the controller state. It must only be used from the
// goroutine running the loop.
func (l *Loop) State() *ControllerState {
	return &l.state
}

// Run calls Step on every tick until ctx is cancelled or a step fails.
// All motors are stopped on the way out.
func (l *Loop) Run(ctx context.Context) (err error) {
	debug.Info("Control loop started (%s policy, tick %s)", l.ctrl.Policy().Name(), l.tick)
	defer func() {
		if stopErr := l.StopAll(); stopErr != nil && err == nil {
			err = stopErr
		}
		debug.Info("Control loop stopped")
	}()

	t := time.NewTicker(l.tick)
	defer t.Stop()
	for {
		if err := l.Step(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Step runs one iteration of the control loop.
func (l *Loop) Step(ctx context.Context) error {
	st := &l.state
	if l.homingOrder != nil && !st.Homed {
		if err := l.home(ctx); err != nil {
			return err
		}
	}

	x, y, err := l.input.ReadJoystick()
	if err != nil {
		return fmt.Errorf("joystick: %w", err)
	}
	if st.Stick.Update(x, y) {
		debug.Trace("Joystick x=%d y=%d", x, y)
	}

	buttons, err := l.input.ReadButtons()
	if err != nil {
		return fmt.Errorf("buttons: %w", err)
	}
	edges := DetectEdges(st.Buttons, buttons)
	st.Buttons = buttons
	if edges.Any() && debug.IsEnabled(debug.LevelLive) {
		for _, b := range gamepad.All {
			if edges.Pressed(b) {
				debug.Button(b.String(), true)
			} else if edges.Released(b) {
				debug.Button(b.String(), false)
			}
		}
	}

	if edges.Pressed(gamepad.Select) {
		if err := l.reset(ctx); err != nil {
			return err
		}
	}
	for i, p := range l.presets {
		if edges.Pressed(p.Button) && (l.light == nil || p.Button != l.light.button) {
			st.Preset = i
			debug.Info("Preset %s: speed %.3f", p.Button, p.Speed)
		}
	}
	if err := l.updateLight(edges); err != nil {
		return err
	}
	if edges.Pressed(gamepad.Start) {
		if err := l.switchGroup(); err != nil {
			return err
		}
	}

	for i, b := range l.axes {
		if b.group != st.Group {
			continue
		}
		joy := st.Stick.X
		if b.axis.Stick == motion.StickY {
			joy = st.Stick.Y
		}
		if err := l.ctrl.Update(b.axis, &st.Axes[i], joy, l.setting(b.axis)); err != nil {
			return err
		}
	}

	l.publish()
	return nil
}

// setting returns the speed and current threshold of the active preset for
// an axis.
func (l *Loop) setting(ax *motion.Axis) motion.Setting {
	p := l.presets[l.state.Preset]
	s := motion.Setting{Speed: p.Speed, Threshold: l.threshold}
	if t, ok := p.Thresholds[ax.Name]; ok {
		s.Threshold = t
	}
	return s
}

func (l *Loop) home(ctx context.Context) error {
	results, err := l.homer.HomeAll(ctx, l.homingOrder)
	l.setHoming("")
	if err != nil {
		return err
	}
	for _, r := range results {
		debug.Verbose("Homing %s: %d polls, %s", r.Axis, r.Polls, r.Elapsed)
	}
	l.state.Homed = true
	debug.Info("Homing complete")
	return nil
}

// reset clears every axis flag and latch, stops the axes and re-homes.
func (l *Loop) reset(ctx context.Context) error {
	debug.Info("Reset")
	for i, b := range l.axes {
		if err := l.ctrl.Stop(b.axis, &l.state.Axes[i]); err != nil {
			return err
		}
	}
	l.state.ClearAxes()
	if l.homingOrder == nil {
		return nil
	}
	l.state.Homed = false
	return l.home(ctx)
}

func (l *Loop) updateLight(edges Edges) error {
	lt := l.light
	if lt == nil {
		return nil
	}
	on := l.state.LightOn
	switch {
	case edges.Pressed(lt.button) && lt.momentary:
		on = true
	case edges.Released(lt.button) && lt.momentary:
		on = false
	case edges.Pressed(lt.button):
		on = !on
	}
	if on == l.state.LightOn {
		return nil
	}
	v := 0.0
	if on {
		v = lt.throttle
	}
	if err := lt.motor.SetThrottle(v); err != nil {
		return fmt.Errorf("light: %w", err)
	}
	l.state.LightOn = on
	debug.Live("Light %v", on)
	return nil
}

// switchGroup toggles XY and Z. Axes of the group being left are stopped.
func (l *Loop) switchGroup() error {
	old := l.state.Group
	for i, b := range l.axes {
		if b.group != old {
			continue
		}
		if err := l.ctrl.Stop(b.axis, &l.state.Axes[i]); err != nil {
			return err
		}
	}
	if old == GroupXY {
		l.state.Group = GroupZ
	} else {
		l.state.Group = GroupXY
	}
	debug.Info("Active group: %s", l.state.Group)
	return nil
}

// StopAll brakes every axis and switches the light off.
func (l *Loop) StopAll() error {
	var errs []error
	for i, b := range l.axes {
		if err := l.ctrl.Stop(b.axis, &l.state.Axes[i]); err != nil {
			errs = append(errs, err)
		}
	}
	if l.light != nil {
		if err := l.light.motor.SetThrottle(0); err != nil {
			errs = append(errs, fmt.Errorf("light: %w", err))
		}
		l.state.LightOn = false
	}
	l.publish()
	return errors.Join(errs...)
}

// sampleRecorder keeps the last current sample for the status snapshot.
type sampleRecorder struct {
	src  motion.CurrentReader
	mu   sync.Mutex
	last sensor.Sample
}

func (r *sampleRecorder) ReadAll() (sensor.Sample, error) {
	s, err := r.src.ReadAll()
	if err != nil {
		return s, err
	}
	r.mu.Lock()
	r.last = s
	r.mu.Unlock()
	return s, nil
}

func (r *sampleRecorder) Last() sensor.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
