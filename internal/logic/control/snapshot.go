package control

import "github.com/cjeanneret/StaGo/internal/logic/homing"

// AxisSnapshot is the published state of one axis.
type AxisSnapshot struct {
	Name     string  `json:"name"`
	Group    string  `json:"group"`
	Position int64   `json:"position"`
	Throttle float64 `json:"throttle"`
	Moving   [2]bool `json:"moving"`  // +, -
	Latched  [2]bool `json:"latched"` // +, -
}

// Snapshot is a copy of the loop state for readers outside the control
// goroutine.
type Snapshot struct {
	Variant  string         `json:"variant"`
	Group    string         `json:"group"`
	Preset   string         `json:"preset"`
	Speed    float64        `json:"speed"`
	LightOn  bool           `json:"light_on"`
	Homed    bool           `json:"homed"`
	Homing   string         `json:"homing,omitempty"` // axis and phase while homing runs
	Joystick [2]int         `json:"joystick"`
	Currents [4]float64     `json:"currents"`
	Axes     []AxisSnapshot `json:"axes"`
	Ticks    uint64         `json:"ticks"`
}

// Snapshot returns the state published by the last step. Safe for
// concurrent use.
func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.snap
	s.Axes = append([]AxisSnapshot(nil), l.snap.Axes...)
	s.Homing = l.homing
	return s
}

func (l *Loop) publish() {
	st := &l.state
	p := l.presets[st.Preset]
	axes := make([]AxisSnapshot, len(l.axes))
	for i, b := range l.axes {
		a := AxisSnapshot{
			Name:     b.axis.Name,
			Group:    b.group.String(),
			Throttle: b.axis.Motor.Throttle(),
			Moving:   st.Axes[i].Moving,
			Latched:  st.Axes[i].Latched,
		}
		if b.axis.Encoder != nil {
			a.Position = b.axis.Encoder.Position()
		}
		axes[i] = a
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap = Snapshot{
		Variant:  l.ctrl.Policy().Name(),
		Group:    st.Group.String(),
		Preset:   p.Button.String(),
		Speed:    p.Speed,
		LightOn:  st.LightOn,
		Homed:    st.Homed,
		Joystick: [2]int{st.Stick.X, st.Stick.Y},
		Currents: l.current.Last(),
		Axes:     axes,
		Ticks:    l.snap.Ticks + 1,
	}
}

// homingPhase is the sequencer hook; it runs on the control goroutine while
// the loop is blocked in homing.
func (l *Loop) homingPhase(axis string, s homing.State) {
	l.setHoming(axis + ": " + s.String())
}

func (l *Loop) setHoming(phase string) {
	l.mu.Lock()
	l.homing = phase
	l.mu.Unlock()
}
