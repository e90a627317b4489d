package motion

import "fmt"

// Outcome is the decision for one direction of one axis on one tick.
type Outcome int

const (
	// Hold leaves motor and flags untouched.
	Hold Outcome = iota
	Engage
	StopOverCurrent
	StopAtBound
	StopReleased
)

func (o Outcome) String() string {
	switch o {
	case Hold:
		return "hold"
	case Engage:
		return "engage"
	case StopOverCurrent:
		return "stop (over-current)"
	case StopAtBound:
		return "stop (bound)"
	case StopReleased:
		return "stop (released)"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Reading is what a policy sees for one direction.
type Reading struct {
	Deflected bool
	Current   float64
	Position  int64
}

// Policy decides whether a direction engages or stops. It may update the
// latch flags of st but never the moving flags.
type Policy interface {
	Name() string
	Decide(ax *Axis, st *AxisState, dir Direction, r Reading, s Setting) Outcome
}

// EncoderBounded engages while the stick is pushed, the current is under
// threshold and the encoder has not reached the axis bound.
type EncoderBounded struct{}

func (EncoderBounded) Name() string { return "encoder" }

func (EncoderBounded) Decide(ax *Axis, _ *AxisState, dir Direction, r Reading, s Setting) Outcome {
	switch {
	case r.Current >= s.Threshold:
		return StopOverCurrent
	case !WithinBound(ax, dir, r.Position):
		return StopAtBound
	case !r.Deflected:
		return StopReleased
	}
	return Engage
}

// WithinBound reports whether pos still leaves room to travel toward dir.
// Axes without an encoder are unbounded.
func WithinBound(ax *Axis, dir Direction, pos int64) bool {
	if ax.Encoder == nil {
		return true
	}
	if dir == Negative {
		return pos > ax.Min
	}
	return pos < ax.Max
}

// CurrentLatching stops on over-current and latches the direction so it
// cannot re-engage into the stall until the opposite direction moves or the
// latches are cleared.
type CurrentLatching struct{}

func (CurrentLatching) Name() string { return "latching" }

func (CurrentLatching) Decide(_ *Axis, st *AxisState, dir Direction, r Reading, s Setting) Outcome {
	if st.Latched[dir] {
		return Hold
	}
	if r.Current >= s.Threshold {
		if !st.Latched[dir.Opposite()] {
			st.Latched[dir] = true
		}
		return StopOverCurrent
	}
	if !r.Deflected {
		return StopReleased
	}
	st.Latched[dir.Opposite()] = false
	return Engage
}

// PolicyByName returns "encoder" or "latching".
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "encoder":
		return EncoderBounded{}, nil
	case "latching":
		return CurrentLatching{}, nil
	}
	return nil, fmt.Errorf("unknown motion policy %q", name)
}
