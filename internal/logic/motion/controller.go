package motion

import (
	"fmt"

	"github.com/cjeanneret/StaGo/internal/debug"
)

// Controller applies a Policy to the axes of the stage. It sits between the
// control loop (joystick, buttons, presets) and the motors.
type Controller struct {
	policy  Policy
	current CurrentReader
	stick   Deflection
}

func NewController(policy Policy, current CurrentReader, stick Deflection) *Controller {
	return &Controller{
		policy:  policy,
		current: current,
		stick:   stick,
	}
}

// Policy returns the active policy.
func (c *Controller) Policy() Policy {
	return c.policy
}

// Update evaluates the positive then the negative direction of one axis.
// A direction is only evaluated while the other one is not moving, so at
// most one direction is ever engaged.
func (c *Controller) Update(ax *Axis, st *AxisState, joy int, s Setting) error {
	if !st.Moving[Negative] {
		if err := c.evaluate(ax, st, Positive, joy, s); err != nil {
			return err
		}
	}
	if !st.Moving[Positive] {
		if err := c.evaluate(ax, st, Negative, joy, s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) evaluate(ax *Axis, st *AxisState, dir Direction, joy int, s Setting) error {
	sample, err := c.current.ReadAll()
	if err != nil {
		return fmt.Errorf("axis %s: %w", ax.Name, err)
	}
	r := Reading{
		Deflected: c.stick.Deflected(dir, joy),
		Current:   sample[ax.Channel],
	}
	if ax.Encoder != nil {
		r.Position = ax.Encoder.Position()
	}

	out := c.policy.Decide(ax, st, dir, r, s)
	wasMoving := st.Moving[dir]
	switch out {
	case Hold:
		return nil
	case Engage:
		v := dir.Sign() * s.Speed
		if err := ax.Motor.SetThrottle(v); err != nil {
			return fmt.Errorf("axis %s: %w", ax.Name, err)
		}
		st.Moving[dir] = true
	default:
		if err := ax.Motor.SetThrottle(0); err != nil {
			return fmt.Errorf("axis %s: %w", ax.Name, err)
		}
		st.Moving[dir] = false
	}

	if st.Moving[dir] != wasMoving {
		debug.Motion(ax.Name, dir.String(), out.String(), ax.Motor.Throttle())
		debug.Verbose("Axis %s: current=%.4f threshold=%.4f pos=%d", ax.Name, r.Current, s.Threshold, r.Position)
	}
	return nil
}

// Stop brakes the axis motor and clears its moving flags. Latches are kept.
func (c *Controller) Stop(ax *Axis, st *AxisState) error {
	st.Moving = [2]bool{}
	if err := ax.Motor.SetThrottle(0); err != nil {
		return fmt.Errorf("axis %s: %w", ax.Name, err)
	}
	return nil
}
