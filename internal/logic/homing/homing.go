// Package homing drives each axis into its mechanical hard stop, detected by
// a current spike, backs off and zeroes the axis encoder.
package homing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/StaGo/internal/debug"
	"github.com/cjeanneret/StaGo/internal/logic/motion"
)

// ErrStalled is returned when the hard stop is not detected within the
// configured timeout.
var ErrStalled = errors.New("homing stalled: hard stop not detected")

// State is the phase of one axis homing run.
type State int

const (
	Idle State = iota
	SpinUp
	Seeking
	Settling
	BackingOff
	Done
	Stalled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SpinUp:
		return "spin-up"
	case Seeking:
		return "seeking"
	case Settling:
		return "settling"
	case BackingOff:
		return "backing-off"
	case Done:
		return "done"
	case Stalled:
		return "stalled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Timing holds the homing durations and the hard-stop current.
type Timing struct {
	SpinUp    time.Duration // reverse drive before the first current check
	Poll      time.Duration // current polling period while seeking
	Settle    time.Duration // pause after hitting the stop
	BackOff   time.Duration // forward drive away from the stop
	Threshold float64       // hard-stop current, amperes
	Timeout   time.Duration // max seek time; 0 waits forever
}

// DefaultTiming returns the stage's calibrated homing timing.
func DefaultTiming() Timing {
	return Timing{
		SpinUp:    750 * time.Millisecond,
		Poll:      100 * time.Millisecond,
		Settle:    500 * time.Millisecond,
		BackOff:   875 * time.Millisecond,
		Threshold: 0.175,
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-time SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Result describes one completed axis run.
type Result struct {
	Axis    string
	Polls   int
	Elapsed time.Duration // sum of all waits
	State   State
}

// Sequencer homes axes one after the other.
type Sequencer struct {
	current motion.CurrentReader
	timing  Timing
	sleep   SleepFunc

	// OnPhase, if set, is called on every state change.
	OnPhase func(axis string, s State)
}

func NewSequencer(current motion.CurrentReader, timing Timing) *Sequencer {
	return &Sequencer{
		current: current,
		timing:  timing,
		sleep:   Sleep,
	}
}

// SetSleep replaces the wait function (tests use a virtual clock).
func (s *Sequencer) SetSleep(fn SleepFunc) {
	s.sleep = fn
}

func (s *Sequencer) enter(ax *motion.Axis, st State) {
	debug.Homing(ax.Name, st.String())
	if s.OnPhase != nil {
		s.OnPhase(ax.Name, st)
	}
}

// HomeAll homes every axis in order and stops at the first error.
func (s *Sequencer) HomeAll(ctx context.Context, axes []*motion.Axis) ([]Result, error) {
	debug.Section("Homing")
	results := make([]Result, 0, len(axes))
	for _, ax := range axes {
		res, err := s.Home(ctx, ax)
		results = append(results, res)
		if err != nil {
			return results, err
		}
		debug.Info("Axis %s homed after %d polls (%s)", res.Axis, res.Polls, res.Elapsed)
	}
	return results, nil
}

// Home runs the sequence for one axis. On any error the motor is braked
// before returning.
func (s *Sequencer) Home(ctx context.Context, ax *motion.Axis) (res Result, err error) {
	res = Result{Axis: ax.Name, State: Idle}
	defer func() {
		if err == nil {
			return
		}
		if stopErr := ax.Motor.SetThrottle(0); stopErr != nil {
			debug.Error(stopErr)
		}
	}()

	wait := func(d time.Duration) error {
		if err := s.sleep(ctx, d); err != nil {
			return fmt.Errorf("homing %s: %w", ax.Name, err)
		}
		res.Elapsed += d
		return nil
	}
	drive := func(v float64) error {
		if err := ax.Motor.SetThrottle(v); err != nil {
			return fmt.Errorf("homing %s: %w", ax.Name, err)
		}
		return nil
	}
	phase := func(st State) {
		res.State = st
		s.enter(ax, st)
	}

	phase(SpinUp)
	if err := drive(-1); err != nil {
		return res, err
	}
	if err := wait(s.timing.SpinUp); err != nil {
		return res, err
	}

	phase(Seeking)
	var seek time.Duration
	for {
		if err := wait(s.timing.Poll); err != nil {
			return res, err
		}
		seek += s.timing.Poll
		res.Polls++

		sample, err := s.current.ReadAll()
		if err != nil {
			return res, fmt.Errorf("homing %s: %w", ax.Name, err)
		}
		if sample[ax.Channel] >= s.timing.Threshold {
			break
		}
		if s.timing.Timeout > 0 && seek >= s.timing.Timeout {
			phase(Stalled)
			return res, fmt.Errorf("axis %s after %s: %w", ax.Name, seek, ErrStalled)
		}
	}

	phase(Settling)
	if err := drive(0); err != nil {
		return res, err
	}
	if err := wait(s.timing.Settle); err != nil {
		return res, err
	}

	phase(BackingOff)
	if err := drive(1); err != nil {
		return res, err
	}
	if err := wait(s.timing.BackOff); err != nil {
		return res, err
	}
	if err := drive(0); err != nil {
		return res, err
	}
	if ax.Encoder != nil {
		ax.Encoder.Reset()
	}
	phase(Done)
	return res, nil
}
