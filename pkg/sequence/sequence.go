// Package sequence scripts the arm through pick-and-place routines
// against positions taught earlier.
//
// The arm reports nothing back about motion completion, so every step
// is fire-and-forget followed by a fixed wait sized for the slowest
// plausible move.
package sequence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quantalab/wetbench/pkg/arm"
)

// ArmDriver is the slice of the arm driver a runner needs.
type ArmDriver interface {
	SendAngles(angles []float64, speed int) error
	SetGripperState(flag, speed int) error
}

// GripAction says what the gripper does at a step.
type GripAction int

const (
	GripNone GripAction = iota
	GripOpen
	GripClose
)

// Step is one scripted action: an optional move, an optional gripper
// action, and an optional dwell afterwards.
type Step struct {
	Name   string
	Pose   string        // position store name; empty for no motion
	Angles []float64     // literal target when Pose is empty
	Grip   GripAction
	Dwell  time.Duration
}

// Timing paces a scripted run.
type Timing struct {
	MoveSpeed int
	MoveWait  time.Duration
	GripSpeed int
	GripWait  time.Duration
}

// Runner executes steps against an arm and a position store.
type Runner struct {
	arm    ArmDriver
	poses  *arm.PositionStore
	timing Timing
	logf   func(format string, args ...any)
}

// NewRunner wires a runner. logf may be nil to run silently.
func NewRunner(a ArmDriver, poses *arm.PositionStore, timing Timing, logf func(string, ...any)) *Runner {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Runner{arm: a, poses: poses, timing: timing, logf: logf}
}

// Validate checks that every pose the script references exists before
// any motion starts. Half-taught position files fail here, not above
// the balance.
func (r *Runner) Validate(steps []Step) error {
	var missing []string
	for _, s := range steps {
		if s.Pose == "" {
			continue
		}
		if _, ok := r.poses.Angles(s.Pose); !ok {
			missing = append(missing, s.Pose)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("positions missing from store: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Run walks the steps in order, stopping between waits when ctx is
// cancelled.
func (r *Runner) Run(ctx context.Context, steps []Step) error {
	if err := r.Validate(steps); err != nil {
		return err
	}

	for i, s := range steps {
		r.logf("%d) %s", i+1, s.Name)

		angles := s.Angles
		if s.Pose != "" {
			angles, _ = r.poses.Angles(s.Pose)
		}
		if angles != nil {
			if err := r.arm.SendAngles(angles, r.timing.MoveSpeed); err != nil {
				return fmt.Errorf("step %d (%s): %w", i+1, s.Name, err)
			}
			if err := pause(ctx, r.timing.MoveWait); err != nil {
				return err
			}
		}

		if s.Grip != GripNone {
			flag := arm.GripperOpen
			if s.Grip == GripClose {
				flag = arm.GripperClose
			}
			if err := r.arm.SetGripperState(flag, r.timing.GripSpeed); err != nil {
				return fmt.Errorf("step %d (%s): gripper: %w", i+1, s.Name, err)
			}
			if err := pause(ctx, r.timing.GripWait); err != nil {
				return err
			}
		}

		if s.Dwell > 0 {
			if err := pause(ctx, s.Dwell); err != nil {
				return err
			}
		}
	}
	return nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
