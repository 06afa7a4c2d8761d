package sequence

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/quantalab/wetbench/pkg/arm"
)

type fakeArm struct {
	calls []string
}

func (a *fakeArm) SendAngles(angles []float64, speed int) error {
	a.calls = append(a.calls, fmt.Sprintf("move %v @%d", angles, speed))
	return nil
}

func (a *fakeArm) SetGripperState(flag, speed int) error {
	a.calls = append(a.calls, fmt.Sprintf("grip %d @%d", flag, speed))
	return nil
}

func testStore() *arm.PositionStore {
	s := arm.NewPositionStore()
	s.Set("perch", arm.Position{Angles: []float64{0, 10, -20, 0, 0, 0}})
	s.Set("drop", arm.Position{Angles: []float64{45, 0, 0, 0, 0, 0}})
	return s
}

func TestRun_OrderAndActions(t *testing.T) {
	a := &fakeArm{}
	r := NewRunner(a, testStore(), Timing{MoveSpeed: 25, GripSpeed: 50}, nil)

	steps := []Step{
		{Name: "perch", Pose: "perch"},
		{Name: "grab", Pose: "drop", Grip: GripClose},
		{Name: "release", Grip: GripOpen},
		{Name: "park", Angles: []float64{0, 0, 0, 0, 0, 0}},
	}
	if err := r.Run(context.Background(), steps); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		"move [0 10 -20 0 0 0] @25",
		"move [45 0 0 0 0 0] @25",
		"grip 1 @50",
		"grip 0 @50",
		"move [0 0 0 0 0 0] @25",
	}
	if !reflect.DeepEqual(a.calls, want) {
		t.Errorf("calls = %v, want %v", a.calls, want)
	}
}

func TestRun_MissingPoseStopsBeforeMotion(t *testing.T) {
	a := &fakeArm{}
	r := NewRunner(a, testStore(), Timing{}, nil)

	steps := []Step{
		{Name: "perch", Pose: "perch"},
		{Name: "gone", Pose: "not_taught"},
	}
	err := r.Run(context.Background(), steps)
	if err == nil {
		t.Fatal("Run accepted a script with an untaught pose")
	}
	if !strings.Contains(err.Error(), "not_taught") {
		t.Errorf("error does not name the missing pose: %v", err)
	}
	if len(a.calls) != 0 {
		t.Errorf("arm moved before validation failed: %v", a.calls)
	}
}

func TestRun_Cancelled(t *testing.T) {
	a := &fakeArm{}
	r := NewRunner(a, testStore(), Timing{MoveSpeed: 25, MoveWait: time.Minute}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Run(ctx, []Step{{Name: "perch", Pose: "perch"}, {Name: "drop", Pose: "drop"}})
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(a.calls) != 1 {
		t.Errorf("calls after cancel = %v", a.calls)
	}
}

func TestVialSteps(t *testing.T) {
	steps := VialSteps()
	if len(steps) != 14 {
		t.Fatalf("vial routine has %d steps, want 14", len(steps))
	}
	if steps[0].Pose != "home_position" || steps[13].Pose != "home_position" {
		t.Error("routine does not start and end at home")
	}
	if steps[2].Pose != "grab_vial" || steps[2].Grip != GripClose {
		t.Errorf("step 3 = %+v, want grab_vial with close", steps[2])
	}
	if steps[7].Pose != "" || steps[7].Dwell != 10*time.Second {
		t.Errorf("weigh step = %+v, want bare 10s dwell", steps[7])
	}

	opens, closes := 0, 0
	for _, s := range steps {
		switch s.Grip {
		case GripOpen:
			opens++
		case GripClose:
			closes++
		}
	}
	if opens != 2 || closes != 2 {
		t.Errorf("grip actions = %d open / %d close, want 2/2", opens, closes)
	}

	store := arm.NewPositionStore()
	for _, name := range []string{
		"home_position", "above_vial", "grab_vial", "lift_vial",
		"above_balance", "place_balance", "retreat_balance",
	} {
		store.Set(name, arm.Position{Angles: []float64{0, 0, 0, 0, 0, 0}})
	}
	r := NewRunner(&fakeArm{}, store, VialTiming, nil)
	if err := r.Validate(steps); err != nil {
		t.Errorf("Validate against a full store: %v", err)
	}
}

func TestCupSteps(t *testing.T) {
	steps := CupSteps(3)
	if len(steps) != 21 {
		t.Fatalf("container routine has %d steps, want 21", len(steps))
	}
	if steps[0].Pose != "" || !reflect.DeepEqual(steps[0].Angles, []float64{0, 0, 0, 0, 0, 0}) {
		t.Errorf("first step = %+v, want literal home", steps[0])
	}
	if steps[3].Pose != "container_3_pickup" || steps[3].Dwell != 2*time.Second {
		t.Errorf("pickup step = %+v", steps[3])
	}
	if steps[11].Pose != "" || steps[11].Dwell != 3*time.Second {
		t.Errorf("measure step = %+v", steps[11])
	}
	if steps[17].Pose != "container_3_pickup" || steps[17].Dwell != 2*time.Second {
		t.Errorf("return step = %+v", steps[17])
	}

	opens, closes := 0, 0
	for _, s := range steps {
		switch s.Grip {
		case GripOpen:
			opens++
		case GripClose:
			closes++
		}
	}
	if opens != 3 || closes != 2 {
		t.Errorf("grip actions = %d open / %d close, want 3/2", opens, closes)
	}
}

func TestCupPickupPose(t *testing.T) {
	if got := CupPickupPose(12); got != "container_12_pickup" {
		t.Errorf("CupPickupPose = %q", got)
	}
}
