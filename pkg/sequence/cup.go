package sequence

import (
	"fmt"
	"time"
)

// CupPositionsPattern matches saved container rack position files.
const CupPositionsPattern = "cup_collection_positions*.json"

// CupTiming paces the container routine. Moves get a long fixed wait
// and the gripper a full settle so no step outruns the hardware.
var CupTiming = Timing{
	MoveSpeed: 10,
	MoveWait:  8 * time.Second,
	GripSpeed: 40,
	GripWait:  3 * time.Second,
}

// cupHome is the all-zero joint pose the routine starts and ends at.
var cupHome = []float64{0, 0, 0, 0, 0, 0}

// CupPickupPose names the taught pickup position for one container
// slot.
func CupPickupPose(container int) string {
	return fmt.Sprintf("container_%d_pickup", container)
}

// CupSteps is the container routine: carry a cup from its rack slot to
// the balance, pause to measure, and return it. Container slots share
// one safe transit height.
func CupSteps(container int) []Step {
	pickup := CupPickupPose(container)
	return []Step{
		{Name: "home", Angles: cupHome},
		{Name: "shared safe height", Pose: "shared_safe_height"},
		{Name: "open gripper", Grip: GripOpen},
		{Name: fmt.Sprintf("container %d", container), Pose: pickup, Dwell: 2 * time.Second},
		{Name: "close gripper", Grip: GripClose},
		{Name: "shared safe height", Pose: "shared_safe_height"},
		{Name: "balance safe height", Pose: "balance_safe_height"},
		{Name: "balance", Pose: "balance_position"},
		{Name: "open gripper", Grip: GripOpen},
		{Name: "balance safe height", Pose: "balance_safe_height"},
		{Name: "shared safe height", Pose: "shared_safe_height"},
		{Name: "measure", Dwell: 3 * time.Second},
		{Name: "balance safe height", Pose: "balance_safe_height"},
		{Name: "balance", Pose: "balance_position"},
		{Name: "close gripper", Grip: GripClose},
		{Name: "balance safe height", Pose: "balance_safe_height"},
		{Name: "shared safe height", Pose: "shared_safe_height"},
		{Name: fmt.Sprintf("return container %d", container), Pose: pickup, Dwell: 2 * time.Second},
		{Name: "open gripper", Grip: GripOpen},
		{Name: "shared safe height", Pose: "shared_safe_height"},
		{Name: "home", Angles: cupHome},
	}
}
